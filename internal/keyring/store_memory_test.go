package keyring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"skyseal/pkg/platform/sentinel"
)

type RegistrySuite struct {
	suite.Suite
	registry *InMemoryRegistry
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewInMemoryRegistry()
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) record(keyID string) KeyRecord {
	return KeyRecord{
		KeyID:     keyID,
		Algorithm: "Ed25519",
		PublicKey: []byte("0123456789abcdef0123456789abcdef"),
		ValidFrom: time.Now().Add(-time.Hour),
	}
}

func (s *RegistrySuite) TestResolve() {
	s.Run("returns stored record when found", func() {
		record := s.record("attestor-key-01")
		s.Require().NoError(s.registry.Register(context.Background(), record))

		found, err := s.registry.Resolve(context.Background(), "attestor-key-01")
		s.Require().NoError(err)
		s.Equal(record, found)
	})

	s.Run("returns ErrNotFound for unknown key id", func() {
		_, err := s.registry.Resolve(context.Background(), "no-such-key")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *RegistrySuite) TestRegisterConflict() {
	record := s.record("attestor-key-01")
	s.Require().NoError(s.registry.Register(context.Background(), record))
	s.Require().ErrorIs(s.registry.Register(context.Background(), record), sentinel.ErrConflict)
}

func (s *RegistrySuite) TestRevoke() {
	s.Run("marks record revoked", func() {
		s.Require().NoError(s.registry.Register(context.Background(), s.record("attestor-key-01")))
		s.Require().NoError(s.registry.Revoke(context.Background(), "attestor-key-01"))

		found, err := s.registry.Resolve(context.Background(), "attestor-key-01")
		s.Require().NoError(err)
		s.True(found.Revoked)
		s.False(found.Usable(time.Now()))
	})

	s.Run("returns ErrNotFound for unknown key id", func() {
		s.Require().ErrorIs(s.registry.Revoke(context.Background(), "no-such-key"), sentinel.ErrNotFound)
	})
}

func (s *RegistrySuite) TestUsableWindow() {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record := s.record("k")
	record.ValidFrom = now.Add(-24 * time.Hour)
	record.ValidUntil = now.Add(24 * time.Hour)

	s.True(record.Usable(now))
	s.False(record.Usable(now.Add(-48*time.Hour)), "before validFrom")
	s.False(record.Usable(now.Add(48*time.Hour)), "after validUntil")

	openEnded := s.record("k2")
	openEnded.ValidFrom = now.Add(-24 * time.Hour)
	s.True(openEnded.Usable(now.Add(1000*time.Hour)), "zero validUntil means no expiry")
}
