package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StaticProvider vouches for subjects carrying a known id prefix. Development
// and test stand-in for a real identity-proof backend.
type StaticProvider struct {
	prefix string
}

// NewStaticProvider accepts subjects whose id starts with prefix
// (conventionally "notary-").
func NewStaticProvider(prefix string) *StaticProvider {
	return &StaticProvider{prefix: prefix}
}

func (p *StaticProvider) VerifySubject(_ context.Context, subjectID string) (Proof, error) {
	if subjectID == "" || !strings.HasPrefix(subjectID, p.prefix) {
		return Proof{}, nil
	}
	return Proof{
		Verified: true,
		ProofRef: fmt.Sprintf("static:%s", uuid.NewString()),
	}, nil
}
