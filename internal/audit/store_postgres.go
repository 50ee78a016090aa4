package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"skyseal/pkg/platform/sentinel"
)

// PostgresStore persists audit events in the audit_events table.
//
// Expected schema:
//
//	CREATE TABLE audit_events (
//	    id             UUID PRIMARY KEY,
//	    type           TEXT NOT NULL,
//	    timestamp      TIMESTAMPTZ NOT NULL,
//	    subject_id     TEXT NOT NULL DEFAULT '',
//	    key_id         TEXT NOT NULL DEFAULT '',
//	    digest_hex     TEXT NOT NULL DEFAULT '',
//	    policy_version TEXT NOT NULL DEFAULT '',
//	    reasons        TEXT[] NOT NULL DEFAULT '{}',
//	    request_id     TEXT NOT NULL DEFAULT '',
//	    client_ip      TEXT NOT NULL DEFAULT '',
//	    device_label   TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX audit_events_subject_idx ON audit_events (subject_id, timestamp DESC);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append is idempotent on event ID so retried emissions do not duplicate rows.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (
			id, type, timestamp, subject_id, key_id, digest_hex,
			policy_version, reasons, request_id, client_ip, device_label
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.Timestamp,
		event.SubjectID,
		event.KeyID,
		event.DigestHex,
		event.PolicyVersion,
		pq.Array(event.Reasons),
		event.RequestID,
		event.ClientIP,
		event.DeviceLabel,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]Event, error) {
	query := `
		SELECT id, type, timestamp, subject_id, key_id, digest_hex,
		       policy_version, reasons, request_id, client_ip, device_label
		FROM audit_events
		WHERE subject_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, type, timestamp, subject_id, key_id, digest_hex,
		       policy_version, reasons, request_id, client_ip, device_label
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			event     Event
			eventType string
		)
		err := rows.Scan(
			&event.ID,
			&eventType,
			&event.Timestamp,
			&event.SubjectID,
			&event.KeyID,
			&event.DigestHex,
			&event.PolicyVersion,
			pq.Array(&event.Reasons),
			&event.RequestID,
			&event.ClientIP,
			&event.DeviceLabel,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Type = EventType(eventType)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
