package audit

import "context"

// Store is the append-only persistence port for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink is a secondary fan-out target for events, typically a message broker.
// Sink failures are reported but must never fail the originating operation.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
