package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"skyseal/pkg/requestcontext"
)

// Publisher captures structured audit events. The store write is synchronous
// and fail-closed: an operation whose audit trail cannot be persisted reports
// the failure. Sink fan-out (a broker, typically) is best-effort.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithSink adds a fan-out target alongside the store.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

func NewPublisher(store Store, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit fills in event identity and client metadata from the request context,
// then persists the event. Returns error only on store failure.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.DeviceLabel == "" {
		event.DeviceLabel = requestcontext.DeviceLabel(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.WarnContext(ctx, "audit sink publish failed",
				"event_id", event.ID,
				"type", event.Type,
				"error", err,
			)
		}
	}
	return nil
}

// List returns the audit history for one subject.
func (p *Publisher) List(ctx context.Context, subjectID string) ([]Event, error) {
	return p.store.ListBySubject(ctx, subjectID)
}
