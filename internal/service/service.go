// Package service implements the exam platform's operations on top of the
// record store. Every mutation runs as one store update; events are published
// only after the update has committed.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pavelanni/examhall/internal/event"
	"github.com/pavelanni/examhall/internal/store"
)

// Service holds shared dependencies for operations.
type Service struct {
	store  *store.Store
	events event.Publisher
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher. The default drops events.
func WithPublisher(p event.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{store: st, events: event.Nop{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish sends a post-commit event. Failures are logged, never returned:
// the mutation has already been persisted.
func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		slog.Error("failed to publish event", "type", eventType, "error", err)
	}
}
