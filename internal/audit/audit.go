// Package audit records security-relevant events. Recording is best effort:
// callers log a failed Record and carry on.
package audit

import (
	"context"
	"errors"
	"time"
)

type Event struct {
	ActorID    string         `json:"actorId"`
	EventType  string         `json:"eventType"`
	TargetID   string         `json:"targetId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

type Sink interface {
	Record(ctx context.Context, event Event) error
}

// SystemActor is the actor id used for events not caused by a person.
const SystemActor = "system"

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopSink struct{}

func (nopSink) Record(context.Context, Event) error { return nil }

// Nop discards events.
func Nop() Sink { return nopSink{} }
