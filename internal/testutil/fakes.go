package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/dom/learnhub-api/internal/audit"
	"github.com/dom/learnhub-api/internal/mailer"
	"github.com/google/uuid"
)

// RecordingAuditSink keeps every event in memory. Err, when set, is returned
// from Record after the event is stored.
type RecordingAuditSink struct {
	mu     sync.Mutex
	events []audit.Event
	Err    error
}

func (s *RecordingAuditSink) Record(ctx context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.Err
}

func (s *RecordingAuditSink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

// EventsOfType returns the recorded events with the given type.
func (s *RecordingAuditSink) EventsOfType(eventType string) []audit.Event {
	var out []audit.Event
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type RecordingMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
	Err      error
}

func (m *RecordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *RecordingMailer) Messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.messages...)
}

// Revocation is one SessionsRevoked call seen by RecordingNotifier.
type Revocation struct {
	UserID     uuid.UUID
	SessionIDs []uuid.UUID
}

type RecordingNotifier struct {
	mu    sync.Mutex
	calls []Revocation
}

func (n *RecordingNotifier) SessionsRevoked(userID uuid.UUID, sessionIDs []uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Revocation{
		UserID:     userID,
		SessionIDs: append([]uuid.UUID(nil), sessionIDs...),
	})
}

func (n *RecordingNotifier) Calls() []Revocation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Revocation(nil), n.calls...)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC().Truncate(time.Second)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
