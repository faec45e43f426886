// Package sentrycabletest provides an in-memory Sentry transport to assert the events reported
// by interceptors.
package sentrycabletest

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// Sentry transport which keeps all events it is asked to send.
type RecordingTransport struct {
	events []*sentry.Event
	mu     sync.Mutex
}

// Factory which creates a new, empty RecordingTransport.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{events: []*sentry.Event{}}
}

func (t *RecordingTransport) Configure(options sentry.ClientOptions) {}

// Record the event.
func (t *RecordingTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

// Events are recorded synchronously: flush always succeeds.
func (t *RecordingTransport) Flush(timeout time.Duration) bool {
	return true
}

func (t *RecordingTransport) FlushWithContext(ctx context.Context) bool {
	return true
}

func (t *RecordingTransport) Close() {}

// Return a copy of the recorded events, in the order they have been sent.
func (t *RecordingTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := make([]*sentry.Event, len(t.events))
	copy(events, t.events)
	return events
}

// Forget all recorded events.
func (t *RecordingTransport) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = []*sentry.Event{}
}
