package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps events in memory. Tests use it to assert on audit trails.
type MemoryLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
}

// NewMemoryLogger creates an empty memory logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends a copy of event
func (l *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := *event
	e.ID = int64(len(l.events) + 1)
	l.events = append(l.events, &e)
	return nil
}

// Events returns every recorded event in order
func (l *MemoryLogger) Events() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

// EventsOfType returns recorded events of one type
func (l *MemoryLogger) EventsOfType(eventType EventType) []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*AuditEvent
	for _, e := range l.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Close is a no-op
func (l *MemoryLogger) Close() error {
	return nil
}
