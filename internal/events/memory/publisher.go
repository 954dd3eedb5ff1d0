// Package memory contains an in-memory event publisher for tests.
package memory

import (
	"context"
	"sync"

	"github.com/okharin/mv-parser/internal/events"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []events.RunEvent
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event.
func (p *Publisher) Publish(_ context.Context, event events.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []events.RunEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]events.RunEvent, len(p.events))
	copy(out, p.events)
	return out
}
