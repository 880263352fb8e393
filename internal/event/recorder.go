// Package event defines the domain events emitted after successful writes and
// the Publisher interface they are sent through.
package event

import (
	"context"
	"sync"
)

// Publisher sends domain events to downstream consumers. Publishing is
// best-effort and never fails the command that produced the event.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, DomainEvent) {}

// Collector is a Publisher that keeps every event in memory.
type Collector struct {
	mu     sync.Mutex
	events []DomainEvent
}

func (c *Collector) Publish(_ context.Context, evt DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DomainEvent(nil), c.events...)
}

// Types returns the collected event types in publish order.
func (c *Collector) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType
	}
	return out
}
