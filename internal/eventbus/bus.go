// Package eventbus is the in-process pub/sub bus for domain events. Commands
// publish after a successful write; subscribers run on one consumer
// goroutine, in subscription order.
package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/event"
)

// Handler processes a domain event.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return f(ctx, evt)
}

// Bus is a buffered, single-consumer event bus. It implements
// event.Publisher.
type Bus struct {
	log *zap.Logger

	mu          sync.RWMutex
	subscribers []namedHandler
	started     bool
	closed      bool

	events chan event.DomainEvent
	done   chan struct{}
}

type namedHandler struct {
	name    string
	handler Handler
}

var _ event.Publisher = (*Bus)(nil)

// New creates a Bus with the given buffer size.
func New(bufSize int, log *zap.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:    log.Named("eventbus"),
		events: make(chan event.DomainEvent, bufSize),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a named handler. Must be called before Start.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish enqueues evt without blocking. When the buffer is full or the bus
// is stopped the event is dropped with a warning.
func (b *Bus) Publish(_ context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.log.Warn("bus stopped, dropping event", zap.String("type", evt.EventType), zap.String("id", evt.ID))
		return
	}
	select {
	case b.events <- evt:
	default:
		b.log.Warn("buffer full, dropping event", zap.String("type", evt.EventType), zap.String("id", evt.ID))
	}
}

// Start runs the consumer until ctx is cancelled or Stop is called. Events
// still buffered at that point are dispatched before it returns.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				b.drain(context.WithoutCancel(ctx))
				return
			}
		}
	}()
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case evt, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(ctx, evt)
		default:
			return
		}
	}
}

// Stop closes the bus and waits for the consumer to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.events)
	if !b.started {
		close(b.done)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.log.Warn("handler failed",
				zap.String("subscriber", s.name),
				zap.String("type", evt.EventType),
				zap.String("id", evt.ID),
				zap.Error(err),
			)
		}
	}
}
