package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"dealerline_backend/platform/logger"
)

// InMemoryBus is a process-local Bus implementation. Asynchronous handlers are
// tracked so Close can drain them during shutdown.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]map[Subscription]Handler
	nextSub  Subscription
	closed   bool
	wg       sync.WaitGroup
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string]map[Subscription]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for the named event type.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	sub := b.nextSub

	if b.handlers[eventName] == nil {
		b.handlers[eventName] = make(map[Subscription]Handler)
	}
	b.handlers[eventName][sub] = handler

	return sub
}

// Unsubscribe removes a handler registration.
func (b *InMemoryBus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, byID := range b.handlers {
		delete(byID, sub)
	}
}

// Publish delivers the event to all handlers asynchronously. Handler errors
// are logged, not propagated.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	for _, handler := range b.snapshot(event.EventName()) {
		h := handler
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := h.Handle(context.WithoutCancel(ctx), event); err != nil {
				b.log.Error("event handler failed", "event", event.EventName(), "error", err)
			}
		}()
	}
}

// PublishSync delivers the event to all handlers in order and joins their errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	for _, handler := range b.snapshot(event.EventName()) {
		if err := handler.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close drains in-flight asynchronous handlers up to the timeout and drops
// all registrations. Publishes after Close are no-ops.
func (b *InMemoryBus) Close(timeout time.Duration) {
	b.mu.Lock()
	b.closed = true
	b.handlers = make(map[string]map[Subscription]Handler)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		b.log.Warn("event bus closed before all handlers drained", "timeout", timeout)
	}
}

func (b *InMemoryBus) snapshot(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	byID := b.handlers[eventName]
	out := make([]Handler, 0, len(byID))
	for _, h := range byID {
		out = append(out, h)
	}
	return out
}
