package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler reacts to a published event. Returning an error fails the
// synchronous publish that invoked it.
type Handler func(ctx context.Context, event Event) error

// Bus dispatches events to subscribed handlers. Each preparation run owns
// its own Bus value; nothing here is process-global, and Reset returns a
// bus to its pristine state so a run context can be reused.
type Bus struct {
	handlers   map[string][]Handler
	logger     zerolog.Logger
	mu         sync.RWMutex
	workerPool chan struct{} // Limits concurrent async operations
	wg         sync.WaitGroup
}

// NewBus creates an event bus with no subscriptions.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger:     logger,
		handlers:   make(map[string][]Handler),
		workerPool: make(chan struct{}, 10),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to every handler of its type and waits for
// them. Handlers run concurrently; the first handler error is returned.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.EventType()]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				errCh <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}

	return nil
}

// PublishAsync publishes an event without waiting for handlers. A worker
// pool bounds concurrent deliveries; when it is saturated the event is
// dropped with a warning rather than blocking the pipeline.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	select {
	case b.workerPool <- struct{}{}:
		b.wg.Add(1)
		go func() {
			defer func() {
				<-b.workerPool
				b.wg.Done()
			}()

			asyncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := b.Publish(asyncCtx, event); err != nil {
				b.logger.Warn().Err(err).Str("event", event.EventType()).Msg("async event handler failed")
			}
		}()
	case <-time.After(100 * time.Millisecond):
		b.logger.Warn().Str("event", event.EventType()).Msg("event bus saturated, event dropped")
	}
}

// Reset removes every subscription, returning the bus to its initial state.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[string][]Handler)
}

// HandlerCount returns the number of handlers for an event type.
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Close waits for in-flight async publishes to finish or the context to
// expire.
func (b *Bus) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
