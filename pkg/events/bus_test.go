package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	var seen []Event
	bus.Subscribe(TypeSampleDropped, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e)
		return nil
	})

	err := bus.Publish(context.Background(), SampleDropped{SampleID: 7, Stage: "featurize", Reason: "bad token", Recoverable: true})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	dropped, ok := seen[0].(SampleDropped)
	require.True(t, ok)
	assert.Equal(t, int64(7), dropped.SampleID)
	assert.True(t, dropped.Recoverable)
}

func TestBus_PublishIgnoresOtherTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var calls atomic.Int32
	bus.Subscribe(TypeRunStarted, func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), RunCompleted{Strategy: "cached"}))
	assert.Equal(t, int32(0), calls.Load())
}

func TestBus_PublishReturnsHandlerError(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	bus.Subscribe(TypeRunStarted, func(context.Context, Event) error {
		return fmt.Errorf("observer failed")
	})

	err := bus.Publish(context.Background(), RunStarted{Strategy: "online"})
	assert.EqualError(t, err, "observer failed")
}

func TestBus_Reset(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	bus.Subscribe(TypeRunStarted, func(context.Context, Event) error { return nil })
	bus.Subscribe(TypeRunCompleted, func(context.Context, Event) error { return nil })
	require.Equal(t, 1, bus.HandlerCount(TypeRunStarted))

	bus.Reset()

	assert.Equal(t, 0, bus.HandlerCount(TypeRunStarted))
	assert.Equal(t, 0, bus.HandlerCount(TypeRunCompleted))
	assert.NoError(t, bus.Publish(context.Background(), RunStarted{}))
}

func TestBus_PublishAsync(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var calls atomic.Int32
	bus.Subscribe(TypeAugmentationApplied, func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})

	bus.PublishAsync(context.Background(), AugmentationApplied{Name: "noise", Generated: 20})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))
	assert.Equal(t, int32(1), calls.Load())
}
