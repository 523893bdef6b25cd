package progress

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	updates []Update
	closed  bool
}

func (s *memorySink) Publish(_ context.Context, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) all() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Update, len(s.updates))
	copy(out, s.updates)
	return out
}

func TestTracker_Lifecycle(t *testing.T) {
	sink := &memorySink{}
	tracker := NewTracker(context.Background(), 10, sink, WithThrottle(0))

	tracker.Begin("featurizing")
	tracker.Update(4, "chunk progress")
	tracker.Complete("done")

	updates := sink.all()
	require.Len(t, updates, 3)

	assert.Equal(t, "started", updates[0].Status)
	assert.Equal(t, 0, updates[0].Done)

	assert.Equal(t, "running", updates[1].Status)
	assert.Equal(t, 4, updates[1].Done)
	assert.Equal(t, 40, updates[1].Percentage)
	assert.Greater(t, updates[1].ETA, time.Duration(0))

	assert.Equal(t, "completed", updates[2].Status)
	assert.Equal(t, 10, updates[2].Done)
	assert.Equal(t, 100, updates[2].Percentage)
	assert.True(t, sink.closed)
}

func TestTracker_ThrottleSkipsIntermediateUpdates(t *testing.T) {
	sink := &memorySink{}
	tracker := NewTracker(context.Background(), 100, sink, WithThrottle(time.Hour))

	tracker.Begin("start")
	tracker.Update(1, "a")
	tracker.Update(2, "b")
	tracker.Complete("done")

	// Begin and Complete always publish; the throttled middle updates do not.
	updates := sink.all()
	require.Len(t, updates, 2)
	assert.Equal(t, "started", updates[0].Status)
	assert.Equal(t, "completed", updates[1].Status)
}

func TestTracker_ErrorPublishesFailed(t *testing.T) {
	sink := &memorySink{}
	tracker := NewTracker(context.Background(), 5, sink, WithThrottle(0))

	tracker.Begin("start")
	tracker.Error("chunk 2", assert.AnError)

	updates := sink.all()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, "failed", last.Status)
	assert.Contains(t, last.Message, assert.AnError.Error())
	assert.True(t, sink.closed)
}

func TestBoard_Totals(t *testing.T) {
	board := NewBoard(4)
	board.Set(0, 5, 10)
	board.Set(1, 10, 10)
	board.Set(3, 2, 13)

	done, total := board.Totals()
	assert.Equal(t, 17, done)
	assert.Equal(t, 33, total)

	rows := board.Snapshot()
	require.Len(t, rows, 4)
	assert.Equal(t, Row{Done: 10, Total: 10}, rows[1])
	assert.Equal(t, Row{}, rows[2])
}

func TestCLISink_CIOutput(t *testing.T) {
	var buf bytes.Buffer
	sink := newCLISink(&buf, true)

	ctx := context.Background()
	require.NoError(t, sink.Publish(ctx, Update{Status: "started", Message: "begin"}))
	require.NoError(t, sink.Publish(ctx, Update{Status: "running", Done: 3, Total: 10, Percentage: 30, Message: "working"}))
	require.NoError(t, sink.Publish(ctx, Update{Status: "completed", Message: "all done"}))
	require.NoError(t, sink.Close())

	out := buf.String()
	assert.Contains(t, out, "[BEGIN] begin")
	assert.Contains(t, out, "[3/10] [30%] working")
	assert.Contains(t, out, "[COMPLETE] all done")
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, "[░░░░░░░░░░░░░░░░░░░░]", renderProgressBar(0))
	assert.Equal(t, "[██████████░░░░░░░░░░]", renderProgressBar(50))
	assert.Equal(t, "[████████████████████]", renderProgressBar(100))
}
