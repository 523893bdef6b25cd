// Package progress contains progress tracking primitives for preparation
// runs. It is transport-agnostic: all I/O is delegated to a Sink.
package progress

import (
	"context"
	"sync"
	"time"
)

// Sink is a thin port that writes updates somewhere (CLI, log, test buffer).
type Sink interface {
	Publish(ctx context.Context, u Update) error
	Close() error
}

// Update describes an atomic change in run state.
type Update struct {
	Done       int           `json:"done"`
	Total      int           `json:"total"`
	Message    string        `json:"message"`
	StartedAt  time.Time     `json:"started_at"`
	Percentage int           `json:"percentage"` // 0-100
	ETA        time.Duration `json:"eta,omitempty"`
	Status     string        `json:"status,omitempty"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithHeartbeat makes Tracker emit an update every d while work is in progress.
func WithHeartbeat(d time.Duration) Option {
	return func(t *Tracker) { t.heartbeat = d }
}

// WithThrottle sets a minimum gap between consecutive updates.
func WithThrottle(d time.Duration) Option {
	return func(t *Tracker) { t.throttle = d }
}

// Tracker folds the coordinator's poll results into sink updates.
type Tracker struct {
	sink      Sink
	total     int
	start     time.Time
	last      time.Time
	current   int
	heartbeat time.Duration
	throttle  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewTracker creates a progress tracker over total units of work.
func NewTracker(ctx context.Context, total int, sink Sink, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(ctx)
	t := &Tracker{
		sink:     sink,
		total:    total,
		start:    time.Now(),
		last:     time.Time{},
		throttle: 100 * time.Millisecond,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Begin must be called once.
func (t *Tracker) Begin(msg string) {
	t.publish(0, msg, "started")
	if t.heartbeat > 0 {
		t.wg.Add(1)
		go t.runHeartbeat()
	}
}

// Update moves progress forward.
func (t *Tracker) Update(done int, msg string) {
	t.publish(done, msg, "running")
}

// Complete marks the run done.
func (t *Tracker) Complete(msg string) {
	t.publish(t.total, msg, "completed")
	t.Finish()
}

// Error marks the run failed.
func (t *Tracker) Error(msg string, err error) {
	t.mu.Lock()
	done := t.current
	t.mu.Unlock()
	t.publish(done, msg+": "+err.Error(), "failed")
	t.Finish()
}

// Finish stops the heartbeat and drains the sink.
func (t *Tracker) Finish() {
	t.cancel()
	t.wg.Wait()
	_ = t.sink.Close()
}

// Current returns the last published unit count.
func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Total returns the total unit count.
func (t *Tracker) Total() int {
	return t.total
}

func (t *Tracker) publish(done int, msg, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Throttling (except terminal updates)
	if time.Since(t.last) < t.throttle && status == "running" && done < t.total {
		return
	}
	t.current = done
	t.last = time.Now()

	u := Update{
		Done:      done,
		Total:     t.total,
		Message:   msg,
		StartedAt: t.start,
		Status:    status,
	}
	if t.total > 0 {
		u.Percentage = int(float64(done) / float64(t.total) * 100)
	}

	if done > 0 && done < t.total {
		elapsed := time.Since(t.start)
		u.ETA = time.Duration(float64(elapsed) / float64(done) * float64(t.total-done))
	}

	_ = t.sink.Publish(t.ctx, u)
}

func (t *Tracker) runHeartbeat() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			done := t.current
			t.mu.Unlock()
			t.publish(done, "still working...", "running")
		case <-t.ctx.Done():
			return
		}
	}
}
