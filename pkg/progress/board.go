package progress

import "sync"

// Row is one worker's progress.
type Row struct {
	Done  int
	Total int
}

// Board aggregates per-worker rows. Workers report over a channel and
// the coordinator folds the reports in; workers never touch the board.
type Board struct {
	mu   sync.Mutex
	rows []Row
}

// NewBoard creates a board with one row per worker.
func NewBoard(workers int) *Board {
	return &Board{rows: make([]Row, workers)}
}

// Set records a worker's progress.
func (b *Board) Set(worker, done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[worker] = Row{Done: done, Total: total}
}

// Totals sums all rows.
func (b *Board) Totals() (done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.rows {
		done += r.Done
		total += r.Total
	}
	return done, total
}

// Snapshot returns a copy of the rows.
func (b *Board) Snapshot() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Row, len(b.rows))
	copy(out, b.rows)
	return out
}
