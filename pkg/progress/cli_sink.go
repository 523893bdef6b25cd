package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

// CLISink renders progress on a terminal with a spinner. In CI
// environments it falls back to plain line output.
type CLISink struct {
	spinner   *spinner.Spinner
	isCI      bool
	out       io.Writer
	startTime time.Time
	started   bool
	mu        sync.Mutex // Only protects spinner operations
}

// NewCLISink creates a CLI progress sink writing to stdout.
func NewCLISink() *CLISink {
	return newCLISink(os.Stdout, os.Getenv("CI") == "true")
}

func newCLISink(out io.Writer, isCI bool) *CLISink {
	s := &CLISink{
		isCI:      isCI,
		out:       out,
		startTime: time.Now(),
	}

	// Only use spinner in non-CI environments
	if !s.isCI {
		s.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
		s.spinner.Prefix = "Preparing: "
		_ = s.spinner.Color("cyan", "bold")
	}

	return s
}

// Publish implements Sink.
func (s *CLISink) Publish(_ context.Context, u Update) error {
	switch u.Status {
	case "started":
		return s.begin(u.Message)
	case "completed":
		return s.complete(u.Message)
	case "failed":
		return s.fail(u)
	default:
		return s.update(u)
	}
}

func (s *CLISink) begin(message string) error {
	if s.isCI {
		fmt.Fprintf(s.out, "[BEGIN] %s\n", message)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spinner != nil && !s.started {
		s.spinner.Suffix = fmt.Sprintf(" %s", message)
		s.spinner.Start()
		s.started = true
	}

	return nil
}

func (s *CLISink) update(u Update) error {
	if s.isCI {
		fmt.Fprintf(s.out, "[%d/%d] [%d%%] %s\n", u.Done, u.Total, u.Percentage, u.Message)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spinner != nil {
		s.spinner.Suffix = fmt.Sprintf(" %s %d/%d %s", renderProgressBar(u.Percentage), u.Done, u.Total, u.Message)
	}

	return nil
}

func (s *CLISink) complete(message string) error {
	duration := time.Since(s.startTime)
	finalMsg := fmt.Sprintf("%s (completed in %s)", message, duration.Round(time.Second))

	if s.isCI {
		fmt.Fprintf(s.out, "[COMPLETE] %s\n", finalMsg)
		return nil
	}

	s.mu.Lock()
	if s.spinner != nil {
		s.spinner.Stop()
	}
	s.mu.Unlock()

	fmt.Fprintf(s.out, "✅ %s\n", finalMsg)
	return nil
}

func (s *CLISink) fail(u Update) error {
	if s.isCI {
		fmt.Fprintf(s.out, "[FAILED] %s\n", u.Message)
		return nil
	}

	s.mu.Lock()
	if s.spinner != nil {
		s.spinner.Stop()
	}
	s.mu.Unlock()

	fmt.Fprintf(s.out, "❌ %s\n", u.Message)
	return nil
}

// Close implements Sink.
func (s *CLISink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spinner != nil {
		s.spinner.Stop()
	}
	return nil
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(percentage int) string {
	const barWidth = 20
	filled := (percentage * barWidth) / 100
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	return fmt.Sprintf("[%s%s]",
		strings.Repeat("█", filled),
		strings.Repeat("░", empty))
}
