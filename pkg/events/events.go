// Package events provides the run-scoped event bus for the preparation system.
package events

import "time"

// Event represents a domain event raised during a preparation run.
// Events decouple the pipeline from observers configured at run construction.
type Event interface {
	// EventType returns the type name of this event
	EventType() string
}

const (
	TypeRunStarted          = "run.started"
	TypeRunCompleted        = "run.completed"
	TypeSampleDropped       = "sample.dropped"
	TypeAugmentationApplied = "augmentation.applied"
)

// RunStarted is published once before any sample is processed.
type RunStarted struct {
	Strategy string
	Samples  int
	Workers  int
}

func (RunStarted) EventType() string { return TypeRunStarted }

// RunCompleted is published after the merged dataset is assembled.
type RunCompleted struct {
	Strategy string
	Samples  int
	Dropped  int
	Duration time.Duration
}

func (RunCompleted) EventType() string { return TypeRunCompleted }

// SampleDropped is published for every sample removed by the error policy.
type SampleDropped struct {
	SampleID    int64
	Stage       string
	Reason      string
	Recoverable bool
}

func (SampleDropped) EventType() string { return TypeSampleDropped }

// AugmentationApplied is published after a static augmentation's samples
// have been generated and merged.
type AugmentationApplied struct {
	Name      string
	Generated int
}

func (AugmentationApplied) EventType() string { return TypeAugmentationApplied }
