package progress

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes progress updates to a structured logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs every update.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish implements Sink.
func (s *LogSink) Publish(_ context.Context, u Update) error {
	event := s.logger.Info()
	if u.Status == "failed" {
		event = s.logger.Error()
	}
	event.
		Int("done", u.Done).
		Int("total", u.Total).
		Int("percentage", u.Percentage).
		Str("status", u.Status)
	if u.ETA > 0 {
		event.Dur("eta", u.ETA)
	}
	event.Msg(u.Message)
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error {
	return nil
}

// NopSink discards every update.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(context.Context, Update) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }
