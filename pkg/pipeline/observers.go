package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/factory"
	"github.com/prepkit/prepkit/pkg/logger"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "LoggingEventHandler",
		Family: "EventHandler",
		Params: []factory.ParamSpec{
			{Name: "level", Kind: factory.KindScalar},
		},
		New: newLoggingEventHandler,
	})
	factory.Register(factory.Descriptor{
		Name:   "FileEventHandler",
		Family: "EventHandler",
		Params: []factory.ParamSpec{
			{Name: "path", Kind: factory.KindScalar},
		},
		New: newFileEventHandler,
	})
}

// EventHandler reacts to run lifecycle events. Implementations are built
// through the factory from the observers section of a configuration and
// subscribed to the event types listed there.
type EventHandler interface {
	Handle(ctx context.Context, event events.Event) error
}

// LoggingEventHandler writes every delivered event to the run log.
type LoggingEventHandler struct {
	log   zerolog.Logger
	level zerolog.Level
}

func newLoggingEventHandler(params map[string]any) (any, error) {
	p := factory.Params(params)
	raw := p.String("level", "info")
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return nil, errors.Validationf("pipeline", "invalid observer log level %q", raw)
	}

	log := logger.Default()
	if v, ok := p.Any("logger"); ok {
		if l, ok := v.(zerolog.Logger); ok {
			log = l
		}
	}
	return &LoggingEventHandler{log: log, level: level}, nil
}

// Handle logs the event type and payload at the configured level.
func (h *LoggingEventHandler) Handle(_ context.Context, event events.Event) error {
	h.log.WithLevel(h.level).
		Str("event", event.EventType()).
		Interface("payload", event).
		Msg("Pipeline event")
	return nil
}

// FileEventHandler appends each event as a JSON line to a trace file,
// producing a record of the run that survives process exit.
type FileEventHandler struct {
	path string
}

func newFileEventHandler(params map[string]any) (any, error) {
	path, err := factory.Params(params).RequireString("path")
	if err != nil {
		return nil, err
	}
	return &FileEventHandler{path: path}, nil
}

type eventRecord struct {
	Type  string    `json:"type"`
	Time  time.Time `json:"time"`
	Event any       `json:"event"`
}

// Handle appends the event to the trace file.
func (h *FileEventHandler) Handle(_ context.Context, event events.Event) error {
	line, err := json.Marshal(eventRecord{
		Type:  event.EventType(),
		Time:  time.Now().UTC(),
		Event: event,
	})
	if err != nil {
		return errors.Serializationf("pipeline", "failed to encode event %s: %v", event.EventType(), err)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WrapAs(err, errors.CategoryStorage, "pipeline", "failed to open event trace %s", h.path)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.WrapAs(err, errors.CategoryStorage, "pipeline", "failed to append event to %s", h.path)
	}
	return nil
}
