package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/factory"
)

func TestLoggingEventHandler_BuildsThroughFactory(t *testing.T) {
	obj, err := factory.Create("EventHandler", factory.Spec{
		"type":  "logging",
		"level": "debug",
	}, map[string]any{"logger": zerolog.Nop()})
	require.NoError(t, err)

	handler, ok := obj.(*LoggingEventHandler)
	require.True(t, ok)
	assert.NoError(t, handler.Handle(context.Background(), events.RunStarted{Strategy: "cached", Samples: 3}))
}

func TestLoggingEventHandler_RejectsUnknownLevel(t *testing.T) {
	_, err := factory.Create("EventHandler", factory.Spec{
		"type":  "logging",
		"level": "loud",
	}, nil)
	require.Error(t, err)
}

func TestFileEventHandler_AppendsEventLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	obj, err := factory.Create("EventHandler", factory.Spec{
		"type": "file",
		"path": path,
	}, nil)
	require.NoError(t, err)
	handler := obj.(*FileEventHandler)

	ctx := context.Background()
	require.NoError(t, handler.Handle(ctx, events.RunStarted{Strategy: "cached", Samples: 4, Workers: 2}))
	require.NoError(t, handler.Handle(ctx, events.RunCompleted{Strategy: "cached", Samples: 4, Duration: time.Second}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, events.TypeRunStarted, first["type"])
	assert.NotEmpty(t, first["time"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, events.TypeRunCompleted, second["type"])
}

func TestFileEventHandler_RequiresPath(t *testing.T) {
	_, err := factory.Create("EventHandler", factory.Spec{"type": "file"}, nil)
	require.Error(t, err)
}

func TestPipeline_ConfiguredObserversReceiveEvents(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "completed.ndjson")
	drops := filepath.Join(t.TempDir(), "drops.ndjson")

	rows := numberedRows(6)
	rows[1] = "1,,1.5"
	rows[4] = "4,,4.5"

	cfg := baseConfig(t, writeCSV(t, rows))
	cfg.Observers = map[string][]factory.Spec{
		events.TypeRunStarted:    {{"type": "logging"}},
		events.TypeRunCompleted:  {{"type": "file", "path": trace}},
		events.TypeSampleDropped: {{"type": "file", "path": drops}},
	}

	p := newTestPipeline(t, cfg)
	result, err := p.Prepare(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.Equal(t, 4, result.Size)

	data, err := os.ReadFile(trace)
	require.NoError(t, err)
	completed := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, completed, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(completed[0]), &record))
	assert.Equal(t, events.TypeRunCompleted, record["type"])

	payload, ok := record["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4), payload["Samples"])
	assert.Equal(t, float64(2), payload["Dropped"])

	data, err = os.ReadFile(drops)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}
