package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepkit/prepkit/pkg/config"
	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/factory"
	"github.com/prepkit/prepkit/pkg/metrics"
)

func writeCSV(t *testing.T, rows []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	content := strings.Join(append([]string{"id,text,value"}, rows...), "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func numberedRows(n int) []string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = fmt.Sprintf("%d,sample number %d,%d.5", i, i, i)
	}
	return rows
}

func baseConfig(t *testing.T, csvPath string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.CacheLocation = t.TempDir()
	cfg.Loader = factory.Spec{
		"type":           "csv",
		"input_path":     csvPath,
		"input_columns":  []any{"text"},
		"output_columns": []any{"value"},
		"id_column":      "id",
	}
	cfg.Featurizers = []factory.Spec{
		{"type": "token", "inputs": []any{"text"}},
	}
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := New(cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func collectIDs(t *testing.T, data dataset.Collection) []int64 {
	t.Helper()
	ids := make([]int64, 0, data.Len())
	for i := 0; i < data.Len(); i++ {
		s, err := data.At(i)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	return ids
}

func TestPipeline_CachedPreparesAllSamples(t *testing.T) {
	cfg := baseConfig(t, writeCSV(t, numberedRows(6)))
	cfg.Transformers = []factory.Spec{{"type": "log"}}

	p := newTestPipeline(t, cfg)
	result, err := p.Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, result.Size)
	assert.Equal(t, 0, result.Dropped)
	assert.Equal(t, 1, result.FeatureCount)
	assert.Equal(t, 1, result.ClassCount)

	for i := 0; i < 6; i++ {
		s, err := result.Data.At(i)
		require.NoError(t, err)
		assert.Equal(t, int64(i), s.ID)

		tokens, ok := s.Inputs["text"].([]int64)
		require.True(t, ok, "text should be tokenized")
		assert.Len(t, tokens, 3)

		raw := float64(i) + 0.5
		require.Len(t, s.Outputs, 1)
		assert.InDelta(t, math.Log1p(raw), s.Outputs[0], 1e-9)
	}
}

func TestPipeline_DropsFailingSamplesAndKeepsOrder(t *testing.T) {
	rows := numberedRows(10)
	rows[3] = "3,,3.5"
	rows[7] = "7,,7.5"
	cfg := baseConfig(t, writeCSV(t, rows))

	p := newTestPipeline(t, cfg)

	var droppedEvents []events.SampleDropped
	var mu sync.Mutex
	p.Bus().Subscribe(events.TypeSampleDropped, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		droppedEvents = append(droppedEvents, e.(events.SampleDropped))
		return nil
	})

	result, err := p.Prepare(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.Equal(t, 8, result.Size)
	assert.Equal(t, 2, result.Dropped)
	assert.Equal(t, []int64{0, 1, 2, 4, 5, 6, 8, 9}, collectIDs(t, result.Data))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, droppedEvents, 2)
	ids := []int64{droppedEvents[0].SampleID, droppedEvents[1].SampleID}
	assert.ElementsMatch(t, []int64{3, 7}, ids)
	for _, e := range droppedEvents {
		assert.True(t, e.Recoverable)
	}
}

func TestPipeline_ParallelMergeMatchesSequential(t *testing.T) {
	rows := numberedRows(20)
	alphabet := "abcdefghijklmnopqrstuvwxyz0123456789 "

	run := func(jobs int) *Result {
		cfg := baseConfig(t, writeCSV(t, rows))
		cfg.FeaturizationJobs = jobs
		cfg.Featurizers = []factory.Spec{
			{"type": "one_hot", "inputs": []any{"text"}, "alphabet": alphabet},
		}
		result, err := newTestPipeline(t, cfg).Prepare(context.Background())
		require.NoError(t, err)
		return result
	}

	sequential := run(1)
	parallel := run(4)

	require.Equal(t, sequential.Size, parallel.Size)
	for i := 0; i < sequential.Size; i++ {
		want, err := sequential.Data.At(i)
		require.NoError(t, err)
		got, err := parallel.Data.At(i)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Inputs["text"], got.Inputs["text"])
		assert.Equal(t, want.Outputs, got.Outputs)
	}
}

func TestPipeline_CacheHitSkipsFeaturization(t *testing.T) {
	csvPath := writeCSV(t, numberedRows(5))
	cacheDir := t.TempDir()

	run := func() (*Result, *metrics.Collector) {
		cfg := baseConfig(t, csvPath)
		cfg.CacheLocation = cacheDir
		collector := metrics.New(metrics.Config{}, zerolog.Nop())
		p, err := New(cfg, WithLogger(zerolog.Nop()), WithMetrics(collector))
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })

		result, err := p.Prepare(context.Background())
		require.NoError(t, err)
		return result, collector
	}

	first, c1 := run()
	assert.Equal(t, float64(0), testutil.ToFloat64(c1.Cache().Hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(c1.Cache().Misses))

	second, c2 := run()
	assert.Equal(t, float64(1), testutil.ToFloat64(c2.Cache().Hits))
	assert.Equal(t, float64(0), testutil.ToFloat64(c2.Cache().Misses))

	require.Equal(t, first.Size, second.Size)
	for i := 0; i < first.Size; i++ {
		want, err := first.Data.At(i)
		require.NoError(t, err)
		got, err := second.Data.At(i)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Inputs["text"], got.Inputs["text"])
		assert.Equal(t, want.Outputs, got.Outputs)
	}

	// Touching the source changes its fingerprint and invalidates the
	// entry.
	later := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(csvPath, later, later))
	_, c3 := run()
	assert.Equal(t, float64(1), testutil.ToFloat64(c3.Cache().Misses))
}

func TestPipeline_ClearCacheRecomputes(t *testing.T) {
	csvPath := writeCSV(t, numberedRows(4))
	cacheDir := t.TempDir()

	run := func(clear bool) *metrics.Collector {
		cfg := baseConfig(t, csvPath)
		cfg.CacheLocation = cacheDir
		cfg.ClearCache = clear
		collector := metrics.New(metrics.Config{}, zerolog.Nop())
		p, err := New(cfg, WithLogger(zerolog.Nop()), WithMetrics(collector))
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })

		_, err = p.Prepare(context.Background())
		require.NoError(t, err)
		return collector
	}

	run(false)
	c := run(true)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.Cache().Hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Cache().Misses))
}

func TestPipeline_AugmentationContinuesIdentifiers(t *testing.T) {
	cfg := baseConfig(t, writeCSV(t, numberedRows(100)))
	cfg.Augmentations = []factory.Spec{
		{"type": "noise", "fraction": 0.2, "seed": 7},
	}

	p := newTestPipeline(t, cfg)

	var applied []events.AugmentationApplied
	var mu sync.Mutex
	p.Bus().Subscribe(events.TypeAugmentationApplied, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, e.(events.AugmentationApplied))
		return nil
	})

	result, err := p.Prepare(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	require.Equal(t, 120, result.Size)
	for i := 100; i < 120; i++ {
		s, err := result.Data.At(i)
		require.NoError(t, err)
		assert.Equal(t, int64(i), s.ID)

		_, ok := s.Inputs["text"].([]int64)
		assert.True(t, ok, "augmented samples should be featurized")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, applied, 1)
	assert.Equal(t, "noise", applied[0].Name)
	assert.Equal(t, 20, applied[0].Generated)
}

func TestPipeline_DiskBackedRun(t *testing.T) {
	csvPath := writeCSV(t, numberedRows(12))
	cacheDir := t.TempDir()
	diskDir := t.TempDir()

	diskConfig := func() *config.Config {
		cfg := baseConfig(t, csvPath)
		cfg.CacheLocation = cacheDir
		cfg.UseDisk = true
		cfg.DiskDir = diskDir
		cfg.FeaturizationJobs = 3
		return cfg
	}

	first, err := New(diskConfig(), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	result, err := first.Prepare(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12, result.Size)
	_, ok := result.Data.(*dataset.DiskList)
	assert.True(t, ok)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, collectIDs(t, result.Data))
	require.NoError(t, first.Close())

	// Consumed chunk lists are dropped after the merge, only the merged
	// artifact remains.
	entries, err := os.ReadDir(diskDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	collector := metrics.New(metrics.Config{}, zerolog.Nop())
	second, err := New(diskConfig(), WithLogger(zerolog.Nop()), WithMetrics(collector))
	require.NoError(t, err)

	reopened, err := second.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.Cache().Hits))
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, collectIDs(t, reopened.Data))
	require.NoError(t, second.Close())
}

func TestPipeline_DiskArtifactGoneRebuildsOnce(t *testing.T) {
	csvPath := writeCSV(t, numberedRows(6))
	cacheDir := t.TempDir()
	diskDir := t.TempDir()

	diskConfig := func() *config.Config {
		cfg := baseConfig(t, csvPath)
		cfg.CacheLocation = cacheDir
		cfg.UseDisk = true
		cfg.DiskDir = diskDir
		return cfg
	}

	first, err := New(diskConfig(), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = first.Prepare(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Wipe the materialized bolt files but keep the cache entry that
	// points at them.
	entries, err := os.ReadDir(diskDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, os.Remove(filepath.Join(diskDir, e.Name())))
	}

	second, err := New(diskConfig(), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	result, err := second.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, result.Size)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, collectIDs(t, result.Data))
	require.NoError(t, second.Close())
}

func TestPipeline_MissingSourceIsFatal(t *testing.T) {
	cfg := baseConfig(t, filepath.Join(t.TempDir(), "absent.csv"))

	p, err := New(cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryStorage))

	// A failed run must not leave a cache entry behind.
	entries, err := os.ReadDir(cfg.CacheLocation)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipeline_FilesStrategyRedirects(t *testing.T) {
	cfg := baseConfig(t, writeCSV(t, numberedRows(2)))
	cfg.Strategy = config.StrategyFiles
	cfg.Export = &config.ExportConfig{
		Folder: t.TempDir(),
		Fields: []string{"text"},
	}

	p := newTestPipeline(t, cfg)
	_, err := p.Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestPipeline_UnknownStageFailsConstruction(t *testing.T) {
	cfg := baseConfig(t, writeCSV(t, numberedRows(2)))
	cfg.Featurizers = []factory.Spec{{"type": "bogus"}}

	_, err := New(cfg, WithLogger(zerolog.Nop()))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryResolution))
}
