// Package metrics exposes Prometheus collectors for preparation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Collector groups the module's metrics on a private registry.
type Collector struct {
	logger   zerolog.Logger
	registry *prometheus.Registry

	pipeline *PipelineMetrics
	cache    *CacheMetrics
}

// PipelineMetrics tracks preparation pipeline activity.
type PipelineMetrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	SamplesProcessed *prometheus.CounterVec
	ChunkDuration    prometheus.Histogram
	ActiveWorkers    prometheus.Gauge
	AugmentedSamples prometheus.Counter
}

// CacheMetrics tracks content-addressed cache activity.
type CacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Saves     prometheus.Counter
	Deletes   prometheus.Counter
	EntrySize prometheus.Histogram
}

// Config configures the metrics collector.
type Config struct {
	Namespace string               `json:"namespace"`
	Subsystem string               `json:"subsystem"`
	Registry  *prometheus.Registry `json:"-"`
	Buckets   []float64            `json:"buckets"`
}

// New creates a metrics collector.
func New(config Config, logger zerolog.Logger) *Collector {
	if config.Namespace == "" {
		config.Namespace = "prepkit"
	}
	if config.Subsystem == "" {
		config.Subsystem = "prep"
	}
	if config.Buckets == nil {
		config.Buckets = prometheus.DefBuckets
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		logger:   logger.With().Str("component", "metrics").Logger(),
		registry: registry,
	}
	c.pipeline = c.createPipelineMetrics(config)
	c.cache = c.createCacheMetrics(config)

	return c
}

// NewNop creates a collector on a throwaway registry.
func NewNop() *Collector {
	return New(Config{}, zerolog.Nop())
}

func (c *Collector) createPipelineMetrics(config Config) *PipelineMetrics {
	return &PipelineMetrics{
		RunsTotal: promauto.With(c.registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "runs_total",
			Help:      "Total number of preparation runs",
		}, []string{"strategy", "status"}),

		RunDuration: promauto.With(c.registry).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "run_duration_seconds",
			Help:      "Preparation run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
		}, []string{"strategy"}),

		SamplesProcessed: promauto.With(c.registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "samples_processed_total",
			Help:      "Samples processed by outcome",
		}, []string{"outcome"}),

		ChunkDuration: promauto.With(c.registry).NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "chunk_duration_seconds",
			Help:      "Chunk featurization duration in seconds",
			Buckets:   config.Buckets,
		}),

		ActiveWorkers: promauto.With(c.registry).NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "active_workers",
			Help:      "Number of chunk workers currently running",
		}),

		AugmentedSamples: promauto.With(c.registry).NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "augmented_samples_total",
			Help:      "Total number of samples generated by augmentations",
		}),
	}
}

func (c *Collector) createCacheMetrics(config Config) *CacheMetrics {
	return &CacheMetrics{
		Hits: promauto.With(c.registry).NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),

		Misses: promauto.With(c.registry).NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}),

		Saves: promauto.With(c.registry).NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cache_saves_total",
			Help:      "Total number of cache entries written",
		}),

		Deletes: promauto.With(c.registry).NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cache_deletes_total",
			Help:      "Total number of cache entries deleted",
		}),

		EntrySize: promauto.With(c.registry).NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cache_entry_bytes",
			Help:      "Size of written cache entries in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
}

// Pipeline returns the pipeline metric group.
func (c *Collector) Pipeline() *PipelineMetrics {
	return c.pipeline
}

// Cache returns the cache metric group.
func (c *Collector) Cache() *CacheMetrics {
	return c.cache
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordRun records a finished run.
func (c *Collector) RecordRun(strategy, status string, duration time.Duration) {
	c.pipeline.RunsTotal.WithLabelValues(strategy, status).Inc()
	c.pipeline.RunDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordSample records a sample outcome.
func (c *Collector) RecordSample(outcome string) {
	c.pipeline.SamplesProcessed.WithLabelValues(outcome).Inc()
}

// RecordChunk records a chunk's featurization duration.
func (c *Collector) RecordChunk(duration time.Duration) {
	c.pipeline.ChunkDuration.Observe(duration.Seconds())
}
