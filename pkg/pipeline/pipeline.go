// Package pipeline assembles configured loaders, featurizers,
// transformers and augmentations into dataset preparation runs.
//
// A Pipeline is built from a validated config.Config. Prepare executes
// the configured strategy: online runs featurize lazily on access with
// warm featurizer state restored from cache, cached runs featurize the
// whole dataset up front across worker goroutines and persist the
// result, and PrepareFiles exports per-sample feature files consumed
// later by the precomputed featurizer.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepkit/prepkit/pkg/cache"
	"github.com/prepkit/prepkit/pkg/config"
	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/factory"
	"github.com/prepkit/prepkit/pkg/loader"
	"github.com/prepkit/prepkit/pkg/logger"
	"github.com/prepkit/prepkit/pkg/metrics"
	"github.com/prepkit/prepkit/pkg/progress"
	"github.com/prepkit/prepkit/pkg/transform"
)

// Option adjusts pipeline construction.
type Option func(*options)

type options struct {
	logger    *zerolog.Logger
	sink      progress.Sink
	collector *metrics.Collector
}

// WithLogger routes pipeline logging through log instead of the
// run-directory logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.logger = &log }
}

// WithProgressSink streams chunk progress to sink during bulk runs.
func WithProgressSink(sink progress.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithMetrics records run, sample and cache metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *options) { o.collector = collector }
}

// Pipeline prepares datasets according to a validated configuration.
// A pipeline may be reused across runs but not from multiple
// goroutines at once: warm featurizer state is shared between runs.
type Pipeline struct {
	cfg       *config.Config
	log       zerolog.Logger
	store     *cache.Store
	bus       *events.Bus
	collector *metrics.Collector
	sink      progress.Sink

	featurizers   []transform.Featurizer
	transformers  []transform.Transformer
	augmentations []transform.Augmentation

	runDir  string
	closers []io.Closer
}

// New validates cfg, materializes the run directory when an output
// path is configured and constructs every configured stage through the
// factory. Stage construction failures surface here, before any data
// is read.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{cfg: cfg, sink: progress.NopSink{}}
	if o.sink != nil {
		p.sink = o.sink
	}

	if cfg.OutputPath != "" {
		runDir, err := cfg.MaterializeOutput()
		if err != nil {
			return nil, err
		}
		p.runDir = runDir
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	switch {
	case o.logger != nil:
		p.log = *o.logger
	case p.runDir != "":
		runLog, closer, err := logger.NewRunLogger(level, p.runDir)
		if err != nil {
			return nil, err
		}
		p.log = runLog
		p.closers = append(p.closers, closer)
	default:
		p.log = logger.New(level)
	}

	p.collector = o.collector
	if p.collector == nil {
		p.collector = metrics.NewNop()
	}

	store, err := cache.NewStore(cfg.CacheLocation, p.log, p.collector)
	if err != nil {
		return nil, err
	}
	p.store = store

	if err := p.buildStages(); err != nil {
		return nil, err
	}

	p.bus = events.NewBus(p.log)
	if err := p.bindObservers(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Pipeline) buildStages() error {
	device := transform.Device(p.cfg.Device())

	for _, spec := range p.cfg.Featurizers {
		obj, err := factory.Create("Featurizer", spec, nil)
		if err != nil {
			return err
		}
		feat, ok := obj.(transform.Featurizer)
		if !ok {
			return errors.Internalf("pipeline", "%T does not implement transform.Featurizer", obj)
		}
		feat.SetDevice(device)
		p.featurizers = append(p.featurizers, feat)
	}

	for _, spec := range p.cfg.Transformers {
		obj, err := factory.Create("Transformer", spec, nil)
		if err != nil {
			return err
		}
		tr, ok := obj.(transform.Transformer)
		if !ok {
			return errors.Internalf("pipeline", "%T does not implement transform.Transformer", obj)
		}
		p.transformers = append(p.transformers, tr)
	}

	for _, spec := range p.cfg.Augmentations {
		obj, err := factory.Create("Augmentation", spec, nil)
		if err != nil {
			return err
		}
		aug, ok := obj.(transform.Augmentation)
		if !ok {
			return errors.Internalf("pipeline", "%T does not implement transform.Augmentation", obj)
		}
		p.augmentations = append(p.augmentations, aug)
	}

	return nil
}

// bindObservers constructs each configured handler and subscribes it to
// its event type. The run logger is handed to constructors as a
// materialized parameter.
func (p *Pipeline) bindObservers() error {
	for eventType, specs := range p.cfg.Observers {
		for _, spec := range specs {
			obj, err := factory.Create("EventHandler", spec, map[string]any{"logger": p.log})
			if err != nil {
				return err
			}
			handler, ok := obj.(EventHandler)
			if !ok {
				return errors.Internalf("pipeline", "%T does not implement pipeline.EventHandler", obj)
			}
			p.bus.Subscribe(eventType, handler.Handle)
		}
	}
	return nil
}

// Result is the outcome of a preparation run.
type Result struct {
	// Data holds the prepared samples. Cached runs return a fully
	// materialized collection, online runs prepare samples as they are
	// read.
	Data dataset.Collection

	FeatureCount int
	ClassCount   int

	// Size counts usable samples, augmented ones included.
	Size int

	// Dropped counts source samples removed by the error policy.
	Dropped int
}

// Prepare executes the configured strategy and returns the prepared
// dataset.
func (p *Pipeline) Prepare(ctx context.Context) (*Result, error) {
	switch p.cfg.Strategy {
	case config.StrategyOnline:
		return p.prepareOnline(ctx)
	case config.StrategyCached:
		return p.prepareCached(ctx)
	case config.StrategyFiles:
		return nil, errors.Configf("pipeline", "files strategy exports feature files, call PrepareFiles")
	default:
		return nil, errors.Configf("pipeline", "unknown strategy %q", p.cfg.Strategy)
	}
}

// preprocess runs every featurizer and then every transformer on the
// sample in configuration order, mutating it in place.
func (p *Pipeline) preprocess(sample *dataset.Sample) error {
	for _, feat := range p.featurizers {
		if err := feat.Run(sample); err != nil {
			return err
		}
	}
	for _, tr := range p.transformers {
		if err := tr.Apply(sample); err != nil {
			return err
		}
	}
	return nil
}

// ReverseTransforms undoes the configured transformers in reverse
// order, mapping transformed outputs back to raw label space.
func (p *Pipeline) ReverseTransforms(sample *dataset.Sample) error {
	for i := len(p.transformers) - 1; i >= 0; i-- {
		if err := p.transformers[i].Reverse(sample); err != nil {
			return err
		}
	}
	return nil
}

// failRun records a failed run before the error propagates.
func (p *Pipeline) failRun(strategy string, start time.Time, err error) error {
	p.collector.RecordRun(strategy, "failed", time.Since(start))
	return err
}

func (p *Pipeline) buildLoader() (loader.Loader, error) {
	obj, err := factory.Create("Loader", p.cfg.Loader, nil)
	if err != nil {
		return nil, err
	}
	src, ok := obj.(loader.Loader)
	if !ok {
		return nil, errors.Internalf("pipeline", "%T does not implement loader.Loader", obj)
	}
	return src, nil
}

// RunDir returns the materialized run directory, or "" when no output
// path is configured.
func (p *Pipeline) RunDir() string {
	return p.runDir
}

// Bus exposes the run event bus so callers can subscribe handlers
// beyond the configured observers.
func (p *Pipeline) Bus() *events.Bus {
	return p.bus
}

// Close drains the event bus and releases the run log.
func (p *Pipeline) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := p.bus.Close(ctx)
	for _, closer := range p.closers {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
