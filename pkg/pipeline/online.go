package pipeline

import (
	"context"
	"time"

	"github.com/prepkit/prepkit/pkg/cache"
	"github.com/prepkit/prepkit/pkg/config"
	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/loader"
	"github.com/prepkit/prepkit/pkg/transform"
)

// prepareOnline returns a dataset that runs the stage chain on every
// access instead of materializing it. Warm-capable featurizer state is
// fitted up front, from cache when possible, so lookups are frozen
// before the first sample is served.
func (p *Pipeline) prepareOnline(ctx context.Context) (*Result, error) {
	start := time.Now()

	source, err := p.buildLoader()
	if err != nil {
		return nil, p.failRun(string(config.StrategyOnline), start, err)
	}
	fingerprint, err := source.Fingerprint()
	if err != nil {
		return nil, p.failRun(string(config.StrategyOnline), start, err)
	}

	p.bus.PublishAsync(ctx, events.RunStarted{
		Strategy: string(config.StrategyOnline),
		Samples:  source.Len(),
		Workers:  1,
	})

	if err := p.warmFeaturizers(ctx, source); err != nil {
		return nil, p.failRun(string(config.StrategyOnline), start, err)
	}

	augmented, err := p.loadAugmented(ctx, source, fingerprint, false)
	if err != nil {
		return nil, p.failRun(string(config.StrategyOnline), start, err)
	}

	data := &onlineCollection{pipeline: p, source: source, augmented: augmented}
	result := &Result{
		Data:         data,
		FeatureCount: source.FeatureCount(),
		ClassCount:   source.ClassCount(),
		Size:         data.Len(),
	}

	duration := time.Since(start)
	p.collector.RecordRun(string(config.StrategyOnline), "success", duration)
	p.bus.PublishAsync(ctx, events.RunCompleted{
		Strategy: string(config.StrategyOnline),
		Samples:  result.Size,
		Duration: duration,
	})
	p.log.Info().
		Int("samples", result.Size).
		Int("augmented", len(augmented)).
		Dur("duration", duration).
		Msg("Online dataset ready")

	return result, nil
}

// warmFeaturizers fits every warm-capable featurizer on the distinct
// values of its input column. The fitted state is cached keyed by the
// value set and the featurizer spec: changed data or configuration
// refits, an unchanged run restores instantly.
func (p *Pipeline) warmFeaturizers(ctx context.Context, source loader.Loader) error {
	codec := cache.NewGobCodec[[]byte]()

	for i, feat := range p.featurizers {
		w, ok := feat.(transform.Warmable)
		if !ok || !w.ShouldCache() {
			continue
		}

		unique, err := w.UniqueInputs(source)
		if err != nil {
			return err
		}
		p.log.Debug().
			Int("featurizer", i).
			Int("unique", len(unique)).
			Msg("Warming featurizer")

		op := cache.Operation[[]byte]{
			KeyParams: map[string]any{
				"unique_data": unique,
				"featurizer":  p.cfg.Featurizers[i],
			},
			ClearCache: p.cfg.ClearCache,
			Producer: func(_ context.Context, _ map[string]any) ([]byte, error) {
				if err := w.Warm(unique); err != nil {
					return nil, err
				}
				return w.ExportState()
			},
		}

		state, err := cache.Execute(ctx, p.store, codec, op)
		if err != nil {
			return err
		}
		if err := w.ImportState(state); err != nil {
			return err
		}
	}
	return nil
}

// onlineCollection serves prepared samples lazily. Source samples are
// cloned and run through the chain on every access; augmented samples
// were generated raw and get the same treatment. Access errors surface
// to the caller, there is no drop policy on the lazy path.
type onlineCollection struct {
	pipeline  *Pipeline
	source    loader.Loader
	augmented []*dataset.Sample
}

func (c *onlineCollection) Len() int {
	return c.source.Len() + len(c.augmented)
}

func (c *onlineCollection) At(i int) (*dataset.Sample, error) {
	base := c.source.Len()

	var sample *dataset.Sample
	switch {
	case i >= base && i-base < len(c.augmented):
		sample = c.augmented[i-base].Clone()
	case i >= 0 && i < base:
		loaded, err := c.source.Sample(i)
		if err != nil {
			return nil, err
		}
		sample = loaded.Clone()
	default:
		return nil, errors.Internalf("pipeline", "index %d out of range [0,%d)", i, c.Len())
	}

	if err := c.pipeline.preprocess(sample); err != nil {
		return nil, err
	}
	return sample, nil
}
