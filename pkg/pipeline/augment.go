package pipeline

import (
	"context"
	"fmt"

	"github.com/prepkit/prepkit/pkg/cache"
	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/factory"
	"github.com/prepkit/prepkit/pkg/loader"
	"github.com/prepkit/prepkit/pkg/transform"
)

// loadAugmented produces the samples of every static augmentation,
// each behind its own cache entry keyed by the loader spec, the
// augmentation spec and the source fingerprint. Bulk runs store the
// samples featurized; online runs store them raw and featurize on
// access, which the key records so the two modes never collide.
//
// IDs are assigned after caching, continuing past the source dataset
// in configuration order, so identifiers stay stable regardless of
// which augmentations were served from cache.
func (p *Pipeline) loadAugmented(ctx context.Context, source loader.Loader, fingerprint string, featurize bool) ([]*dataset.Sample, error) {
	if len(p.augmentations) == 0 {
		return nil, nil
	}

	codec := cache.NewGobCodec[[]*dataset.Sample]()
	var all []*dataset.Sample

	for i, aug := range p.augmentations {
		spec := p.cfg.Augmentations[i]
		name := augmentationName(spec, aug)

		keyParams := map[string]any{
			"loader":              p.cfg.Loader,
			"static_augmentation": spec,
			"last_modified":       fingerprint,
		}
		if !featurize {
			keyParams["online"] = true
		}

		op := cache.Operation[[]*dataset.Sample]{
			KeyParams:  keyParams,
			ClearCache: p.cfg.ClearCache,
			Producer: func(ctx context.Context, _ map[string]any) ([]*dataset.Sample, error) {
				p.log.Info().Str("augmentation", name).Msg("Generating augmented samples")
				generated, err := aug.Generate(source)
				if err != nil {
					return nil, err
				}
				if !featurize {
					return generated, nil
				}
				return p.featurizeGenerated(ctx, generated, source)
			},
		}

		samples, err := cache.Execute(ctx, p.store, codec, op)
		if err != nil {
			return nil, err
		}

		all = append(all, samples...)
		p.collector.Pipeline().AugmentedSamples.Add(float64(len(samples)))
		p.bus.PublishAsync(ctx, events.AugmentationApplied{Name: name, Generated: len(samples)})
	}

	for j, sample := range all {
		sample.ID = int64(source.Len() + j)
	}

	return all, nil
}

// featurizeGenerated runs the bulk featurization path over freshly
// generated samples. The batch always stays in memory so it can be
// cached as a value.
func (p *Pipeline) featurizeGenerated(ctx context.Context, generated []*dataset.Sample, source loader.Loader) ([]*dataset.Sample, error) {
	wrapped := loader.NewListLoader(dataset.NewList(generated...), source.FeatureCount(), source.ClassCount())
	prepared, _, err := p.featurizeAll(ctx, wrapped, false)
	if err != nil {
		return nil, err
	}
	return prepared.(*dataset.List).Samples(), nil
}

func augmentationName(spec factory.Spec, aug transform.Augmentation) string {
	if name, ok := spec[factory.TypeKey].(string); ok {
		return name
	}
	return fmt.Sprintf("%T", aug)
}
