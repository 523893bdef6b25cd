package pipeline

import (
	"context"
	"time"

	"github.com/prepkit/prepkit/pkg/cache"
	"github.com/prepkit/prepkit/pkg/config"
	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/loader"
)

// prepareCached runs the whole chain eagerly and wraps the result in a
// cache entry keyed by the loader spec, the stage specs and the source
// fingerprint. A run with an unchanged configuration over unchanged
// data skips featurization entirely.
func (p *Pipeline) prepareCached(ctx context.Context) (*Result, error) {
	start := time.Now()
	strategy := string(config.StrategyCached)

	source, err := p.buildLoader()
	if err != nil {
		return nil, p.failRun(strategy, start, err)
	}
	fingerprint, err := source.Fingerprint()
	if err != nil {
		return nil, p.failRun(strategy, start, err)
	}

	p.bus.PublishAsync(ctx, events.RunStarted{
		Strategy: strategy,
		Samples:  source.Len(),
		Workers:  p.cfg.FeaturizationJobs,
	})

	keyParams := map[string]any{
		"loader":        p.cfg.Loader,
		"featurizers":   p.cfg.Featurizers,
		"transformers":  p.cfg.Transformers,
		"last_modified": fingerprint,
	}

	var (
		data    dataset.Collection
		dropped int
	)
	if p.cfg.UseDisk {
		data, dropped, err = p.cachedDisk(ctx, source, keyParams)
	} else {
		data, dropped, err = p.cachedMemory(ctx, source, keyParams)
	}
	if err != nil {
		return nil, p.failRun(strategy, start, err)
	}

	augmented, err := p.loadAugmented(ctx, source, fingerprint, true)
	if err != nil {
		return nil, p.failRun(strategy, start, err)
	}
	if len(augmented) > 0 {
		// Chained rather than appended: a disk-backed collection here is
		// the shared cache artifact and must not grow per run.
		data = dataset.NewChain(data, dataset.NewList(augmented...))
	}

	result := &Result{
		Data:         data,
		FeatureCount: source.FeatureCount(),
		ClassCount:   source.ClassCount(),
		Size:         data.Len(),
		Dropped:      dropped,
	}

	duration := time.Since(start)
	p.collector.RecordRun(strategy, "success", duration)
	p.bus.PublishAsync(ctx, events.RunCompleted{
		Strategy: strategy,
		Samples:  result.Size,
		Dropped:  dropped,
		Duration: duration,
	})
	p.log.Info().
		Int("samples", result.Size).
		Int("dropped", dropped).
		Int("augmented", len(augmented)).
		Dur("duration", duration).
		Msg("Prepared dataset ready")

	return result, nil
}

// cachedMemory caches the featurized samples as one gob value.
func (p *Pipeline) cachedMemory(ctx context.Context, source loader.Loader, keyParams map[string]any) (dataset.Collection, int, error) {
	dropped := 0
	op := cache.Operation[[]*dataset.Sample]{
		KeyParams:  keyParams,
		ClearCache: p.cfg.ClearCache,
		Producer: func(ctx context.Context, _ map[string]any) ([]*dataset.Sample, error) {
			collection, d, err := p.featurizeAll(ctx, source, false)
			if err != nil {
				return nil, err
			}
			dropped = d
			return collection.(*dataset.List).Samples(), nil
		},
	}

	samples, err := cache.Execute(ctx, p.store, cache.NewGobCodec[[]*dataset.Sample](), op)
	if err != nil {
		return nil, 0, err
	}
	return dataset.NewList(samples...), dropped, nil
}

// cachedDisk materializes the featurized dataset as a bolt file and
// caches its path. The file lives next to the other disk lists; the
// cache entry only records where to reopen it.
func (p *Pipeline) cachedDisk(ctx context.Context, source loader.Loader, keyParams map[string]any) (dataset.Collection, int, error) {
	codec := cache.NewGobCodec[string]()
	dropped := 0

	op := cache.Operation[string]{
		KeyParams:  keyParams,
		ClearCache: p.cfg.ClearCache,
		Producer: func(ctx context.Context, _ map[string]any) (string, error) {
			collection, d, err := p.featurizeAll(ctx, source, true)
			if err != nil {
				return "", err
			}
			dropped = d

			disk := collection.(*dataset.DiskList)
			path := disk.Path()
			if err := disk.Close(); err != nil {
				return "", err
			}
			return path, nil
		},
	}

	path, err := cache.Execute(ctx, p.store, codec, op)
	if err != nil {
		return nil, 0, err
	}

	list, err := dataset.OpenDiskList(path)
	if err != nil {
		// The entry points at a file that is gone or unreadable.
		// Invalidate it and rebuild once.
		p.log.Warn().Err(err).Str("path", path).Msg("Cached disk list unreadable, rebuilding")

		digest, kerr := cache.Key(keyParams)
		if kerr != nil {
			return nil, 0, kerr
		}
		if derr := p.store.Delete(digest); derr != nil {
			return nil, 0, derr
		}

		path, err = cache.Execute(ctx, p.store, codec, op)
		if err != nil {
			return nil, 0, err
		}
		list, err = dataset.OpenDiskList(path)
		if err != nil {
			return nil, 0, err
		}
	}

	// Released on Pipeline.Close, after the caller is done with the
	// returned collection.
	p.closers = append(p.closers, list)
	return list, dropped, nil
}
