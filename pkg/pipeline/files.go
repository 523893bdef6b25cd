package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prepkit/prepkit/pkg/config"
	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/progress"
)

// PrepareFiles runs the chain over every sample and writes each
// exported field to its own file under {folder}/{field}/{name}.gob,
// where name is the sample's naming field value or its ID. Samples
// whose files all exist are skipped unless overwrite is set, so an
// interrupted export resumes where it stopped. The precomputed
// featurizer reads the same layout back.
func (p *Pipeline) PrepareFiles(ctx context.Context) error {
	exp := p.cfg.Export
	if exp == nil {
		return errors.Configf("pipeline", "export section is required to prepare files")
	}

	start := time.Now()
	strategy := string(config.StrategyFiles)

	source, err := p.buildLoader()
	if err != nil {
		return p.failRun(strategy, start, err)
	}

	for _, field := range exp.Fields {
		if err := os.MkdirAll(filepath.Join(exp.Folder, field), 0o755); err != nil {
			wrapped := errors.WrapAs(err, errors.CategoryStorage, "pipeline", "failed to create export directory for field %s", field)
			return p.failRun(strategy, start, wrapped)
		}
	}

	p.bus.PublishAsync(ctx, events.RunStarted{
		Strategy: strategy,
		Samples:  source.Len(),
		Workers:  1,
	})

	tracker := progress.NewTracker(ctx, source.Len(), p.sink, progress.WithThrottle(200*time.Millisecond))
	defer tracker.Finish()
	tracker.Begin("Exporting feature files")

	exported, skipped, dropped := 0, 0, 0
	for i := 0; i < source.Len(); i++ {
		select {
		case <-ctx.Done():
			tracker.Error("Export canceled", ctx.Err())
			return p.failRun(strategy, start, ctx.Err())
		default:
		}

		sample, err := source.Sample(i)
		if err != nil {
			tracker.Error("Export failed", err)
			return p.failRun(strategy, start, err)
		}

		name := exportName(sample, exp.NameBy)
		if !exp.Overwrite && allFilesExist(exp.Folder, exp.Fields, name) {
			skipped++
			tracker.Update(i+1, "Exporting feature files")
			continue
		}

		prepared := sample.Clone()
		if err := p.preprocess(prepared); err != nil {
			p.dropSample(ctx, p.log, sample, err)
			dropped++
			tracker.Update(i+1, "Exporting feature files")
			continue
		}

		if err := p.writeSampleFiles(ctx, prepared, sample, exp, name); err != nil {
			if errors.IsCategory(err, errors.CategoryStorage) {
				tracker.Error("Export failed", err)
				return p.failRun(strategy, start, err)
			}
			dropped++
			tracker.Update(i+1, "Exporting feature files")
			continue
		}

		exported++
		p.collector.RecordSample("processed")
		tracker.Update(i+1, "Exporting feature files")
	}

	duration := time.Since(start)
	tracker.Complete(fmt.Sprintf("Exported %d samples, skipped %d existing, dropped %d", exported, skipped, dropped))
	p.collector.RecordRun(strategy, "success", duration)
	p.bus.PublishAsync(ctx, events.RunCompleted{
		Strategy: strategy,
		Samples:  exported,
		Dropped:  dropped,
		Duration: duration,
	})
	p.log.Info().
		Int("exported", exported).
		Int("skipped", skipped).
		Int("dropped", dropped).
		Dur("duration", duration).
		Msg("Feature file export complete")

	return nil
}

// writeSampleFiles serializes every exported field of one sample.
// Storage failures return as fatal; a missing field or an unencodable
// value drops the sample under the usual policy.
func (p *Pipeline) writeSampleFiles(ctx context.Context, prepared, raw *dataset.Sample, exp *config.ExportConfig, name string) error {
	for _, field := range exp.Fields {
		value, ok := prepared.Inputs[field]
		if !ok {
			err := errors.Validationf("pipeline", "sample %d has no field %q after preparation", prepared.ID, field)
			p.dropSample(ctx, p.log, raw, err)
			return err
		}

		data, err := dataset.EncodeValue(value)
		if err != nil {
			p.dropSample(ctx, p.log, raw, err)
			return err
		}

		path := filepath.Join(exp.Folder, field, name+".gob")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.WrapAs(err, errors.CategoryStorage, "pipeline", "failed to write %s", path)
		}
	}
	return nil
}

// exportName matches the lookup rule of the precomputed featurizer.
func exportName(sample *dataset.Sample, nameBy string) string {
	if nameBy != "" {
		if v, ok := sample.Inputs[nameBy]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return strconv.FormatInt(sample.ID, 10)
}

func allFilesExist(folder string, fields []string, name string) bool {
	for _, field := range fields {
		if _, err := os.Stat(filepath.Join(folder, field, name+".gob")); err != nil {
			return false
		}
	}
	return true
}
