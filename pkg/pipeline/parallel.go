package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/events"
	"github.com/prepkit/prepkit/pkg/loader"
	"github.com/prepkit/prepkit/pkg/logger"
	"github.com/prepkit/prepkit/pkg/progress"
)

// chunkResult carries one worker's output back to the coordinator.
// Exactly one of samples or disk is set on success, depending on the
// configured storage mode.
type chunkResult struct {
	index   int
	samples *dataset.List
	disk    *dataset.DiskList
	dropped int
	err     error
}

type progressReport struct {
	worker int
	done   int
	total  int
}

// featurizeAll prepares every sample of source across worker
// goroutines and merges the chunk outputs in source order. Dropped
// samples are counted, infrastructure failures cancel the remaining
// chunks and fail the run. With useDisk the merged collection is a
// bolt-backed list instead of an in-memory one.
func (p *Pipeline) featurizeAll(ctx context.Context, source loader.Loader, useDisk bool) (dataset.Collection, int, error) {
	size := source.Len()
	if size == 0 {
		if useDisk {
			list, err := dataset.NewDiskList(p.diskDir())
			if err != nil {
				return nil, 0, err
			}
			return list, 0, nil
		}
		return dataset.NewList(), 0, nil
	}

	spans := partition(size, p.cfg.FeaturizationJobs)
	p.log.Info().
		Int("samples", size).
		Int("workers", len(spans)).
		Bool("use_disk", useDisk).
		Msg("Featurizing dataset")

	tracker := progress.NewTracker(ctx, size, p.sink, progress.WithThrottle(200*time.Millisecond))
	defer tracker.Finish()
	tracker.Begin("Featurizing samples")

	board := progress.NewBoard(len(spans))
	reports := make(chan progressReport, 256)
	results := make([]chunkResult, len(spans))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, sp := range spans {
		wg.Add(1)
		go func(index int, sp span) {
			defer wg.Done()
			results[index] = p.processChunk(runCtx, index, sp, source, useDisk, reports)
			if results[index].err != nil {
				cancel()
			}
		}(i, sp)
	}

	go func() {
		wg.Wait()
		close(reports)
	}()

	for r := range reports {
		board.Set(r.worker, r.done, r.total)
		done, _ := board.Totals()
		tracker.Update(done, "Featurizing samples")
	}

	if err := firstChunkError(results); err != nil {
		p.discardChunks(results)
		tracker.Error("Featurization failed", err)
		return nil, 0, err
	}

	merged, dropped, err := p.mergeChunks(results, useDisk)
	if err != nil {
		p.discardChunks(results)
		tracker.Error("Featurization failed", err)
		return nil, 0, err
	}

	tracker.Complete(fmt.Sprintf("Featurized %d samples, dropped %d", merged.Len(), dropped))
	return merged, dropped, nil
}

// firstChunkError picks the error to surface: the first real failure
// in chunk order, falling back to a bare cancellation when that is all
// there is. Workers surface cancellation as an unwrapped ctx.Err().
func firstChunkError(results []chunkResult) error {
	var first error
	for _, r := range results {
		if r.err == nil {
			continue
		}
		if first == nil {
			first = r.err
		}
		if r.err != context.Canceled && r.err != context.DeadlineExceeded {
			return r.err
		}
	}
	return first
}

// mergeChunks concatenates chunk outputs in span order. Disk-backed
// chunks are folded into the first chunk's list and their backing
// files removed.
func (p *Pipeline) mergeChunks(results []chunkResult, useDisk bool) (dataset.Collection, int, error) {
	dropped := 0
	for _, r := range results {
		dropped += r.dropped
	}

	if !useDisk {
		merged := dataset.NewList()
		for _, r := range results {
			merged.Concat(r.samples)
		}
		return merged, dropped, nil
	}

	base := results[0].disk
	for _, r := range results[1:] {
		if err := base.ExtendFrom(r.disk); err != nil {
			return nil, 0, err
		}
		if err := r.disk.Drop(); err != nil {
			p.log.Warn().Err(err).Str("path", r.disk.Path()).Msg("Failed to remove chunk disk list")
		}
	}
	return base, dropped, nil
}

// discardChunks removes any disk lists produced before a failure.
func (p *Pipeline) discardChunks(results []chunkResult) {
	for _, r := range results {
		if r.disk == nil {
			continue
		}
		if err := r.disk.Drop(); err != nil {
			p.log.Warn().Err(err).Str("path", r.disk.Path()).Msg("Failed to remove chunk disk list")
		}
	}
}

// processChunk prepares the samples of one span. Per-sample failures
// are dropped under the error policy; loader and storage failures
// abort the chunk.
func (p *Pipeline) processChunk(ctx context.Context, index int, sp span, source loader.Loader, useDisk bool, reports chan<- progressReport) chunkResult {
	start := time.Now()
	log := logger.ForWorker(p.log, index)

	p.collector.Pipeline().ActiveWorkers.Inc()
	defer p.collector.Pipeline().ActiveWorkers.Dec()
	defer func() { p.collector.RecordChunk(time.Since(start)) }()

	result := chunkResult{index: index}
	if useDisk {
		disk, err := dataset.NewDiskList(p.diskDir())
		if err != nil {
			result.err = err
			return result
		}
		result.disk = disk
	} else {
		result.samples = dataset.NewList()
	}

	total := sp.size()
	done := 0
	for i := sp.lo; i < sp.hi; i++ {
		select {
		case <-ctx.Done():
			result.err = ctx.Err()
			return result
		default:
		}

		sample, err := source.Sample(i)
		if err != nil {
			result.err = err
			return result
		}

		prepared := sample.Clone()
		if err := p.preprocess(prepared); err != nil {
			p.dropSample(ctx, log, sample, err)
			result.dropped++
			done++
			report(reports, progressReport{worker: index, done: done, total: total}, done == total)
			continue
		}

		if result.disk != nil {
			if err := result.disk.Append(prepared); err != nil {
				result.err = err
				return result
			}
		} else {
			result.samples.Append(prepared)
		}
		p.collector.RecordSample("processed")
		done++
		report(reports, progressReport{worker: index, done: done, total: total}, done == total)
	}

	return result
}

// dropSample applies the error policy. Recoverable featurization
// failures are logged at warn level; anything else is logged as an
// error together with the raw inputs so the offending record can be
// located in the source data.
func (p *Pipeline) dropSample(ctx context.Context, log zerolog.Logger, sample *dataset.Sample, err error) {
	recoverable := errors.IsRecoverable(err)
	if recoverable {
		log.Warn().
			Int64("sample", sample.ID).
			Err(err).
			Msg("Sample dropped")
		p.collector.RecordSample("dropped_recoverable")
	} else {
		log.Error().
			Int64("sample", sample.ID).
			Interface("inputs", sample.Inputs).
			Err(err).
			Msg("Sample failed preparation")
		p.collector.RecordSample("dropped_failed")
	}

	p.bus.PublishAsync(ctx, events.SampleDropped{
		SampleID:    sample.ID,
		Stage:       errors.GetModule(err),
		Reason:      err.Error(),
		Recoverable: recoverable,
	})
}

// report sends a progress update. Intermediate updates are best-effort
// and may be skipped under backpressure; the final update of a chunk
// always lands so totals converge.
func report(reports chan<- progressReport, r progressReport, final bool) {
	if final {
		reports <- r
		return
	}
	select {
	case reports <- r:
	default:
	}
}

// diskDir is where chunk and merged disk lists live.
func (p *Pipeline) diskDir() string {
	if p.cfg.DiskDir != "" {
		return p.cfg.DiskDir
	}
	return filepath.Join(p.cfg.CacheLocation, "disklists")
}
