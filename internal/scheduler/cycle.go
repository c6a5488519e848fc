package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/dedup"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/dispatch"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/workpool"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/publishers"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/sources"
)

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID            string
	StartedAt     time.Time
	Duration      time.Duration
	SourcesPolled int
	SourcesFailed int
	Discovered    int
	Fresh         int
	Succeeded     int
	Failed        int
	Outcomes      []dispatch.Outcome
}

// RunCycle performs exactly one cycle. Concurrent calls are serialized.
// Source and item failures are logged and counted, never returned; only a
// failure to read the output directory aborts the cycle with ErrSchedulerFatal,
// leaving the watermark untouched.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := s.now()
	report := CycleReport{ID: uuid.NewString(), StartedAt: start}

	existing, err := s.snapshot()
	if err != nil {
		report.Duration = s.now().Sub(start)
		return report, fmt.Errorf("%w: snapshot %s: %w", ErrSchedulerFatal, s.cfg.OutputDir, err)
	}
	watermark := s.Watermark()

	s.log.InfoObj("cycle started", "cycle_meta", map[string]any{
		"cycle_id":      report.ID,
		"sources_count": len(s.sources),
		"watermark":     watermark,
		"existing":      existing.Len(),
	})

	discovered := s.collect(ctx, &report)
	report.Discovered = len(discovered)

	fresh := dedup.Filter(discovered, watermark, existing)
	report.Fresh = len(fresh)

	report.Outcomes = s.dispatchAll(ctx, fresh)
	for _, out := range report.Outcomes {
		if out.OK() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	// every dispatch has returned; only now is it safe to move the watermark
	s.setWatermark(start)
	s.notify(ctx, report)

	report.Duration = s.now().Sub(start)
	s.logSummary(report)
	return report, nil
}

func (s *Scheduler) snapshot() (dedup.Snapshot, error) {
	if err := s.fs.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return dedup.Snapshot{}, err
	}
	entries, err := afero.ReadDir(s.fs, s.cfg.OutputDir)
	if err != nil {
		return dedup.Snapshot{}, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Mode().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return dedup.NewSnapshot(names...), nil
}

// collect polls every source concurrently and merges results in registry order.
func (s *Scheduler) collect(ctx context.Context, report *CycleReport) []domain.Item {
	results := workpool.Map(ctx, s.cfg.SourceConcurrency, s.sources, func(ctx context.Context, src sources.Source) ([]domain.Item, error) {
		return src.FetchItems(ctx)
	})

	var items []domain.Item
	for i, res := range results {
		report.SourcesPolled++
		if res.Err != nil {
			report.SourcesFailed++
			err := res.Err
			var srcErr *sources.SourceError
			if !errors.As(err, &srcErr) {
				err = &sources.SourceError{SourceID: s.sources[i].ID(), Err: err}
			}
			s.log.WarnObj("source failed", "source_error", map[string]any{
				"cycle_id":  report.ID,
				"source_id": s.sources[i].ID(),
				"error":     err.Error(),
			})
			continue
		}
		s.log.DebugObj("source polled", "source_meta", map[string]any{
			"cycle_id":  report.ID,
			"source_id": s.sources[i].ID(),
			"items":     len(res.Value),
		})
		items = append(items, res.Value...)
	}
	return items
}

func (s *Scheduler) dispatchAll(ctx context.Context, items []domain.Item) []dispatch.Outcome {
	results := workpool.Map(ctx, s.cfg.DispatchConcurrency, items, func(ctx context.Context, item domain.Item) (dispatch.Outcome, error) {
		return s.router.Dispatch(ctx, item), nil
	})

	outcomes := make([]dispatch.Outcome, len(results))
	for i, res := range results {
		out := res.Value
		if res.Err != nil {
			out = dispatch.Outcome{
				Item: items[i],
				Kind: items[i].Kind(),
				Err:  &dispatch.DispatchError{Item: items[i], Err: res.Err},
			}
		}
		outcomes[i] = out

		if out.Err != nil {
			s.log.WarnObj("item failed", "item_error", map[string]any{
				"name":      out.Item.Name,
				"kind":      out.Kind.String(),
				"source_id": out.Item.SourceID,
				"error":     out.Err.Error(),
			})
			continue
		}
		s.log.InfoObj("item fetched", "item_meta", map[string]any{
			"name":        out.Item.Name,
			"kind":        out.Kind.String(),
			"path":        out.Path,
			"duration_ms": out.Duration.Milliseconds(),
		})
	}
	return outcomes
}

func (s *Scheduler) notify(ctx context.Context, report CycleReport) {
	if s.notifier == nil {
		return
	}
	for _, out := range report.Outcomes {
		if !out.OK() {
			continue
		}
		evt := publishers.NewEvent(report.ID, out.Item, out.Path)
		if _, err := s.notifier.Publish(ctx, evt); err != nil {
			s.log.WarnObj("notification failed", "publish_error", map[string]any{
				"name":  out.Item.Name,
				"error": err.Error(),
			})
		}
	}
}

func (s *Scheduler) logSummary(report CycleReport) {
	meta := map[string]any{
		"cycle_id":       report.ID,
		"elapsed_ms":     report.Duration.Milliseconds(),
		"sources_polled": report.SourcesPolled,
		"sources_failed": report.SourcesFailed,
		"discovered":     report.Discovered,
		"fresh":          report.Fresh,
		"succeeded":      report.Succeeded,
		"failed":         report.Failed,
	}
	if next := s.NextRun(); !next.IsZero() {
		meta["next_run"] = next.Format(nextRunLayout)
	}
	s.log.InfoObj("cycle completed", "cycle_meta", meta)
}
