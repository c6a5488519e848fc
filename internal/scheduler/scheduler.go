// Package scheduler runs aggregation cycles on a fixed interval: poll every
// source, keep the items that are newer than the watermark and not yet on disk,
// fetch them concurrently and then advance the watermark.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/dispatch"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/logger"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/publishers"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/sources"
)

// ErrSchedulerFatal marks a cycle that was abandoned before dispatching anything.
var ErrSchedulerFatal = errors.New("scheduler: cycle aborted")

const nextRunLayout = "2006-01-02 15:04:05"

// Dispatcher fetches one item; dispatch.Router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, item domain.Item) dispatch.Outcome
}

// WatermarkStore persists the watermark between runs; storage.Store implements it.
type WatermarkStore interface {
	Watermark() (time.Time, bool, error)
	SetWatermark(time.Time) error
}

// Notifier announces materialized artifacts; publishers.Fanout implements it.
type Notifier interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Config holds the scheduler tunables.
type Config struct {
	Interval            time.Duration
	OutputDir           string
	SourceConcurrency   int
	DispatchConcurrency int
	// InitialWatermark is used when the watermark store has nothing saved.
	InitialWatermark time.Time
}

// Deps are the collaborators of a Scheduler. Only Router is required.
type Deps struct {
	Sources    []sources.Source
	Router     Dispatcher
	Watermarks WatermarkStore
	Notifier   Notifier
	Logger     logger.Logger
	Fs         afero.Fs
	Clock      func() time.Time
}

// Scheduler owns the watermark and the cycle loop.
type Scheduler struct {
	cfg        Config
	sources    []sources.Source
	router     Dispatcher
	watermarks WatermarkStore
	notifier   Notifier
	log        logger.Logger
	fs         afero.Fs
	now        func() time.Time

	// cycleMu serializes RunCycle.
	cycleMu sync.Mutex

	mu        sync.Mutex
	watermark time.Time
	running   bool
	stop      context.CancelFunc
	done      chan struct{}
	nextRun   time.Time
}

// New validates cfg and restores the watermark from deps.Watermarks when present.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %v", cfg.Interval)
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("scheduler output dir is empty")
	}
	if deps.Router == nil {
		return nil, errors.New("scheduler router is nil")
	}
	if cfg.SourceConcurrency <= 0 {
		cfg.SourceConcurrency = 1
	}
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = 1
	}

	s := &Scheduler{
		cfg:        cfg,
		sources:    append([]sources.Source(nil), deps.Sources...),
		router:     deps.Router,
		watermarks: deps.Watermarks,
		notifier:   deps.Notifier,
		log:        logger.Ensure(deps.Logger),
		fs:         deps.Fs,
		now:        deps.Clock,
		watermark:  cfg.InitialWatermark,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if s.watermarks != nil {
		saved, ok, err := s.watermarks.Watermark()
		switch {
		case err != nil:
			s.log.WarnObj("stored watermark unreadable, using initial value", "error", err)
		case ok:
			s.watermark = saved
		}
	}
	return s, nil
}

// Start launches the cycle loop: one cycle immediately, then one per interval.
// It is a no-op while the loop is already running. The loop ends when Stop is
// called or ctx is cancelled; an in-flight cycle is allowed to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	loopCtx, stop := context.WithCancel(ctx)
	s.running = true
	s.stop = stop
	s.done = make(chan struct{})

	go s.loop(loopCtx, context.WithoutCancel(ctx), s.done)
	return nil
}

// Stop cancels future ticks and blocks until the in-flight cycle, if any, returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
}

// Wait blocks until the loop goroutine exits.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether the loop goroutine is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Watermark returns the current watermark.
func (s *Scheduler) Watermark() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// NextRun returns when the loop fires next; zero when not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.nextRun
}

func (s *Scheduler) loop(loopCtx, cycleCtx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.stop = nil
		s.nextRun = time.Time{}
		s.mu.Unlock()
		close(done)
	}()

	s.log.InfoObj("scheduler loop starting", "scheduler_state", map[string]any{
		"sources_count": len(s.sources),
		"interval":      s.cfg.Interval.String(),
		"watermark":     s.Watermark(),
	})

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(cycleCtx)
	for {
		select {
		case <-loopCtx.Done():
			s.log.InfoObj("scheduler loop exiting", "reason", loopCtx.Err())
			return
		case <-ticker.C:
			// a tick queued during a long cycle races with Stop
			if loopCtx.Err() != nil {
				s.log.InfoObj("scheduler loop exiting", "reason", loopCtx.Err())
				return
			}
			s.tick(cycleCtx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	s.nextRun = s.now().Add(s.cfg.Interval)
	s.mu.Unlock()

	if _, err := s.RunCycle(ctx); err != nil {
		s.log.ErrorObj("cycle failed", "error", err)
	}
}

func (s *Scheduler) setWatermark(t time.Time) {
	s.mu.Lock()
	s.watermark = t
	s.mu.Unlock()

	if s.watermarks == nil {
		return
	}
	if err := s.watermarks.SetWatermark(t); err != nil {
		s.log.WarnObj("persist watermark failed", "error", err)
	}
}
