package app

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/config"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/dispatch"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/logger"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/scheduler"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/shutdown"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/statestore"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/storage"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/fetcher"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/httpclient"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/publishers"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/resolver"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/sources"
)

// Aggregator is the feed aggregator runtime. It owns the scheduler and every
// resource that has to be released on exit, registered in a shutdown registry
// as each one is created.
type Aggregator struct {
	cfg       *config.Config
	log       logger.Logger
	scheduler *scheduler.Scheduler
	resolver  *resolver.CacheResolver
	states    statestore.Store
	cleanup   *shutdown.Registry
}

// NewAggregator builds the runtime from config. On error everything created so
// far is released again.
func NewAggregator(ctx context.Context, cfg *config.Config, log logger.Logger) (agg *Aggregator, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := shutdown.New(log)
	cleanup.Register("flush logger", func(context.Context) error {
		// stdout sync fails on most terminals
		_ = logger.Close()
		return nil
	})
	defer func() {
		if err != nil {
			_ = cleanup.Run(context.Background())
		}
	}()

	srcs, err := buildSources(cfg, log)
	if err != nil {
		return nil, err
	}

	fanout, err := buildPublishers(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	cleanup.Register("close publishers", func(context.Context) error { return fanout.Close() })

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	cleanup.Register("close watermark store", func(context.Context) error { return store.Close() })
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": cfg.BBoltPath,
	})

	res, err := resolver.NewCacheResolver(resolver.CacheOptions{
		Mirrors:    cfg.ResolverMirrors,
		Timeout:    cfg.HTTPTimeout,
		UserAgent:  cfg.UserAgent,
		MinHealthy: cfg.ResolverMinHealthy,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("init resolver: %w", err)
	}
	cleanup.Register("shutdown resolver", func(context.Context) error { return res.Shutdown() })

	states := statestore.NewFileStore(nil)
	statestore.Restore(states, cfg.StateFile, res, log)
	cleanup.Register("persist resolver state", func(context.Context) error {
		return statestore.Persist(states, cfg.StateFile, res, log)
	})

	router, err := dispatch.NewRouter(dispatch.Options{
		OutputDir:      cfg.OutputDir,
		ResolveTimeout: cfg.ResolveTimeout,
		Resolver:       res,
		Fetcher: fetcher.New(fetcher.Options{
			Timeout:   cfg.HTTPTimeout,
			UserAgent: cfg.UserAgent,
			RPS:       cfg.FetchRPS,
		}),
		DecodeName: resolver.DecodeName,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("init dispatch: %w", err)
	}

	var initial time.Time
	if cfg.InitialLookback > 0 {
		initial = time.Now().Add(-cfg.InitialLookback)
	}

	sched, err := scheduler.New(scheduler.Config{
		Interval:            cfg.ScanInterval,
		OutputDir:           cfg.OutputDir,
		SourceConcurrency:   cfg.SourceConcurrency,
		DispatchConcurrency: cfg.DispatchConcurrency,
		InitialWatermark:    initial,
	}, scheduler.Deps{
		Sources:    srcs,
		Router:     router,
		Watermarks: store,
		Notifier:   fanout,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	cleanup.Register("stop scheduler", func(context.Context) error {
		sched.Stop()
		return nil
	})

	return &Aggregator{
		cfg:       cfg,
		log:       log,
		scheduler: sched,
		resolver:  res,
		states:    states,
		cleanup:   cleanup,
	}, nil
}

func buildSources(cfg *config.Config, log logger.Logger) ([]sources.Source, error) {
	reg, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}

	client := httpclient.NewRestyClient(httpclient.Options{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
	})
	enabled := reg.Enabled()
	srcs, err := sources.BuildAll(sources.DefaultFactory(client), enabled)
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, d := range enabled {
		summaries = append(summaries, map[string]string{"id": d.ID, "type": d.Type})
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count":    len(srcs),
		"disabled": len(reg.All()) - len(enabled),
		"sources":  summaries,
	})
	return srcs, nil
}

// buildPublishers returns an empty fanout when no publishers file is configured.
func buildPublishers(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if cfg.PublishersFile == "" {
		return publishers.NewFanout(nil), nil
	}

	reg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, p := range enabled {
		summaries = append(summaries, map[string]string{"id": p.ID, "type": p.Type})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubs), nil
}

// warmup probes the resolver mirrors and checkpoints the state right away.
func (a *Aggregator) warmup(ctx context.Context) {
	if a.cfg.ResolverWarmup <= 0 {
		return
	}
	a.resolver.Warmup(ctx, a.cfg.ResolverWarmup)
	_ = statestore.Persist(a.states, a.cfg.StateFile, a.resolver, a.log)
}

// Run starts the scheduler and blocks until ctx is cancelled, then runs the
// shutdown sequence.
func (a *Aggregator) Run(ctx context.Context) error {
	if a == nil || a.scheduler == nil {
		return fmt.Errorf("aggregator is not initialized")
	}

	a.warmup(ctx)
	if err := a.scheduler.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	a.log.InfoObj("aggregator stopping", "reason", ctx.Err())
	return a.Shutdown(context.Background())
}

// Once runs a single cycle and then the shutdown sequence. A cycle that has
// started runs to completion even if ctx is cancelled meanwhile.
func (a *Aggregator) Once(ctx context.Context) (scheduler.CycleReport, error) {
	if a == nil || a.scheduler == nil {
		return scheduler.CycleReport{}, fmt.Errorf("aggregator is not initialized")
	}

	a.warmup(ctx)
	// cancelling ctx must not cut the cycle short once it started
	report, err := a.scheduler.RunCycle(context.WithoutCancel(ctx))
	if shutdownErr := a.Shutdown(context.Background()); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return report, err
}

// Shutdown releases every resource exactly once; later calls return the first result.
func (a *Aggregator) Shutdown(ctx context.Context) error {
	return a.cleanup.Run(ctx)
}

// Scheduler exposes the underlying scheduler.
func (a *Aggregator) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}
