package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/app"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/config"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aggregator failed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aggregator",
		Short:         "Poll feeds and fetch new torrent files into a directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLoop,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run aggregation cycles until interrupted (default)",
		RunE:  runLoop,
	})
	root.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Run a single aggregation cycle and exit",
		RunE:  runOnce,
	})
	return root
}

func setup(cmd *cobra.Command) (*app.Aggregator, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	logger.InfoObj("aggregator starting", "config", cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)

	agg, err := app.NewAggregator(ctx, cfg, log)
	if err != nil {
		stop()
		logger.ErrorObj("failed to initialize aggregator", "error", err)
		return nil, nil, nil, err
	}
	return agg, ctx, stop, nil
}

func runLoop(cmd *cobra.Command, _ []string) error {
	agg, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	if err := agg.Run(ctx); err != nil {
		return fmt.Errorf("aggregator run: %w", err)
	}
	return nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	agg, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	report, err := agg.Once(ctx)
	if err != nil {
		return fmt.Errorf("aggregator once: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: %d new, %d fetched, %d failed\n",
		report.ID, report.Fresh, report.Succeeded, report.Failed)
	return nil
}
