package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yairfalse/aerographer/config"
	"github.com/yairfalse/aerographer/telemetry"
)

var (
	watchConfigPath string
	watchInterval   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan and evaluate continuously on an interval",
	Long: `Run the scan and evaluation pipeline repeatedly, exposing run
metrics on a local Prometheus endpoint. Each cycle surveys from
scratch; a cycle that fails or times out is logged and the next one
still runs.`,
	Example: `  aerographer watch --interval 10m
  aerographer watch -c prod.yaml --interval 1h`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchConfigPath, "config", "c", "aerographer.yaml", "Config file path")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 15*time.Minute, "Time between scan cycles")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(watchConfigPath)
	if err != nil {
		return err
	}
	telemetry.SetGlobalLevel(cfg.Log.Level)

	tp, err := telemetry.NewProvider(context.Background(), cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	logger := telemetry.NewLogger("watch")

	var g run.Group
	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(tp.Registry(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		g.Add(func() error {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
			return srv.ListenAndServe()
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	g.Add(func() error {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			watchCycle(loopCtx, cfg, tp, logger)
			select {
			case <-ticker.C:
			case <-loopCtx.Done():
				return loopCtx.Err()
			}
		}
	}, func(error) {
		loopCancel()
	})

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
		logger.Info().Msg("shutting down")
		return nil
	}
	return err
}

// watchCycle runs one scan and evaluation pass. Failures are logged, never
// fatal: the watcher keeps its schedule.
func watchCycle(ctx context.Context, cfg *config.Config, tp *telemetry.Provider, logger *telemetry.Logger) {
	cycleCtx := ctx
	if cfg.Scan.Deadline > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, cfg.Scan.Deadline)
		defer cancel()
	}

	sv, report, _, err := runPipeline(cycleCtx, cfg, tp, cfg.ResourceTypes, cfg.SkipTypes)
	if err != nil {
		logger.Error().Err(err).Msg("scan cycle failed")
		return
	}
	logger.Info().
		Int("resources", sv.Len()).
		Int("failures", len(report.Failures)).
		Bool("timed_out", report.TimedOut).
		Msg("scan cycle complete")
}
