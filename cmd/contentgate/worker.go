package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ak125/contentgate/internal/config"
	"github.com/ak125/contentgate/internal/enrichment"
	"github.com/ak125/contentgate/internal/metrics"
	"github.com/ak125/contentgate/internal/orchestrator"
	"github.com/ak125/contentgate/internal/queue"
)

var workerFlags struct {
	inbox       string
	redisAddr   string
	sweep       string
	metricsAddr string
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process content jobs one at a time",
	Long: `Start the single job worker. Jobs come from any configured source:

  - an inbox directory of *.json job files (--inbox)
  - a Redis list (--redis)
  - a cron sweep over every known item (--sweep)

Prometheus metrics are served on --metrics-addr at /metrics.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerFlags.inbox, "inbox", "", "override the inbox directory")
	workerCmd.Flags().StringVar(&workerFlags.redisAddr, "redis", "", "override the Redis address")
	workerCmd.Flags().StringVar(&workerFlags.sweep, "sweep", "", "override the sweep schedule (cron syntax)")
	workerCmd.Flags().StringVar(&workerFlags.metricsAddr, "metrics-addr", "", "override the metrics listen address")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyWorkerFlags(&cfg)
	if cfg.Enrichment.Address == "" {
		return errors.New("enrichment address is required (CONTENTGATE_ENRICHMENT_ADDR)")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("trace shutdown", zap.Error(err))
		}
	}()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	client, err := enrichment.Dial(cfg.Enrichment.Address, enrichmentConfig(cfg.Enrichment), log.Named("enrichment"))
	if err != nil {
		return err
	}
	defer client.Close()

	collector := metrics.NewCollector()
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Registry: registry,
		Source:   client,
		Store:    st,
		Metrics:  collector,
		Log:      log,
	})

	worker := queue.NewWorker(func(ctx context.Context, job queue.Job) error {
		d, err := orch.Process(ctx, orchestrator.Job{ID: job.ID, ItemID: job.ItemID, Role: job.Role})
		if err != nil {
			return err
		}
		if d.Status == orchestrator.StatusFailed {
			return fmt.Errorf("%s: %s", d.Reason, d.Error)
		}
		return nil
	}, cfg.Queue.Buffer, log.Named("queue"))

	sources, err := jobSources(cfg, st, log.Named("queue"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	for _, src := range sources {
		src := src
		g.Go(func() error { return src.Run(gctx, worker.Enqueue) })
	}
	if cfg.Telemetry.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: metricsMux(collector), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	log.Info("worker started",
		zap.Int("sources", len(sources)),
		zap.String("metrics_addr", cfg.Telemetry.MetricsAddr),
		zap.Bool("hard_gate_blocking", cfg.Flags.HardGateBlocking),
		zap.Strings("canary_items", cfg.CanaryItems),
	)
	err = g.Wait()
	processed, failed := worker.Stats()
	log.Info("worker stopped", zap.Int64("processed", processed), zap.Int64("failed", failed))
	return err
}

func applyWorkerFlags(cfg *config.Config) {
	if workerFlags.inbox != "" {
		cfg.Queue.InboxDir = workerFlags.inbox
	}
	if workerFlags.redisAddr != "" {
		cfg.Queue.RedisAddr = workerFlags.redisAddr
	}
	if workerFlags.sweep != "" {
		cfg.Queue.SweepSpec = workerFlags.sweep
	}
	if workerFlags.metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = workerFlags.metricsAddr
	}
}

func jobSources(cfg config.Config, items queue.ItemLister, log *zap.Logger) ([]queue.Source, error) {
	var sources []queue.Source
	if cfg.Queue.InboxDir != "" {
		sources = append(sources, queue.NewDirSource(cfg.Queue.InboxDir, log))
	}
	if cfg.Queue.RedisAddr != "" {
		sources = append(sources, queue.NewRedisSource(queue.NewRedisClient(cfg.Queue.RedisAddr), cfg.Queue.RedisKey, log))
	}
	if cfg.Queue.SweepSpec != "" {
		sweeper, err := queue.NewSweeper(cfg.Queue.SweepSpec, items, log)
		if err != nil {
			return nil, err
		}
		sources = append(sources, sweeper)
	}
	if len(sources) == 0 {
		return nil, errors.New("no job source configured (inbox, redis or sweep)")
	}
	return sources, nil
}

func enrichmentConfig(c config.EnrichmentConfig) enrichment.Config {
	out := enrichment.DefaultConfig()
	if c.Timeout > 0 {
		out.Timeout = c.Timeout
	}
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	if c.BreakerFailures > 0 {
		out.BreakerFailures = c.BreakerFailures
	}
	if c.BreakerOpenDelay > 0 {
		out.BreakerOpenDelay = c.BreakerOpenDelay
	}
	return out
}

func metricsMux(c *metrics.Collector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
