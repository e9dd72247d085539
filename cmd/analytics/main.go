// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and feedback events from Kafka, aggregates them in
// memory (searches, zero-result queries, latency percentiles, top queries,
// helpful/unrelated ratings), snapshots the totals to PostgreSQL when enabled,
// and serves GET /api/analytics and GET /api/analytics/snapshots.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/analytics.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/gesetzesinfo/lawsearch/internal/analytics"
	"github.com/gesetzesinfo/lawsearch/internal/analytics/snapshot"
	"github.com/gesetzesinfo/lawsearch/internal/gateway/router"
	"github.com/gesetzesinfo/lawsearch/pkg/config"
	"github.com/gesetzesinfo/lawsearch/pkg/health"
	"github.com/gesetzesinfo/lawsearch/pkg/kafka"
	"github.com/gesetzesinfo/lawsearch/pkg/logger"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
	"github.com/gesetzesinfo/lawsearch/pkg/postgres"
	"github.com/gesetzesinfo/lawsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/analytics.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("analytics", cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting analytics service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.AnalyticsEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		g.Go(func() error {
			return m.Serve(gctx, cfg.Metrics.Port)
		})
	}

	aggregator := analytics.NewAggregator(analytics.WithEventMetrics(m))
	checker := health.NewChecker()

	var lister analytics.SnapshotLister
	if cfg.Postgres.Enabled {
		var db *postgres.Client
		err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
		}, func() error {
			var err error
			db, err = postgres.New(cfg.Postgres)
			return err
		})
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		checker.Register("postgres", db.HealthCheck())

		store := snapshot.NewStore(db)
		latest, err := store.LatestSnapshot(ctx)
		if err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		} else if latest != nil {
			aggregator.Restore(*latest)
			slog.Info("analytics restored from snapshot", "total_searches", latest.TotalSearches)
		}
		lister = store
		g.Go(func() error {
			snapshot.RunPeriodic(gctx, store, aggregator, cfg.Analytics.SnapshotInterval)
			return nil
		})
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.Handler())
		g.Go(func() error {
			return consumer.Start(gctx)
		})
		checker.Register("kafka", health.Static(health.StatusUp, "consumer active"))
	} else {
		slog.Warn("kafka disabled, no analytics events will be consumed")
		checker.RegisterOptional("kafka", health.Static(health.StatusDown, "disabled"))
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(router.Options{
			AllowOrigins:   cfg.Gateway.AllowOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			Metrics:        m,
			Health:         checker,
		}, analytics.NewHandler(aggregator, lister)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
