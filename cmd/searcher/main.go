// Command searcher serves statute search and result feedback over HTTP.
//
// It loads the corpus (from a YAML/JSON file or PostgreSQL), builds the
// in-memory index, and answers:
//
//	GET /api/search?q=...
//	GET /api/rate?id=...&qid=...&r=positive|negative
//	GET /api/laws/count, GET /api/terms/count
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"github.com/gesetzesinfo/lawsearch/internal/corpus"
	"github.com/gesetzesinfo/lawsearch/internal/feedback"
	gwhandler "github.com/gesetzesinfo/lawsearch/internal/gateway/handler"
	"github.com/gesetzesinfo/lawsearch/internal/gateway/ratelimit"
	"github.com/gesetzesinfo/lawsearch/internal/gateway/router"
	"github.com/gesetzesinfo/lawsearch/internal/searcher"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/cache"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/handler"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/scorer"
	"github.com/gesetzesinfo/lawsearch/pkg/config"
	"github.com/gesetzesinfo/lawsearch/pkg/health"
	"github.com/gesetzesinfo/lawsearch/pkg/kafka"
	"github.com/gesetzesinfo/lawsearch/pkg/logger"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
	"github.com/gesetzesinfo/lawsearch/pkg/postgres"
	pkgredis "github.com/gesetzesinfo/lawsearch/pkg/redis"
	"github.com/gesetzesinfo/lawsearch/pkg/resilience"
)

const corpusLoadTimeout = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("searcher", cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting search service", "port", cfg.Server.Port, "corpus_source", cfg.Corpus.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}
	checker := health.NewChecker()

	var db *postgres.Client
	if cfg.Postgres.Enabled {
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
		slog.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	store, err := loadCorpus(ctx, cfg, db)
	if err != nil {
		return err
	}
	checker.Register("corpus", health.Static(health.StatusUp, store.String()))

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			if cfg.Feedback.Registry == "redis" {
				return fmt.Errorf("redis is required by feedback.registry: %w", err)
			}
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			if cfg.Feedback.Registry == "redis" {
				checker.Register("redis", redisClient.HealthCheck())
			} else {
				checker.RegisterOptional("redis", redisClient.HealthCheck())
			}
		}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics.BufferSize, 100, 5*time.Second)
		collector.Start(gctx)
		defer func() {
			cancelRun()
			collector.Close()
			if n := collector.Dropped(); n > 0 {
				slog.Warn("analytics events dropped", "count", n)
			}
		}()
	}

	registry, err := newRegistry(gctx, g, cfg, redisClient)
	if err != nil {
		return err
	}
	feedbackStore := feedback.Store(feedback.NewMemoryStore())
	if cfg.Feedback.Store == "postgres" {
		feedbackStore = feedback.NewPostgresStore(db)
	}

	var (
		searchOpts = []searcher.Option{searcher.WithMetrics(m)}
		rater      *feedback.Service
		queryCache *cache.QueryCache
	)
	if redisClient != nil {
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, store.Version(), m)
		searchOpts = append(searchOpts, searcher.WithCache(queryCache))
		slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}
	if collector != nil {
		searchOpts = append(searchOpts, searcher.WithTracker(collector))
		rater = feedback.NewService(registry, feedbackStore, collector, m)
	} else {
		rater = feedback.NewService(registry, feedbackStore, nil, m)
	}

	svc := searcher.New(store, registry, searcher.Config{
		Strategy:   searcher.Strategy(cfg.Search.Strategy),
		MaxResults: cfg.Search.MaxResults,
		Scoring: scorer.Params{
			K1:          cfg.Search.K1,
			B:           cfg.Search.B,
			TitleWeight: cfg.Search.TitleWeight,
		},
		Tracing: cfg.Tracing.Enabled,
	}, searchOpts...)

	apis := []router.API{
		handler.New(svc, rater, queryCache, handler.Limits{
			MinQueryLength: cfg.Search.MinQueryLength,
			MaxQueryLength: cfg.Search.MaxQueryLength,
		}),
	}
	if cfg.Gateway.AnalyticsURL != "" {
		proxy, err := gwhandler.NewAnalyticsProxy(cfg.Gateway.AnalyticsURL)
		if err != nil {
			return err
		}
		apis = append(apis, proxy)
	}

	var limiter *ratelimit.Limiter
	if cfg.Gateway.RateLimit > 0 {
		limiter = ratelimit.New(cfg.Gateway.RateLimit, cfg.Gateway.RateLimitWindow)
		g.Go(func() error {
			limiter.RunCleanup(gctx, 5*time.Minute)
			return nil
		})
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(router.Options{
			AllowOrigins:   cfg.Gateway.AllowOrigins,
			Limiter:        limiter,
			RequestTimeout: cfg.Server.RequestTimeout,
			Metrics:        m,
			Health:         checker,
		}, apis...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
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

// loadCorpus builds the store from the configured source. File corpora are
// cleaned and filtered on load; PostgreSQL rows were prepared at import.
func loadCorpus(ctx context.Context, cfg *config.Config, db *postgres.Client) (*corpus.Store, error) {
	var provisions []corpus.Provision
	err := resilience.WithTimeout(ctx, corpusLoadTimeout, "corpus-load", func(ctx context.Context) error {
		switch cfg.Corpus.Source {
		case "postgres":
			var err error
			provisions, err = corpus.NewPostgresLoader(db).Load(ctx)
			return err
		default:
			raw, err := corpus.LoadFile(cfg.Corpus.Path)
			if err != nil {
				return err
			}
			var rejected []error
			provisions, rejected = corpus.Prepare(raw)
			for _, rerr := range rejected {
				slog.Debug("provision skipped", "reason", rerr)
			}
			if len(rejected) > 0 {
				slog.Info("provisions filtered", "kept", len(provisions), "skipped", len(rejected))
			}
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}

	store, err := corpus.NewStore(provisions)
	if err != nil {
		return nil, err
	}
	slog.Info("corpus loaded", "corpus", store.String())
	return store, nil
}

// newRegistry returns the configured issued-reference registry. The memory
// registry's sweeper runs on g.
func newRegistry(ctx context.Context, g *errgroup.Group, cfg *config.Config, redisClient *pkgredis.Client) (feedback.Registry, error) {
	if cfg.Feedback.Registry == "redis" {
		if redisClient == nil {
			return nil, errors.New("feedback.registry is redis but no redis client is available")
		}
		return feedback.NewRedisRegistry(redisClient, cfg.Feedback.IssuedTTL), nil
	}
	reg := feedback.NewMemoryRegistry(cfg.Feedback.IssuedTTL)
	g.Go(func() error {
		reg.RunSweeper(ctx, time.Minute)
		return nil
	})
	return reg, nil
}
