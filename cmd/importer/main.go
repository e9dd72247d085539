// Command importer loads a statute export (YAML or JSON), cleans and filters
// it, and upserts the provisions into PostgreSQL. Cached rankings are flushed
// afterwards so running searchers do not serve results for a stale corpus.
//
// Usage:
//
//	go run ./cmd/importer [-config configs/development.yaml] [-file laws.yaml] [-dry-run]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gesetzesinfo/lawsearch/internal/corpus"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/cache"
	"github.com/gesetzesinfo/lawsearch/pkg/config"
	"github.com/gesetzesinfo/lawsearch/pkg/logger"
	"github.com/gesetzesinfo/lawsearch/pkg/postgres"
	pkgredis "github.com/gesetzesinfo/lawsearch/pkg/redis"
	"github.com/gesetzesinfo/lawsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "statute export to import (defaults to corpus.path)")
	dryRun := flag.Bool("dry-run", false, "validate the export without writing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("importer", cfg.Logging.Level, cfg.Logging.Format)

	path := *file
	if path == "" {
		path = cfg.Corpus.Path
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, path, *dryRun); err != nil {
		slog.Error("import failed", "file", path, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, path string, dryRun bool) error {
	raw, err := corpus.LoadFile(path)
	if err != nil {
		return err
	}
	provisions, rejected := corpus.Prepare(raw)
	for _, rerr := range rejected {
		slog.Debug("provision skipped", "reason", rerr)
	}
	slog.Info("export prepared", "file", path, "read", len(raw), "kept", len(provisions), "skipped", len(rejected))

	// Build the store to catch duplicate ids before anything is written.
	store, err := corpus.NewStore(provisions)
	if err != nil {
		return err
	}
	if dryRun {
		slog.Info("dry run complete", "corpus", store.String())
		return nil
	}

	if !cfg.Postgres.Enabled {
		return errors.New("postgres must be enabled to import")
	}
	var db *postgres.Client
	err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{
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

	n, err := corpus.NewImporter(db).Import(ctx, provisions)
	if err != nil {
		return err
	}
	slog.Info("import complete", "upserted", n, "version", store.Version())

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, cached rankings not flushed", "error", err)
			return nil
		}
		defer redisClient.Close()
		if err := cache.New(redisClient, cfg.Redis.CacheTTL, store.Version(), nil).Invalidate(ctx); err != nil {
			slog.Warn("flushing cached rankings failed", "error", err)
		}
	}
	return nil
}
