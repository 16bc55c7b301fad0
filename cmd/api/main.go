// Command api serves the read API over recorded requests, SQL queries and profiles.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"go-silk/internal/config"
	"go-silk/internal/db"
	apihttp "go-silk/internal/http"
	"go-silk/internal/observability"
	"go-silk/internal/silk"
)

const retentionInterval = 10 * time.Minute

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.Env)

	dbx, err := db.New(cfg, log)
	if err != nil {
		log.Error("database initialization failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := dbx.Close(); cerr != nil {
			log.Error("database close error", "err", cerr)
		}
	}()

	repo := silk.NewRepository(dbx.Gorm)
	if err := repo.Migrate(context.Background()); err != nil {
		log.Error("silk migration failed", "err", err)
		os.Exit(1)
	}
	rec := silk.NewRecorder(repo, log)

	// Router and server
	router := apihttp.NewRouter(cfg, log, rec, dbx.SQL)
	server := apihttp.NewServer(cfg, router, log)

	// Run with signal cancellation
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := silk.PruneOptions{MaxRequests: cfg.Silk.MaxRecordedRequests, OlderThan: cfg.Silk.Retention}
	if opts.MaxRequests > 0 || opts.OlderThan > 0 {
		go func() {
			t := time.NewTicker(retentionInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if _, err := rec.Prune(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
						log.Error("retention sweep failed", "err", err)
					}
				}
			}
		}()
	}

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}

	log.Info("server exited cleanly")
}
