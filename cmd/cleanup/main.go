// Command cleanup prunes recorded requests beyond SILK_MAX_RECORDED_REQUESTS
// and older than SILK_RETENTION, then exits.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"go-silk/internal/config"
	"go-silk/internal/db"
	"go-silk/internal/observability"
	"go-silk/internal/silk"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	opts := silk.PruneOptions{MaxRequests: cfg.Silk.MaxRecordedRequests, OlderThan: cfg.Silk.Retention}
	if opts.MaxRequests <= 0 && opts.OlderThan <= 0 {
		fmt.Fprintln(os.Stderr, "nothing to do: set SILK_MAX_RECORDED_REQUESTS or SILK_RETENTION (e.g. 720h)")
		os.Exit(2)
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.Env)

	dbx, err := db.New(cfg, log)
	if err != nil {
		log.Error("db connect failed", "err", err)
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

	n, err := silk.NewRecorder(repo, log).Prune(context.Background(), opts)
	if err != nil {
		log.Error("cleanup failed", "err", err, "deleted", n)
		os.Exit(1)
	}
	log.Info("cleanup completed", "deleted", n, "max_requests", opts.MaxRequests, "older_than", opts.OlderThan)
}
