// Command demo runs a small orders service instrumented by the collector,
// with the read API mounted under /silk.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/mattn/go-sqlite3"

	"go-silk/internal/collector"
	"go-silk/internal/config"
	"go-silk/internal/db"
	apihttp "go-silk/internal/http"
	"go-silk/internal/observability"
	"go-silk/internal/silk"
)

const appDSN = "file:demo-orders?mode=memory&cache=shared"

type order struct {
	ID    int64  `json:"id"`
	Item  string `json:"item"`
	Count int    `json:"count"`
}

func main() {
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
	defer dbx.Close()

	repo := silk.NewRepository(dbx.Gorm)
	if err := repo.Migrate(context.Background()); err != nil {
		log.Error("silk migration failed", "err", err)
		os.Exit(1)
	}
	rec := silk.NewRecorder(repo, log)

	collector.Register("sqlite3-silk", &sqlite3.SQLiteDriver{}, rec, log)
	app, err := sql.Open("sqlite3-silk", appDSN)
	if err != nil {
		log.Error("open app database failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()
	app.SetMaxOpenConns(1)
	if _, err := app.Exec(`CREATE TABLE IF NOT EXISTS orders (id INTEGER PRIMARY KEY, item TEXT NOT NULL, count INTEGER NOT NULL)`); err != nil {
		log.Error("create orders table failed", "err", err)
		os.Exit(1)
	}

	opts := collector.OptionsFrom(cfg.Silk)
	opts.IgnorePaths = append(opts.IgnorePaths, "/silk/")

	r := chi.NewRouter()
	r.Use(collector.Middleware(rec, opts, log))
	r.Get("/orders", listOrders(app, rec))
	r.Post("/orders", createOrder(app, rec))
	r.Mount("/silk", apihttp.NewRouter(cfg, log, rec, dbx.SQL))

	server := apihttp.NewServer(cfg, r, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func listOrders(app *sql.DB, rec *silk.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := collector.StartProfile(r.Context(), rec, "list orders")
		rows, err := app.QueryContext(ctx, `SELECT id, item, count FROM orders ORDER BY id`)
		if err != nil {
			span.End(err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		out := []order{}
		for rows.Next() {
			var o order
			if err := rows.Scan(&o.ID, &o.Item, &o.Count); err != nil {
				span.End(err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, o)
		}
		span.End(rows.Err())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

func createOrder(app *sql.DB, rec *silk.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var o order
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil || o.Item == "" {
			http.Error(w, "invalid order", http.StatusBadRequest)
			return
		}
		err := collector.ProfileFunc(r.Context(), rec, "insert order", func(ctx context.Context) error {
			res, err := app.ExecContext(ctx, `INSERT INTO orders (item, count) VALUES (?, ?)`, o.Item, o.Count)
			if err != nil {
				return err
			}
			o.ID, err = res.LastInsertId()
			return err
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(o)
	}
}
