package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go-silk/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps gorm.DB with an underlying *sql.DB for pooling controls and Close.
type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
	log  *slog.Logger
}

// New opens the database named by cfg.DatabaseURL.
// postgres:// and postgresql:// URLs use PostgreSQL; sqlite:<path> uses SQLite.
func New(cfg config.Config, log *slog.Logger) (*DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if log == nil {
		log = slog.Default()
	}

	dialector, memory, err := dialectorFor(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	g, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := g.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	if memory {
		// an in-memory SQLite database lives only as long as its single connection
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(60 * time.Minute)
	}

	log.Info("database opened", "driver", dialector.Name(), "memory", memory)
	return &DB{Gorm: g, SQL: sqlDB, log: log}, nil
}

func dialectorFor(url string) (gorm.Dialector, bool, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.New(postgres.Config{
			DSN:                  url,
			PreferSimpleProtocol: true,
		}), false, nil
	case strings.HasPrefix(url, "sqlite:"):
		path := strings.TrimPrefix(url, "sqlite:")
		if path == "" {
			return nil, false, fmt.Errorf("sqlite path is empty")
		}
		memory := path == ":memory:" || strings.Contains(path, "mode=memory")
		return sqlite.Open(sqliteDSN(path, memory)), memory, nil
	default:
		return nil, false, fmt.Errorf("unsupported DATABASE_URL scheme: %q", schemeOf(url))
	}
}

// sqliteDSN makes transactions take the write lock at BEGIN and wait for a busy
// database instead of failing with "database is locked" once several pooled
// connections write. Parameters already present in path are kept.
func sqliteDSN(path string, memory bool) string {
	params := []string{"_txlock=immediate", "_busy_timeout=5000"}
	if !memory {
		params = append(params, "_journal_mode=WAL")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range params {
		key := p[:strings.IndexByte(p, '=')+1]
		if strings.Contains(path, key) {
			continue
		}
		path += sep + p
		sep = "&"
	}
	return path
}

func schemeOf(url string) string {
	if i := strings.Index(url, ":"); i > 0 {
		return url[:i]
	}
	return url
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.Info
	case "warn", "warning":
		return logger.Warn
	default:
		return logger.Error
	}
}

// Close closes the underlying sql.DB.
func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}
