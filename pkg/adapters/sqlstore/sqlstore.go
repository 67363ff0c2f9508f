// Package sqlstore keeps user records and session snapshots in a SQL database.
// SQLite (github.com/mattn/go-sqlite3) and PostgreSQL (github.com/lib/pq) are supported;
// both share one schema and one set of queries.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aretw0/gocare/internal/logging"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultDirPermissions is used when creating the directory of a SQLite file.
const DefaultDirPermissions = 0o755

// DB is an open, migrated database.
type DB struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Option configures Open.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Open connects with driver and dsn and applies the schema.
// For SQLite the parent directory of a file DSN is created.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	d := &DB{driver: driver, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	switch driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), DefaultDirPermissions); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection: keeps :memory: databases whole and serialises writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s ping failed: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	d.db = db
	d.logger.Debug("database ready", "driver", driver)
	return d, nil
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
