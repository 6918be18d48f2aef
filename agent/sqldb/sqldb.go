package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	sampleRows = 3
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrReadOnly     = errors.New("only read-only statements are allowed")
)

type Config struct {
	Driver  string `envconfig:"DRIVER" split_words:"true" default:"sqlite"`
	DSN     string `envconfig:"DSN" split_words:"true" default:"file:appointments.db?mode=ro"`
	TopK    int    `envconfig:"TOP_K" split_words:"true" default:"5"`
	MaxRows int    `envconfig:"MAX_ROWS" split_words:"true" default:"100"`
}

// DB is the read-only SQL capability the assistant uses to check
// availability.
type DB struct {
	db      *bun.DB
	driver  string
	maxRows int
}

func Open(ctx context.Context, cfg Config) (*DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("sqldb: dsn is required")
	}

	var bdb *bun.DB
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqldb: open sqlite: %w", err)
		}
		// One connection keeps ":memory:" databases coherent.
		sqldb.SetMaxOpenConns(1)
		bdb = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres, "pg", "postgresql":
		driver = DriverPostgres
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		bdb = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("sqldb: unsupported driver %q", cfg.Driver)
	}

	if err := bdb.PingContext(ctx); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("sqldb: ping %s: %w", driver, err)
	}

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 100
	}
	log.Info().Str("driver", driver).Msg("sql database connected")
	return &DB{db: bdb, driver: driver, maxRows: maxRows}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// DialectName is the human name used in the system prompt.
func (d *DB) DialectName() string {
	if d.driver == DriverPostgres {
		return "PostgreSQL"
	}
	return "SQLite"
}

func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if d.driver == DriverPostgres {
		query = `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
	}

	var names []string
	if err := d.db.NewRaw(query).Scan(ctx, &names); err != nil {
		return nil, fmt.Errorf("sqldb: list tables: %w", err)
	}
	return names, nil
}
