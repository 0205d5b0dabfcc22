package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB pairs a connection with the statement builder matching its driver's
// placeholder format.
type DB struct {
	*sql.DB
	Driver string
	psql   sq.StatementBuilderType
}

var schemas = map[string]string{
	DriverSQLite: `
	CREATE TABLE IF NOT EXISTS photos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		location TEXT NOT NULL,
		category TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_photos_category_created ON photos (category, created_at);
	`,
	DriverPostgres: `
	CREATE TABLE IF NOT EXISTS photos (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		location TEXT NOT NULL,
		category TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_photos_category_created ON photos (category, created_at);
	`,
}

func InitDB(driver, dataSourceName string, log *zap.SugaredLogger) (*DB, error) {
	var sqlDriver string
	var placeholder sq.PlaceholderFormat
	switch driver {
	case DriverSQLite:
		sqlDriver, placeholder = "sqlite3", sq.Question
	case DriverPostgres:
		sqlDriver, placeholder = "pgx", sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", driver)
	}

	db, err := sql.Open(sqlDriver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// enable write-ahead Logging for better concurrency
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			log.Warnf("database: failed to set WAL mode: %v", err)
		}
	}

	if _, err := db.Exec(schemas[driver]); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create photos table: %w", err)
	}

	log.Infof("database: photos table ready (%s)", driver)
	return &DB{DB: db, Driver: driver, psql: sq.StatementBuilder.PlaceholderFormat(placeholder)}, nil
}
