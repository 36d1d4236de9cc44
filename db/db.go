package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connect opens a pooled handle for driver and verifies it within timeout.
func Connect(driver, dsn string, timeout time.Duration) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	if driver == DriverSQLite {
		// An in-memory database exists per connection.
		if isSQLiteMemory(dsn) {
			db.SetMaxOpenConns(1)
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return db, nil
}

// sqliteDSN adds the per-connection options the service relies on. go-sqlite3
// applies them to every connection it opens, not only the first one.
// Writers take the database lock at BEGIN and wait for it instead of failing
// with "database is locked".
func sqliteDSN(dsn string) string {
	options := [][2]string{
		{"_foreign_keys", "on"},
		{"_busy_timeout", "5000"},
	}
	if !isSQLiteMemory(dsn) {
		options = append(options,
			[2]string{"_txlock", "immediate"},
			[2]string{"_journal_mode", "WAL"},
		)
	}

	base, query, _ := strings.Cut(dsn, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}
	for _, opt := range options {
		if values.Get(opt[0]) == "" {
			values.Set(opt[0], opt[1])
		}
	}
	return base + "?" + values.Encode()
}

func isSQLiteMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
