// Package store opens the backing database (Postgres in production,
// SQLite for local/dev) and runs schema migrations, following the
// teacher's driver-switch-on-config db package.
package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Driver selects the SQL backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Open opens dsn against driver and verifies connectivity.
func Open(driver Driver, dsn string) (*sql.DB, error) {
	driverName, err := sqlDriverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}
	return db, nil
}

// Migrate applies every embedded migration to db.
func Migrate(db *sql.DB, driver Driver) error {
	driverName, err := sqlDriverName(driver)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(gooseDialect(driver)); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: migrate %s (%s): %w", driver, driverName, err)
	}
	return nil
}

func sqlDriverName(driver Driver) (string, error) {
	switch driver {
	case DriverPostgres:
		return "pgx", nil
	case DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("store: unknown driver %q", driver)
	}
}

func gooseDialect(driver Driver) string {
	if driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite3"
}
