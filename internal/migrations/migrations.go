// Package migrations applies the embedded schema for the Postgres local store.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed sql/*.sql
var files embed.FS

// Up applies every pending migration against databaseURL. It opens its own
// short-lived database/sql connection through the pgx stdlib driver.
func Up(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			slog.Error("error closing migration connection", "error", cerr)
		}
	}()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping for migrations: %w", err)
	}

	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	err = m.Up()
	sourceErr, dbErr := m.Close()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("no new migrations to apply")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		slog.Info("database migrations applied")
	}
	if sourceErr != nil {
		return fmt.Errorf("migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration database: %w", dbErr)
	}
	return nil
}

// Version reports the applied schema version.
func Version(databaseURL string) (version uint, dirty bool, err error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return 0, false, fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	m, err := newMigrate(db)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migrate postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}
