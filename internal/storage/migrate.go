package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationResult describes the versioned baseline after RunMigrations.
type MigrationResult struct {
	Version   uint
	Applied   bool
	Recovered bool
}

// RunMigrations applies the embedded baseline migrations. Every baseline
// statement is idempotent, so a dirty version left behind by a crashed run is
// forced back one step and applied again.
func RunMigrations(dsn string) (MigrationResult, error) {
	var res MigrationResult

	// Create a separate connection for migrations: closing the migrate
	// instance closes the database it was given.
	migrateDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return res, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return res, fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return res, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return res, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	var dirty migrate.ErrDirty
	if errors.As(err, &dirty) {
		prev := dirty.Version - 1
		if prev < 1 {
			prev = -1
		}
		if ferr := m.Force(prev); ferr != nil {
			return res, fmt.Errorf("force dirty version %d: %w", dirty.Version, ferr)
		}
		res.Recovered = true
		err = m.Up()
	}
	switch {
	case err == nil:
		res.Applied = true
	case errors.Is(err, migrate.ErrNoChange):
	default:
		return res, fmt.Errorf("run migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return res, fmt.Errorf("read migration version: %w", err)
	}
	res.Version = version

	return res, nil
}
