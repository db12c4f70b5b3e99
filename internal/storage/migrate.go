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

// ErrDirtySchema means a previous migration failed halfway and needs manual repair.
var ErrDirtySchema = errors.New("database schema is dirty")

// SchemaVersion is the applied migration version of a database.
type SchemaVersion struct {
	Version uint
	Dirty   bool
}

// RunMigrations applies every pending migration to the database at dbPath
// and returns the resulting version.
func RunMigrations(dbPath string) (SchemaVersion, error) {
	var v SchemaVersion
	err := withMigrator(dbPath, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}
		var err error
		v, err = version(m)
		return err
	})
	return v, err
}

// CurrentSchema reports the applied version without migrating. A database
// that was never migrated reports version 0.
func CurrentSchema(dbPath string) (SchemaVersion, error) {
	var v SchemaVersion
	err := withMigrator(dbPath, func(m *migrate.Migrate) error {
		var err error
		v, err = version(m)
		return err
	})
	return v, err
}

func version(m *migrate.Migrate) (SchemaVersion, error) {
	ver, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, nil
	}
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return SchemaVersion{Version: ver, Dirty: true}, fmt.Errorf("version %d: %w", ver, ErrDirtySchema)
	}
	return SchemaVersion{Version: ver}, nil
}

// withMigrator opens its own connection so closing the migrator leaves the
// repository pool intact.
func withMigrator(dbPath string, fn func(*migrate.Migrate) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	return fn(m)
}
