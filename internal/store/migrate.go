package store

import (
	"embed"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies every pending migration. A database already at the
// latest version is not an error.
func (db *DB) MigrateUp() error {
	return db.migrate("up", func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown() error {
	return db.migrate("down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateVersion reports the applied schema version; 0 means none.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) migrate(direction string, step func(*migrate.Migrate) error) error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close db.DB as well.
	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s %s: %w", direction, db.path, err)
	}
	return nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLogger{db: filepath.Base(db.path)}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{ db string }

func (l migrateLogger) Printf(format string, v ...any) {
	log.Printf("[migrate %s] %s", l.db, fmt.Sprintf(format, v...))
}

func (migrateLogger) Verbose() bool { return false }
