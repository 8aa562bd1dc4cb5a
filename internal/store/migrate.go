package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/raptchat/rapt/internal/store/migrations"
)

// ErrDirtySchema means a previous migration stopped halfway. The cache must
// be repaired or deleted before raptd can use it.
var ErrDirtySchema = errors.New("cache schema is dirty")

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Changed bool
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

// Migrate brings the cache schema up to date. It refuses to touch a dirty
// schema.
func (db *DB) Migrate() (*MigrateResult, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	if _, dirty, err := m.Version(); err == nil && dirty {
		return nil, ErrDirtySchema
	} else if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	changed := true
	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		changed = false
	} else if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	return &MigrateResult{Version: version, Changed: changed}, nil
}

// SchemaVersion reports the applied schema version and whether it is dirty.
// A database that was never migrated reports version 0.
func (db *DB) SchemaVersion() (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&tables); err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	if tables == 0 {
		return 0, false, nil
	}
	err := db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}
