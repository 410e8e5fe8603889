// Package sqlite is the modernc.org/sqlite-backed implementation of
// store.RunStore. Schema bootstrap and migration follow
// internal/db/db.go and internal/db/migrate.go's pattern: embedded
// golang-migrate migrations build a fresh database and bring an
// existing one up to date, and a fixed set of performance PRAGMAs is
// applied unconditionally.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

// schema.sql is not embedded: it exists on disk purely as a
// human-readable snapshot of what the migrations in migrations/
// produce, kept in sync by hand (mirrors internal/db/db.go's
// schema.sql, whose header documents the same convention).
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a RunStore backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applies PRAGMAs, and
// brings the schema up to date via migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("outbreak/store/sqlite: open %s: %w", path, err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("outbreak/store/sqlite: apply %q: %w", p, err)
		}
	}
	return nil
}

func migrateUp(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("outbreak/store/sqlite: migrate instance: %w", err)
	}
	// Note: m.Close() is not called here — the sqlite migrate driver's
	// Close() would close db, which the Store owns and closes itself.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("outbreak/store/sqlite: migrate up: %w", err)
	}
	return nil
}
