// Package store is the relayer's Postgres repository: every read and
// write path named in the admission, broadcast, escalation, indexer and
// reorg-reconciliation flows lives here. Grounded on the original
// implementation's src/db.rs, reworked from sqlx-rust's query_as into
// jmoiron/sqlx's StructScan over lib/pq, and on the teacher's raw-SQL
// idiom in geth-17-indexer.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store wraps a Postgres connection pool.
type Store struct {
	db *sqlx.DB
}

// Open connects to connectionString and verifies connectivity.
func Open(connectionString string) (*Store, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies every embedded migration file in lexical order. Each
// file is expected to be idempotent (CREATE TABLE IF NOT EXISTS, etc.), so
// Migrate can run unconditionally at startup.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("store: read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("store: apply migration %s: %w", name, err)
		}
	}

	return nil
}

// txFunc runs fn inside a transaction, committing on success and rolling
// back on any error including a panic recovered and re-raised.
func (s *Store) txFunc(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}

// ErrNotFound is returned by single-row lookups that matched nothing.
var ErrNotFound = sql.ErrNoRows
