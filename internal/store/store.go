// Package store provides the data access layer over the jobs table. The
// claim protocol and outcome writes are pgx native single-statement
// conditional updates (FOR UPDATE SKIP LOCKED); dynamic introspection
// queries are built with squirrel. The stdlib adapter is exposed for
// callers that want database/sql semantics (tests, ad-hoc tooling).
package store

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Store is the central data access object. All coordination between worker
// processes happens through its methods; no other shared state exists.
type Store struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// New creates a Store backed by pool. The same pool serves both pgx native
// statements and squirrel-built queries via the stdlib adapter.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		db:   stdlib.OpenDBFromPool(pool),
	}
}

// Pool returns the underlying pgxpool for callers that need pgx native
// operations, such as producers enqueueing inside their own transactions.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// DB returns the stdlib-wrapped *sql.DB.
func (s *Store) DB() *sql.DB { return s.db }
