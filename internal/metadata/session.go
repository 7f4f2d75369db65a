package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store opens both the GORM handle (entity CRUD, migrations, transactions)
// and a raw pgx pool against the same Postgres database, per the Domain
// Stack: GORM for aggregate CRUD, pgx available for specialized queries an
// ORM expresses awkwardly. Advisory locks are taken on the GORM transaction
// itself (see AcquireReleaseWriteLock) rather than through this pool, since
// a lock must share a connection with the work it serializes.
type Store struct {
	DB   *gorm.DB
	Pool *pgxpool.Pool
}

// Open connects both handles and runs migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("metadata: gorm open: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("metadata: migrate: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: pgxpool open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("metadata: pgxpool ping: %w", err)
	}
	return &Store{DB: db, Pool: pool}, nil
}

// Close releases both handles.
func (s *Store) Close() error {
	s.Pool.Close()
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Session is one logical unit of work: a GORM transaction plus, where
// needed, a release-scoped advisory write lock. It is the target of §4.A's
// "async begin/commit/rollback... explicit write-lock acquisition" and is
// the RAII-managed handle the Revision Manager (§4.C) and Release State
// Machine (§4.D) acquire.
type Session struct {
	tx *gorm.DB
}

// WithSession runs fn inside a single database transaction, rolling back on
// any returned error (including a panic, which is re-raised after rollback).
func (s *Store) WithSession(ctx context.Context, fn func(sess *Session) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess := &Session{tx: tx}
		return fn(sess)
	})
}

// DB exposes the underlying transactional *gorm.DB for entity queries.
func (sess *Session) DB() *gorm.DB { return sess.tx }

// AcquireReleaseWriteLock takes a transaction-scoped Postgres advisory lock
// keyed on the release id. It is released automatically at transaction end.
// This is the module's analog of SQLite's BEGIN IMMEDIATE (see DESIGN.md):
// Postgres has no whole-database write lock worth taking, so the serialize-
// this-release intent of §4.C/§4.D is expressed as a per-release advisory
// lock instead.
//
// The lock must be taken on the same connection as the transaction it
// protects -- pg_advisory_xact_lock is scoped to the session that calls it
// and released at that session's transaction end. It is issued through
// sess.tx (the GORM transaction) rather than a separate pooled connection,
// so it lives on the same connection as the RevisionCounter bump and
// Revision insert it is meant to serialize against concurrent callers.
func (sess *Session) AcquireReleaseWriteLock(releaseID uint) error {
	// pg_advisory_xact_lock takes a single bigint key; releaseID fits easily.
	return sess.tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(releaseID)).Error
}

// UpsertOnConflict performs an INSERT ... ON CONFLICT (primary key) DO
// UPDATE for the given model, per §4.A "upsert on conflict by primary key".
func (sess *Session) UpsertOnConflict(model any, conflictColumns []string) error {
	return sess.tx.Clauses(clause.OnConflict{
		Columns:   toColumns(conflictColumns),
		UpdateAll: true,
	}).Create(model).Error
}

func toColumns(names []string) []clause.Column {
	cols := make([]clause.Column, len(names))
	for i, n := range names {
		cols[i] = clause.Column{Name: n}
	}
	return cols
}

// ErrNoRows is returned by Demand-style lookups when no row matched and the
// caller supplied no replacement error.
var ErrNoRows = errors.New("metadata: no matching row")

// Demand takes the error of a lookup and, if it is gorm.ErrRecordNotFound,
// substitutes notFoundErr (or ErrNoRows when notFoundErr is nil) instead;
// any other error is returned unchanged -- the Go analog of the original's ".demand(err)"
// pattern (§4.A "missing row where .demand(err) was used raises the
// caller-supplied error").
func Demand(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if notFoundErr != nil {
			return notFoundErr
		}
		return ErrNoRows
	}
	return err
}
