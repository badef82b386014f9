// Package storage implements component A, the Storage Adapter: a scoped
// transactional handle over Postgres. The adapter never decides when to
// commit — only the dispatcher does (§4.G) — it only offers
// begin/flush/commit/rollback and typed row-level operations to whatever
// layer was handed the scope.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Adapter owns the pool a Scope is begun from.
type Adapter struct {
	pool *pgxpool.Pool
}

// New wraps a connection pool.
func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{pool: pool}
}

// Scope is a transactional handle bound to one request or task. Flushes
// within a scope are idempotent: writing the same logical row twice through
// upsert-shaped queries converges rather than erroring.
type Scope struct {
	tx        pgx.Tx
	committed bool
	rolledBck bool
}

// Begin opens a new transactional scope. The caller (always the dispatcher,
// per the structural rule in §4.G) owns commit/rollback.
func (a *Adapter) Begin(ctx context.Context) (*Scope, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	return &Scope{tx: tx}, nil
}

// Tx exposes the underlying transaction to row-level operations. Only code
// within pkg/storage and the domain drivers it's injected into should use
// this — handlers reach it exclusively through the scope the dispatcher
// handed them.
func (s *Scope) Tx() pgx.Tx { return s.tx }

// Flush is a no-op checkpoint: pgx executes statements eagerly, so Flush
// exists to give callers a named place to assert "everything written so far
// is visible within this transaction" without conflating it with Commit.
func (s *Scope) Flush(_ context.Context) error {
	return nil
}

// Commit finalizes the scope. Only the dispatcher may call this.
func (s *Scope) Commit(ctx context.Context) error {
	if s.committed || s.rolledBck {
		return nil
	}
	if err := s.tx.Commit(ctx); err != nil {
		return Classify(err)
	}
	s.committed = true
	return nil
}

// Rollback aborts the scope. Safe to call after Commit or a prior Rollback —
// it is a no-op in both cases, matching pgx's own tolerance for rolling back
// a finished transaction.
func (s *Scope) Rollback(ctx context.Context) error {
	if s.committed || s.rolledBck {
		return nil
	}
	s.rolledBck = true
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return Classify(err)
	}
	return nil
}

// SetSearchPath scopes every subsequent statement on this transaction to the
// given tenant schema (plus public, for shared lookups).
func (s *Scope) SetSearchPath(ctx context.Context, schema string) error {
	_, err := s.tx.Exec(ctx, "SELECT set_config('search_path', $1, true)", schema+", public")
	if err != nil {
		return Classify(err)
	}
	return nil
}

// ErrorClass is the Storage Adapter's transient/permanent error
// classification (§4.A). Drivers built on top of the adapter use this to
// decide whether to surface a retryable result.
type ErrorClass string

const (
	ErrorTransient ErrorClass = "transient"
	ErrorPermanent ErrorClass = "permanent"
)

// ClassifiedError carries the adapter's classification alongside the
// underlying pgx/pgconn error.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string { return fmt.Sprintf("%s: %v", e.Class, e.Err) }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify inspects a raw Postgres/pgx error and assigns it transient or
// permanent. Connection failures, serialization conflicts, and deadlocks are
// transient; everything else (constraint violations, syntax errors, missing
// rows) is permanent.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return &ClassifiedError{Class: ErrorTransient, Err: err}
		default:
			return &ClassifiedError{Class: ErrorPermanent, Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ClassifiedError{Class: ErrorTransient, Err: err}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &ClassifiedError{Class: ErrorPermanent, Err: err}
	}

	// Connection-layer failures (pool exhaustion, broken pipe) surface as
	// plain net/pgconn errors without a PgError code — treat as transient so
	// callers retry rather than fail the request outright.
	return &ClassifiedError{Class: ErrorTransient, Err: err}
}

// IsTransient reports whether err was classified transient.
func IsTransient(err error) bool {
	var ce *ClassifiedError
	return errors.As(err, &ce) && ce.Class == ErrorTransient
}
