// Package postgres implements the order, stock and appointment stores on
// pgx. Stock writes lock product rows with SELECT ... FOR UPDATE in id order
// and additionally compare the row version.
package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/appointments"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
	"github.com/ariefcatur/storefront-orders/internal/orders"
)

var (
	_ orders.Store       = (*Store)(nil)
	_ inventory.Store    = (*Store)(nil)
	_ appointments.Store = (*Store)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Ping(ctx context.Context) error {
	return mapErr("postgres.Ping", s.pool.Ping(ctx))
}

// WithTx runs fn in a read committed transaction. Row locks taken by
// LockOrder and LockProducts serialize competing writers.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	const op = "postgres.WithTx"
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapErr(op, err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(ctx, &tx{q: pgtx}); err != nil {
		return err
	}
	return mapErr(op, pgtx.Commit(ctx))
}

func (s *Store) WithStockTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	return s.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error { return fn(ctx, tx) })
}

type tx struct {
	q pgx.Tx
}

// mapErr translates driver errors into the apperr taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(op, "not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			code := apperr.CodeDuplicateKey
			if pgErr.ConstraintName == "orders_ref_key" || pgErr.ConstraintName == "appointments_ref_key" {
				code = apperr.CodeDuplicateRef
			}
			return &apperr.Error{Op: op, Kind: apperr.KindConflict, Code: code, Message: pgErr.Detail, Err: err}
		case "23514":
			return &apperr.Error{Op: op, Kind: apperr.KindValidation, Message: "constraint " + pgErr.ConstraintName + " violated", Err: err}
		case "40001", "40P01":
			return &apperr.Error{Op: op, Kind: apperr.KindConflict, Code: apperr.CodeVersionMismatch, Message: "concurrent update", Err: err}
		case "57P01", "57P03", "53300":
			return apperr.Unavailable(op, err)
		}
		return apperr.Internal(op, err)
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Unavailable(op, err)
	}
	return apperr.Internal(op, err)
}
