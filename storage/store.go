package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRows is returned by Row.Scan when a query matched nothing, whichever
// driver produced it.
var ErrNoRows = errors.New("storage: no rows in result set")

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier is the read/write surface shared by a store and its transactions.
// Queries use $N placeholders; the SQLite store rewrites them to ?N.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Tx is one unit of work. Rollback after Commit is a no-op.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is a durable relational store offering transactions
type Store interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Dialect() string
	Close() error
}

// InTx runs fn inside a transaction on s. The transaction commits when fn
// returns nil and rolls back on an error or a panic, which is re-raised.
func InTx(ctx context.Context, s Store, fn func(q *Queries) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// the caller's ctx may already be done; rollback must still run
		_ = tx.Rollback(context.WithoutCancel(ctx))
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(New(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
