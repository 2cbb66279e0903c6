package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is the query surface shared by a live connection and a transaction.
	DBExecutor interface {
		sqlx.QueryerContext
		sqlx.ExecerContext
	}

	// DB is the app-facing database handle.
	DB interface {
		DBExecutor

		Begin(ctx context.Context) (DBTransactor, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

// AtomicFunc runs within a transaction passed as exec.
type AtomicFunc func(exec DBExecutor) error

// Atomic runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func Atomic(ctx context.Context, db DB, fn AtomicFunc) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
