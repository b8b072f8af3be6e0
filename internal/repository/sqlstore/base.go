package sqlstore

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
	q  queryer
	tx *sqlx.Tx
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db, q: db}
}

func (r *BaseRepository) inTx() bool {
	return r.tx != nil
}

// get runs a ?-placeholder query rebound for the current driver.
func (r *BaseRepository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return r.q.GetContext(ctx, dest, r.q.Rebind(query), args...)
}

func (r *BaseRepository) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return r.q.SelectContext(ctx, dest, r.q.Rebind(query), args...)
}

func (r *BaseRepository) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.q.Rebind(query), args...)
}

// withTx executes fn with a base bound to a new transaction. Nested calls
// reuse the open transaction.
func (r *BaseRepository) withTx(ctx context.Context, fn func(BaseRepository) error) error {
	if r.inTx() {
		return fn(*r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(BaseRepository{db: r.db, q: tx, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit transaction", err)
	}
	return nil
}
