package postgres

import (
	"context"
	"fmt"
	"time"

	apperrors "parkline/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type TransactionFunc func(ctx context.Context) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type pgTransactionManager struct {
	db DB
}

func NewTransactionManager(db DB) TransactionManager {
	return &pgTransactionManager{
		db: db,
	}
}

// ExecuteTransaction runs fn inside a transaction carried by the context passed to fn.
// Nested calls join the outer transaction. Any error or panic rolls everything back.
func (m *pgTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) (err error) {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(ctx, tx)
			panic(p)
		}
	}()

	if err = fn(withTx(ctx, tx)); err != nil {
		rollback(ctx, tx)
		if apperrors.IsAppError(err) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	// a failed rollback closes the underlying connection, so the pool never reuses it
	_ = tx.Rollback(rbCtx)
}
