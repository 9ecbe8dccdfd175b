package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// WithTransaction runs fn inside a transaction, committing when fn returns
// nil and rolling back otherwise. Stores passed the tx handle must use it for
// every statement that belongs to the transaction.
func WithTransaction(ctx context.Context, db Database, fn func(tx *gorm.DB) error) error {
	return db.Session(ctx).Transaction(fn)
}

// WithTransactionResult is WithTransaction for functions that produce a value.
// The zero value is returned when the transaction fails.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var result T
	err := db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := fn(tx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("transaction: %w", err)
	}
	return result, nil
}

// Scoped returns a Database whose sessions run on tx, so stores built on it
// join the transaction.
func Scoped(tx *gorm.DB) Database {
	return Database{db: tx}
}
