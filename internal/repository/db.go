// Package repository holds the gorm-backed implementations of the domain
// repository interfaces. Multi-entity operations (order + items, result +
// cascade + outbox) run inside one transaction carried through the context,
// so every repository call inside TxManager.WithinTx shares the same tx.
package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// dbFrom prefers a transaction carried in the context over the shared pool.
func dbFrom(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback.WithContext(ctx)
}

type TxManager struct {
	conn *gorm.DB
}

func NewTxManager(conn *gorm.DB) *TxManager {
	return &TxManager{conn: conn}
}

// WithinTx runs fn inside a database transaction. Repository calls made with
// the derived context join the transaction; returning an error rolls
// everything back.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, tx))
	})
}
