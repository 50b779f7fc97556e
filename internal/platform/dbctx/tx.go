package dbctx

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrNoDB = errors.New("dbctx: no database handle")

// InTx runs fn inside a transaction. An existing dbc.Tx is reused as-is; otherwise a new
// transaction is opened on db, committed when fn succeeds, and its AfterCommit callbacks
// are flushed after the commit.
func InTx(dbc Context, db *gorm.DB, fn func(dbc Context) error) error {
	if fn == nil {
		return nil
	}
	if dbc.Tx != nil {
		return fn(dbc)
	}
	if db == nil {
		return ErrNoDB
	}
	var inner Context
	err := db.WithContext(dbc.Context()).Transaction(func(tx *gorm.DB) error {
		inner = dbc.WithTx(tx)
		return fn(inner)
	})
	if err != nil {
		return err
	}
	inner.FlushCommitted()
	return nil
}

// Begin opens a caller-managed transaction on db. Finish it with Commit or Rollback so
// AfterCommit callbacks registered inside it run only on commit.
func Begin(dbc Context, db *gorm.DB) (Context, error) {
	if db == nil {
		return dbc, ErrNoDB
	}
	tx := db.WithContext(dbc.Context()).Begin()
	if tx.Error != nil {
		return dbc, fmt.Errorf("begin tx: %w", tx.Error)
	}
	return dbc.WithTx(tx), nil
}

// Commit commits a transaction opened by Begin, then runs its AfterCommit callbacks.
func Commit(dbc Context) error {
	if dbc.Tx == nil {
		return ErrNoDB
	}
	if err := dbc.Tx.Commit().Error; err != nil {
		dbc.discardCommitted()
		return err
	}
	dbc.FlushCommitted()
	return nil
}

// Rollback aborts a transaction opened by Begin and drops its AfterCommit callbacks.
func Rollback(dbc Context) error {
	if dbc.Tx == nil {
		return ErrNoDB
	}
	dbc.discardCommitted()
	return dbc.Tx.Rollback().Error
}
