package aggregates

import (
	"gorm.io/gorm"

	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

// TxRunner provides a shared transaction boundary primitive for aggregate writes.
// A dbc that already carries a transaction is joined rather than nested.
type TxRunner interface {
	InTx(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner returns a transaction runner backed by GORM transactions.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if dbc.Tx == nil && (r == nil || r.db == nil) {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	var db *gorm.DB
	if r != nil {
		db = r.db
	}
	return dbctx.InTx(dbc, db, fn)
}
