package aggregates

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

// CASGuard provides optimistic/concurrency guard helpers for aggregate writes.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if db := dbc.DB(g.db); db != nil {
		return db, nil
	}
	return nil, ValidationError("missing db transaction context")
}

// ColumnWrite targets one column of one row.
type ColumnWrite struct {
	Table  string
	Key    string
	KeyVal any
	Column string
}

func (w ColumnWrite) validate() error {
	for _, ident := range []string{w.Table, w.Key, w.Column} {
		if !domainagg.IsIdentifier(strings.TrimSpace(ident)) {
			return ValidationError(fmt.Sprintf("invalid identifier %q for column write", ident))
		}
	}
	if w.KeyVal == nil {
		return ValidationError("key value is required for column write")
	}
	return nil
}

// UpdateColumnIf sets the column to next only while it still holds expected.
// It implements compare-and-set semantics for cached aggregate values.
func (g CASGuard) UpdateColumnIf(dbc dbctx.Context, w ColumnWrite, expected, next domainagg.Value) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	if err := w.validate(); err != nil {
		return false, err
	}
	q := db.Table(w.Table).Where(fmt.Sprintf("%s = ?", w.Key), w.KeyVal)
	if expected.IsNull() {
		q = q.Where(fmt.Sprintf("%s IS NULL", w.Column))
	} else {
		q = q.Where(fmt.Sprintf("%s = ?", w.Column), expected.Native())
	}
	res := q.UpdateColumn(w.Column, next.Native())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}
