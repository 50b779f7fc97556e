package aggregates

import (
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

// Evaluator runs aggregate queries against live child rows. It never writes.
type Evaluator struct {
	db *gorm.DB
}

func NewEvaluator(db *gorm.DB) *Evaluator {
	return &Evaluator{db: db}
}

// Compute evaluates def for one parent and applies the definition's empty-set policy.
func (e *Evaluator) Compute(dbc dbctx.Context, def domainagg.Definition, parentID any) (domainagg.Value, error) {
	db := dbc.DB(e.db)
	if db == nil {
		return domainagg.Null(), dbctx.ErrNoDB
	}
	q := db.Table(def.ChildTable).
		Select(def.SelectExpr(def.ChildTable)).
		Where(fmt.Sprintf("%s.%s = ?", def.ChildTable, def.ForeignKey), parentID)
	if def.Condition != "" {
		q = q.Where("(" + def.Condition + ")")
	}
	var raw domainagg.Value
	if err := q.Row().Scan(&raw); err != nil {
		return domainagg.Null(), fmt.Errorf("compute %s: %w", def.Name, err)
	}
	return def.Resolve(raw), nil
}

// Stored reads the cached value. found is false when no parent row has parentID.
func (e *Evaluator) Stored(dbc dbctx.Context, def domainagg.Definition, parentID any) (v domainagg.Value, found bool, err error) {
	db := dbc.DB(e.db)
	if db == nil {
		return domainagg.Null(), false, dbctx.ErrNoDB
	}
	err = db.Table(def.ParentTable).
		Select(def.TargetColumn).
		Where(fmt.Sprintf("%s = ?", def.ParentKey), parentID).
		Limit(1).
		Row().
		Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return domainagg.Null(), false, nil
	}
	if err != nil {
		return domainagg.Null(), false, fmt.Errorf("read %s: %w", def.Name, err)
	}
	return v, true, nil
}

// ParentKeys lists every parent key of def's parent table, ordered.
func (e *Evaluator) ParentKeys(dbc dbctx.Context, def domainagg.Definition) ([]any, error) {
	db := dbc.DB(e.db)
	if db == nil {
		return nil, dbctx.ErrNoDB
	}
	rows, err := db.Table(def.ParentTable).Select(def.ParentKey).Order(def.ParentKey).Rows()
	if err != nil {
		return nil, err
	}
	return scanKeys(rows)
}

func scanKeys(rows *sql.Rows) ([]any, error) {
	defer rows.Close()
	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
