package aggregates

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/yungbote/aggsync/internal/data/repos"
	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

// Result describes one parent recomputation.
type Result struct {
	Definition string          `json:"definition"`
	ParentID   any             `json:"parent_id"`
	Resolved   bool            `json:"resolved"`
	Changed    bool            `json:"changed"`
	Old        domainagg.Value `json:"old"`
	New        domainagg.Value `json:"new"`
}

// Updater recomputes a parent's aggregate and writes it back when it moved.
type Updater struct {
	eval  *Evaluator
	guard CASGuard
}

func NewUpdater(eval *Evaluator, guard CASGuard) *Updater {
	return &Updater{eval: eval, guard: guard}
}

// Update is idempotent. A parent row that does not exist yields Resolved=false and no
// error; an unchanged value is not written.
func (u *Updater) Update(dbc dbctx.Context, def domainagg.Definition, parentID any) (Result, error) {
	res := Result{Definition: def.Name, ParentID: repos.Normalize(parentID)}
	if res.ParentID == nil {
		return res, nil
	}
	stored, found, err := u.eval.Stored(dbc, def, res.ParentID)
	if err != nil || !found {
		return res, err
	}
	res.Resolved = true
	res.Old = stored

	next, err := u.eval.Compute(dbc, def, res.ParentID)
	if err != nil {
		return res, err
	}
	res.New = next
	if sameStored(stored, next) {
		return res, nil
	}

	ok, err := u.guard.UpdateColumnIf(dbc, ColumnWrite{
		Table:  def.ParentTable,
		Key:    def.ParentKey,
		KeyVal: res.ParentID,
		Column: def.TargetColumn,
	}, stored, next)
	if err != nil {
		return res, err
	}
	if err := RequireCASSuccess(ok, fmt.Sprintf("%s.%s changed concurrently for %v", def.ParentTable, def.TargetColumn, res.ParentID)); err != nil {
		return res, err
	}
	res.Changed = true
	return res, nil
}

// sameStored compares values the way the column would hold them.
func sameStored(a, b domainagg.Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() == b.IsNull()
	}
	return repos.SameValue(a.Native(), b.Native())
}

// assignValue writes v into a struct field of numeric, pointer-to-numeric or
// sql.Scanner type.
func assignValue(field reflect.Value, v domainagg.Value) error {
	if !field.CanSet() {
		return fmt.Errorf("field of type %s is not settable", field.Type())
	}
	if field.CanAddr() {
		if sc, ok := field.Addr().Interface().(sql.Scanner); ok {
			return sc.Scan(v.Native())
		}
	}
	if field.Kind() == reflect.Pointer {
		if v.IsNull() {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := assignValue(elem.Elem(), v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}
	if v.IsNull() {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		field.SetInt(v.Decimal.IntPart())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Decimal.IsNegative() {
			return fmt.Errorf("cannot store %s in %s", v, field.Type())
		}
		field.SetUint(uint64(v.Decimal.IntPart()))
	case reflect.Float32, reflect.Float64:
		field.SetFloat(v.Decimal.InexactFloat64())
	default:
		return fmt.Errorf("unsupported aggregate field type %s", field.Type())
	}
	return nil
}
