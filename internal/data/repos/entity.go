package repos

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	domagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
	"github.com/yungbote/aggsync/internal/platform/logger"
)

// EntityRepo persists one model type and reports every write to its observers.
type EntityRepo[T any] interface {
	Table() string
	Observe(obs Observer)

	Save(dbc dbctx.Context, row *T) error
	Delete(dbc dbctx.Context, row *T) error
	GetByID(dbc dbctx.Context, id any) (*T, error)
	List(dbc dbctx.Context, crit Criteria) ([]*T, error)
	UpdateWhere(dbc dbctx.Context, crit Criteria, values map[string]any) (int64, error)
	DeleteWhere(dbc dbctx.Context, crit Criteria) (int64, error)
}

type entityRepo[T any] struct {
	db     *gorm.DB
	log    *logger.Logger
	schema *schema.Schema
	pk     *schema.Field

	mu        sync.RWMutex
	observers []Observer
}

// NewEntityRepo parses T's gorm schema once; T must have a single primary key.
func NewEntityRepo[T any](db *gorm.DB, baseLog *logger.Logger, observers ...Observer) (EntityRepo[T], error) {
	if db == nil {
		return nil, dbctx.ErrNoDB
	}
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parse model schema: %w", err)
	}
	sch := stmt.Schema
	if len(sch.PrimaryFields) != 1 {
		return nil, fmt.Errorf("model %s: expected exactly one primary key, got %d", sch.Name, len(sch.PrimaryFields))
	}
	r := &entityRepo[T]{
		db:     db,
		schema: sch,
		pk:     sch.PrimaryFields[0],
	}
	if baseLog != nil {
		r.log = baseLog.With("repo", sch.Name+"Repo", "table", sch.Table)
	}
	for _, o := range observers {
		r.Observe(o)
	}
	return r, nil
}

func (r *entityRepo[T]) Table() string { return r.schema.Table }

func (r *entityRepo[T]) Observe(obs Observer) {
	if obs == nil {
		return
	}
	r.mu.Lock()
	r.observers = append(r.observers, obs)
	r.mu.Unlock()
}

func (r *entityRepo[T]) watchers() []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Observer(nil), r.observers...)
}

// Save inserts row when its primary key is zero or unknown, otherwise updates it.
// UUID primary keys are assigned on insert.
func (r *entityRepo[T]) Save(dbc dbctx.Context, row *T) error {
	if row == nil {
		return domagg.NewError(domagg.CodeValidation, "repos.Save", "nil "+r.schema.Table, nil)
	}
	return dbctx.InTx(dbc, r.db, func(dbc dbctx.Context) error {
		ctx := dbc.Context()
		rv := reflect.ValueOf(row).Elem()
		id, zero := r.pk.ValueOf(ctx, rv)

		var before Row
		if !zero {
			prior, err := r.load(dbc, id)
			if err != nil {
				return err
			}
			if prior != nil {
				before = r.snapshot(prior)
			}
		}

		transaction := dbc.DB(r.db)
		if before == nil {
			if zero && r.pk.FieldType == reflect.TypeOf(uuid.UUID{}) {
				if err := r.pk.Set(ctx, rv, uuid.New()); err != nil {
					return err
				}
			}
			if err := transaction.Omit(clause.Associations).Create(row).Error; err != nil {
				return err
			}
			return r.notifyRow(dbc, RowChange{Table: r.schema.Table, Op: OpInsert, After: r.snapshot(row)})
		}

		if err := transaction.Omit(clause.Associations).Save(row).Error; err != nil {
			return err
		}
		return r.notifyRow(dbc, RowChange{Table: r.schema.Table, Op: OpUpdate, Before: before, After: r.snapshot(row)})
	})
}

// Delete removes row by primary key. Deleting a row that is not stored is a no-op.
func (r *entityRepo[T]) Delete(dbc dbctx.Context, row *T) error {
	if row == nil {
		return nil
	}
	return dbctx.InTx(dbc, r.db, func(dbc dbctx.Context) error {
		id, zero := r.pk.ValueOf(dbc.Context(), reflect.ValueOf(row).Elem())
		if zero {
			return nil
		}
		prior, err := r.load(dbc, id)
		if err != nil || prior == nil {
			return err
		}
		res := dbc.DB(r.db).Delete(prior)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return r.notifyRow(dbc, RowChange{Table: r.schema.Table, Op: OpDelete, Before: r.snapshot(prior)})
	})
}

func (r *entityRepo[T]) GetByID(dbc dbctx.Context, id any) (*T, error) {
	return r.load(dbc, id)
}

func (r *entityRepo[T]) List(dbc dbctx.Context, crit Criteria) ([]*T, error) {
	if err := crit.Validate(); err != nil {
		return nil, err
	}
	var out []*T
	q := crit.Apply(dbc.DB(r.db).Model(new(T)), r.schema.Table)
	if err := q.Order(crit.Qualify(r.schema.Table, r.pk.DBName)).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateWhere assigns values to every row matching crit. Keys may be column or field
// names.
func (r *entityRepo[T]) UpdateWhere(dbc dbctx.Context, crit Criteria, values map[string]any) (int64, error) {
	if err := crit.Validate(); err != nil {
		return 0, err
	}
	cols, err := r.columnValues(values)
	if err != nil || len(cols) == 0 {
		return 0, err
	}
	var affected int64
	err = dbctx.InTx(dbc, r.db, func(dbc dbctx.Context) error {
		afters, err := r.beforeBulk(dbc, BulkChange{Table: r.schema.Table, Op: OpUpdate, Criteria: crit, Values: cols})
		if err != nil {
			return err
		}
		updates := make(map[string]any, len(cols))
		for k, v := range cols {
			updates[k] = v
		}
		res := r.bulkScope(dbc, crit).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return runAfters(dbc, afters, affected)
	})
	if err != nil {
		return 0, err
	}
	r.debug("bulk update", "criteria", crit.String(), "affected", affected)
	return affected, nil
}

func (r *entityRepo[T]) DeleteWhere(dbc dbctx.Context, crit Criteria) (int64, error) {
	if err := crit.Validate(); err != nil {
		return 0, err
	}
	var affected int64
	err := dbctx.InTx(dbc, r.db, func(dbc dbctx.Context) error {
		afters, err := r.beforeBulk(dbc, BulkChange{Table: r.schema.Table, Op: OpDelete, Criteria: crit})
		if err != nil {
			return err
		}
		res := r.bulkScope(dbc, crit).Delete(new(T))
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return runAfters(dbc, afters, affected)
	})
	if err != nil {
		return 0, err
	}
	r.debug("bulk delete", "criteria", crit.String(), "affected", affected)
	return affected, nil
}

func (r *entityRepo[T]) debug(msg string, kv ...any) {
	if r.log != nil {
		r.log.Debug(msg, kv...)
	}
}

func (r *entityRepo[T]) bulkScope(dbc dbctx.Context, crit Criteria) *gorm.DB {
	transaction := dbc.DB(r.db)
	if crit.Empty() {
		transaction = transaction.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	return crit.Apply(transaction.Model(new(T)), r.schema.Table)
}

func (r *entityRepo[T]) load(dbc dbctx.Context, id any) (*T, error) {
	var out T
	err := dbc.DB(r.db).
		Where(clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: r.pk.DBName}, Value: id}).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *entityRepo[T]) snapshot(row *T) Row {
	rv := reflect.ValueOf(row).Elem()
	out := make(Row, len(r.schema.DBNames))
	for _, name := range r.schema.DBNames {
		f := r.schema.FieldsByDBName[name]
		if f == nil {
			continue
		}
		v, _ := f.ValueOf(context.Background(), rv)
		out[name] = Normalize(v)
	}
	return out
}

func (r *entityRepo[T]) columnValues(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		f := r.schema.LookUpField(strings.TrimSpace(k))
		if f == nil || f.DBName == "" {
			return nil, domagg.NewError(domagg.CodeValidation, "repos.UpdateWhere", fmt.Sprintf("%s has no column %q", r.schema.Table, k), nil)
		}
		if f.PrimaryKey {
			return nil, domagg.NewError(domagg.CodeValidation, "repos.UpdateWhere", "primary keys cannot be bulk-updated", nil)
		}
		out[f.DBName] = v
	}
	return out, nil
}

func (r *entityRepo[T]) notifyRow(dbc dbctx.Context, change RowChange) error {
	for _, o := range r.watchers() {
		if err := o.RowChanged(dbc, change); err != nil {
			return err
		}
	}
	return nil
}

func (r *entityRepo[T]) beforeBulk(dbc dbctx.Context, change BulkChange) ([]AfterBulkFunc, error) {
	var afters []AfterBulkFunc
	for _, o := range r.watchers() {
		fn, err := o.BeforeBulk(dbc, change)
		if err != nil {
			return nil, err
		}
		if fn != nil {
			afters = append(afters, fn)
		}
	}
	return afters, nil
}

func runAfters(dbc dbctx.Context, afters []AfterBulkFunc, affected int64) error {
	for _, fn := range afters {
		if err := fn(dbc, affected); err != nil {
			return err
		}
	}
	return nil
}
