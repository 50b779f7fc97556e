package repos

import (
	"sort"

	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Row is a column-keyed snapshot of one persisted entity.
type Row map[string]any

// RowChange describes a single-entity write. Before is nil for inserts, After is nil for
// deletes.
type RowChange struct {
	Table  string
	Op     Operation
	Before Row
	After  Row
}

// ChangedColumns lists columns whose value differs between Before and After, sorted.
// Inserts and deletes report every column of the present snapshot.
func (c RowChange) ChangedColumns() []string {
	var out []string
	switch {
	case c.Before == nil:
		for k := range c.After {
			out = append(out, k)
		}
	case c.After == nil:
		for k := range c.Before {
			out = append(out, k)
		}
	default:
		for k, after := range c.After {
			if !SameValue(c.Before[k], after) {
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

// BulkChange describes a filter-based update or delete, announced before it executes.
type BulkChange struct {
	Table    string
	Op       Operation
	Criteria Criteria
	// Values holds the column assignments of a bulk update, keyed by column name.
	Values map[string]any
}

// AfterBulkFunc completes an observer's work once the bulk statement has run.
type AfterBulkFunc func(dbc dbctx.Context, affected int64) error

// Observer is notified synchronously, inside the writing transaction, about every write
// a repo performs. An error aborts the write.
type Observer interface {
	RowChanged(dbc dbctx.Context, change RowChange) error
	// BeforeBulk runs before the statement; the returned func (may be nil) runs after it.
	BeforeBulk(dbc dbctx.Context, change BulkChange) (AfterBulkFunc, error)
}
