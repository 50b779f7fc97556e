package aggregates

import (
	"github.com/yungbote/aggsync/internal/data/repos"
	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/ctxutil"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

// Interceptor keeps aggregate columns current as repos write child rows. Register it on
// every repo whose table appears in the registry.
type Interceptor struct {
	engine *Engine
}

var _ repos.Observer = (*Interceptor)(nil)

// RowChanged recomputes the old and new parent of a written child once each. Updates
// that leave every contributing column untouched are ignored. An update that rewrites a
// parent's cached column directly is corrected in place.
func (i *Interceptor) RowChanged(dbc dbctx.Context, change repos.RowChange) error {
	e := i.engine
	dbc.Ctx = ctxutil.WithTrigger(dbc.Context(), ctxutil.Trigger{Source: ctxutil.SourceRow, Table: change.Table, Op: string(change.Op)})
	var changed []string
	if change.Op == repos.OpUpdate {
		changed = change.ChangedColumns()
	}
	for _, def := range e.registry.ForChild(change.Table) {
		if change.Op == repos.OpUpdate && !touches(def, changed) {
			continue
		}
		rel := DetectRowChange(def, change.Before, change.After)
		for _, id := range rel.Parents() {
			if _, err := e.recompute(dbc, def, id); err != nil {
				return err
			}
		}
	}
	if change.Op != repos.OpUpdate {
		return nil
	}
	for _, def := range e.registry.ForParent(change.Table) {
		if !containsColumn(changed, def.TargetColumn) {
			continue
		}
		if _, err := e.recompute(dbc, def, change.After[def.ParentKey]); err != nil {
			return err
		}
	}
	return nil
}

// BeforeBulk captures the parents of every row the bulk statement is about to touch.
// The returned func recomputes them, plus the parent a bulk update assigns, once the
// statement has run.
func (i *Interceptor) BeforeBulk(dbc dbctx.Context, change repos.BulkChange) (repos.AfterBulkFunc, error) {
	e := i.engine
	type pending struct {
		def     domainagg.Definition
		parents parentSet
	}
	var (
		work   []*pending
		byFK   = map[string][]any{}
		values []string
	)
	for col := range change.Values {
		values = append(values, col)
	}
	for _, def := range e.registry.ForChild(change.Table) {
		if change.Op == repos.OpUpdate && !touches(def, values) {
			continue
		}
		keys, ok := byFK[def.ForeignKey]
		if !ok {
			var err error
			keys, err = matchedParents(dbc, e.deps.DB, change.Table, def.ForeignKey, change.Criteria)
			if err != nil {
				return nil, domainagg.WithDefinition(MapError("aggregates.bulk.detect", err), def.Name)
			}
			byFK[def.ForeignKey] = keys
		}
		p := &pending{def: def}
		for _, k := range keys {
			p.parents.add(k)
		}
		work = append(work, p)
	}
	if len(work) == 0 {
		return nil, nil
	}
	e.deps.Log.Debug("bulk change captured",
		"table", change.Table,
		"op", string(change.Op),
		"criteria", change.Criteria.String(),
		"definitions", len(work),
	)

	return func(dbc dbctx.Context, affected int64) error {
		if affected == 0 {
			return nil
		}
		dbc.Ctx = ctxutil.WithTrigger(dbc.Context(), ctxutil.Trigger{Source: ctxutil.SourceBulk, Table: change.Table, Op: string(change.Op)})
		for _, p := range work {
			if change.Op == repos.OpUpdate {
				if v, ok := change.Values[p.def.ForeignKey]; ok {
					p.parents.add(v)
				}
			}
			for _, id := range p.parents.keys {
				if _, err := e.recompute(dbc, p.def, id); err != nil {
					return err
				}
			}
		}
		return nil
	}, nil
}

func containsColumn(cols []string, want string) bool {
	for _, c := range cols {
		if c == want {
			return true
		}
	}
	return false
}
