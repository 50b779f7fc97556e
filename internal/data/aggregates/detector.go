package aggregates

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/aggsync/internal/data/repos"
	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
)

// Relation is the parent a child pointed at before and after a write.
type Relation struct {
	Old any
	New any
}

// Changed reports whether the write moved the child between parents.
func (r Relation) Changed() bool { return !repos.SameValue(r.Old, r.New) }

// Parents returns the distinct non-nil parent keys touched by the write.
func (r Relation) Parents() []any {
	var set parentSet
	set.add(r.Old)
	set.add(r.New)
	return set.keys
}

// DetectRowChange reads the foreign key of def from both snapshots. Either snapshot may
// be nil (insert or delete).
func DetectRowChange(def domainagg.Definition, before, after repos.Row) Relation {
	var rel Relation
	if before != nil {
		rel.Old = repos.Normalize(before[def.ForeignKey])
	}
	if after != nil {
		rel.New = repos.Normalize(after[def.ForeignKey])
	}
	return rel
}

// touches reports whether any changed column feeds def.
func touches(def domainagg.Definition, columns []string) bool {
	for _, c := range columns {
		if def.Contributes(c) {
			return true
		}
	}
	return false
}

// matchedParents selects the distinct non-NULL foreign keys of the rows crit matches,
// qualified the same way the bulk statement will be.
func matchedParents(dbc dbctx.Context, db *gorm.DB, table, fk string, crit repos.Criteria) ([]any, error) {
	col := crit.Qualify(table, fk)
	rows, err := crit.Apply(dbc.DB(db), table).
		Select(fmt.Sprintf("DISTINCT %s", col)).
		Where(fmt.Sprintf("%s IS NOT NULL", col)).
		Rows()
	if err != nil {
		return nil, err
	}
	keys, err := scanKeys(rows)
	if err != nil {
		return nil, err
	}
	var set parentSet
	for _, k := range keys {
		set.add(k)
	}
	return set.keys, nil
}

// parentSet keeps normalized parent keys in first-seen order without duplicates.
type parentSet struct {
	seen map[string]struct{}
	keys []any
}

func (s *parentSet) add(v any) {
	n := repos.Normalize(v)
	k, ok := repos.Key(n)
	if !ok {
		return
	}
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, dup := s.seen[k]; dup {
		return
	}
	s.seen[k] = struct{}{}
	s.keys = append(s.keys, n)
}
