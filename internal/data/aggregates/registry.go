package aggregates

import (
	"fmt"
	"sort"
	"strings"

	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
)

// Registry indexes aggregate definitions by name and by the tables they read and write.
// It is immutable once built.
type Registry struct {
	byName   map[string]domainagg.Definition
	byChild  map[string][]domainagg.Definition
	byParent map[string][]domainagg.Definition
	names    []string
}

// NewRegistry normalizes and validates defs. A later definition replaces an earlier one
// with the same name; two names targeting the same parent column are rejected.
func NewRegistry(defs ...domainagg.Definition) (*Registry, error) {
	const op = "aggregates.NewRegistry"
	byName := map[string]domainagg.Definition{}
	var order []string
	for _, raw := range defs {
		def := raw.Normalize()
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byName[def.Name]; !exists {
			order = append(order, def.Name)
		}
		byName[def.Name] = def
	}

	r := &Registry{
		byName:   byName,
		byChild:  map[string][]domainagg.Definition{},
		byParent: map[string][]domainagg.Definition{},
	}
	targets := map[string]string{}
	for _, name := range order {
		def := byName[name]
		target := strings.ToLower(def.ParentTable + "." + def.TargetColumn)
		if other, dup := targets[target]; dup {
			return nil, domainagg.NewError(domainagg.CodeValidation, op,
				fmt.Sprintf("definitions %q and %q both target %s", other, name, target), nil)
		}
		targets[target] = name
		r.byChild[def.ChildTable] = append(r.byChild[def.ChildTable], def)
		r.byParent[def.ParentTable] = append(r.byParent[def.ParentTable], def)
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) Get(name string) (domainagg.Definition, bool) {
	def, ok := r.byName[strings.TrimSpace(name)]
	return def, ok
}

// Lookup returns the named definition or a not_found error.
func (r *Registry) Lookup(name string) (domainagg.Definition, error) {
	def, ok := r.Get(name)
	if !ok {
		return domainagg.Definition{}, domainagg.NewError(domainagg.CodeNotFound, "aggregates.Registry.Lookup",
			fmt.Sprintf("unknown aggregate %q", name), nil)
	}
	return def, nil
}

// Names returns every definition name, sorted.
func (r *Registry) Names() []string { return append([]string(nil), r.names...) }

// All returns every definition ordered by name.
func (r *Registry) All() []domainagg.Definition {
	out := make([]domainagg.Definition, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// ForChild lists definitions fed by rows of table.
func (r *Registry) ForChild(table string) []domainagg.Definition { return r.byChild[table] }

// ForParent lists definitions stored on rows of table.
func (r *Registry) ForParent(table string) []domainagg.Definition { return r.byParent[table] }

func (r *Registry) Len() int { return len(r.names) }
