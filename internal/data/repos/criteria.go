package repos

import (
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"

	domagg "github.com/yungbote/aggsync/internal/domain/aggregates"
)

type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "<>"
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpIn      Op = "IN"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
)

type Condition struct {
	Column string
	Op     Op
	Value  any
}

// Criteria filters rows of a single table for bulk updates and deletes. Alias, when set,
// names the table inside the statement ("poll_item AS foo").
type Criteria struct {
	Alias      string
	Conditions []Condition
}

// Where starts a criteria with one condition.
func Where(column string, op Op, value any) Criteria {
	return Criteria{}.And(column, op, value)
}

// As returns a copy of c using alias for the filtered table.
func (c Criteria) As(alias string) Criteria {
	c.Alias = strings.TrimSpace(alias)
	return c
}

// And returns a copy of c with one more condition.
func (c Criteria) And(column string, op Op, value any) Criteria {
	conds := make([]Condition, 0, len(c.Conditions)+1)
	conds = append(conds, c.Conditions...)
	c.Conditions = append(conds, Condition{Column: strings.TrimSpace(column), Op: op, Value: value})
	return c
}

func (c Criteria) Validate() error {
	const op = "repos.Criteria.Validate"
	if c.Alias != "" && !domagg.IsIdentifier(c.Alias) {
		return domagg.NewError(domagg.CodeValidation, op, fmt.Sprintf("alias %q is not a valid identifier", c.Alias), nil)
	}
	for _, cond := range c.Conditions {
		if !domagg.IsIdentifier(cond.Column) {
			return domagg.NewError(domagg.CodeValidation, op, fmt.Sprintf("column %q is not a valid identifier", cond.Column), nil)
		}
		switch cond.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIsNull, OpNotNull:
		case OpIn:
			rv := reflect.ValueOf(cond.Value)
			if cond.Value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
				return domagg.NewError(domagg.CodeValidation, op, fmt.Sprintf("IN on %q needs a slice", cond.Column), nil)
			}
		default:
			return domagg.NewError(domagg.CodeValidation, op, fmt.Sprintf("unsupported operator %q", cond.Op), nil)
		}
	}
	return nil
}

// Ref is the name the filtered table goes by inside the statement.
func (c Criteria) Ref(table string) string {
	if c.Alias != "" {
		return c.Alias
	}
	return table
}

// From renders the table expression, including the alias when present.
func (c Criteria) From(table string) string {
	if c.Alias != "" {
		return table + " AS " + c.Alias
	}
	return table
}

// Qualify prefixes column with the table reference.
func (c Criteria) Qualify(table, column string) string {
	return c.Ref(table) + "." + column
}

// Apply scopes db to table (under the alias) and adds every condition.
func (c Criteria) Apply(db *gorm.DB, table string) *gorm.DB {
	q := db.Table(c.From(table))
	for _, cond := range c.Conditions {
		col := c.Qualify(table, cond.Column)
		switch cond.Op {
		case OpIsNull, OpNotNull:
			q = q.Where(col + " " + string(cond.Op))
		case OpIn:
			q = q.Where(col+" IN ?", cond.Value)
		default:
			q = q.Where(col+" "+string(cond.Op)+" ?", cond.Value)
		}
	}
	return q
}

func (c Criteria) Empty() bool { return len(c.Conditions) == 0 }

func (c Criteria) String() string {
	parts := make([]string, 0, len(c.Conditions))
	for _, cond := range c.Conditions {
		switch cond.Op {
		case OpIsNull, OpNotNull:
			parts = append(parts, fmt.Sprintf("%s %s", cond.Column, cond.Op))
		default:
			parts = append(parts, fmt.Sprintf("%s %s %v", cond.Column, cond.Op, Normalize(cond.Value)))
		}
	}
	where := strings.Join(parts, " AND ")
	if c.Alias != "" {
		return "AS " + c.Alias + " WHERE " + where
	}
	return where
}
