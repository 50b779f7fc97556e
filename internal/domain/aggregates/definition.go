package aggregates

import (
	"fmt"
	"regexp"
	"strings"
)

// Function is the SQL aggregate applied over a parent's child rows.
type Function string

const (
	FunctionCount Function = "COUNT"
	FunctionSum   Function = "SUM"
	FunctionMin   Function = "MIN"
	FunctionMax   Function = "MAX"
	FunctionAvg   Function = "AVG"
)

// ParseFunction accepts any casing of a supported function name.
func ParseFunction(raw string) (Function, error) {
	fn := Function(strings.ToUpper(strings.TrimSpace(raw)))
	switch fn {
	case FunctionCount, FunctionSum, FunctionMin, FunctionMax, FunctionAvg:
		return fn, nil
	}
	return "", NewError(CodeValidation, "aggregates.ParseFunction", fmt.Sprintf("unsupported aggregate function %q", raw), nil)
}

// EmptyPolicy decides what a parent stores when none of its children match.
type EmptyPolicy string

const (
	// EmptyAsSQL keeps the function's own empty-set result: COUNT is 0, the others NULL.
	EmptyAsSQL EmptyPolicy = "sql"
	// EmptyAsNull stores NULL for every function.
	EmptyAsNull EmptyPolicy = "null"
	// EmptyAsZero stores 0 for every function.
	EmptyAsZero EmptyPolicy = "zero"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is safe to splice into SQL as a table or column name.
func IsIdentifier(s string) bool { return identifierRe.MatchString(s) }

// Definition binds one aggregate column on a parent table to its child rows.
type Definition struct {
	Name         string      `yaml:"name" json:"name"`
	ParentTable  string      `yaml:"parent_table" json:"parent_table"`
	ParentKey    string      `yaml:"parent_key" json:"parent_key"`
	TargetColumn string      `yaml:"target_column" json:"target_column"`
	ChildTable   string      `yaml:"child_table" json:"child_table"`
	ForeignKey   string      `yaml:"foreign_key" json:"foreign_key"`
	Function     Function    `yaml:"function" json:"function"`
	Expression   string      `yaml:"expression" json:"expression,omitempty"`
	Condition    string      `yaml:"condition" json:"condition,omitempty"`
	EmptyPolicy  EmptyPolicy `yaml:"empty_policy" json:"empty_policy"`
}

// Normalize fills defaults and canonicalizes casing.
func (d Definition) Normalize() Definition {
	d.Name = strings.TrimSpace(d.Name)
	d.ParentTable = strings.TrimSpace(d.ParentTable)
	d.ParentKey = strings.TrimSpace(d.ParentKey)
	if d.ParentKey == "" {
		d.ParentKey = "id"
	}
	d.TargetColumn = strings.TrimSpace(d.TargetColumn)
	d.ChildTable = strings.TrimSpace(d.ChildTable)
	d.ForeignKey = strings.TrimSpace(d.ForeignKey)
	d.Function = Function(strings.ToUpper(strings.TrimSpace(string(d.Function))))
	d.Expression = strings.TrimSpace(d.Expression)
	if d.Function == FunctionCount && d.Expression == "" {
		d.Expression = "*"
	}
	d.Condition = strings.TrimSpace(d.Condition)
	d.EmptyPolicy = EmptyPolicy(strings.ToLower(strings.TrimSpace(string(d.EmptyPolicy))))
	if d.EmptyPolicy == "" {
		d.EmptyPolicy = EmptyAsSQL
	}
	if d.Name == "" && d.ParentTable != "" && d.TargetColumn != "" {
		d.Name = d.ParentTable + "." + d.TargetColumn
	}
	return d
}

// Validate checks a normalized definition.
func (d Definition) Validate() error {
	const op = "aggregates.Definition.Validate"
	fail := func(msg string) error {
		return &Error{Code: CodeValidation, Op: op, Definition: d.Name, Message: msg}
	}
	if d.Name == "" {
		return fail("name is required")
	}
	for label, ident := range map[string]string{
		"parent_table":  d.ParentTable,
		"parent_key":    d.ParentKey,
		"target_column": d.TargetColumn,
		"child_table":   d.ChildTable,
		"foreign_key":   d.ForeignKey,
	} {
		if !IsIdentifier(ident) {
			return fail(fmt.Sprintf("%s %q is not a valid identifier", label, ident))
		}
	}
	if _, err := ParseFunction(string(d.Function)); err != nil {
		return fail(err.Error())
	}
	switch {
	case d.Expression == "*" && d.Function != FunctionCount:
		return fail(fmt.Sprintf("%s requires a column expression", d.Function))
	case d.Expression != "*" && !IsIdentifier(d.Expression):
		return fail(fmt.Sprintf("expression %q is not a valid column", d.Expression))
	}
	switch d.EmptyPolicy {
	case EmptyAsSQL, EmptyAsNull, EmptyAsZero:
	default:
		return fail(fmt.Sprintf("unknown empty_policy %q", d.EmptyPolicy))
	}
	if strings.Contains(d.Condition, ";") {
		return fail("condition must be a single predicate")
	}
	return nil
}

// SelectExpr renders the aggregate call over child rows qualified by table.
func (d Definition) SelectExpr(table string) string {
	if d.Expression == "*" {
		return fmt.Sprintf("%s(*)", d.Function)
	}
	return fmt.Sprintf("%s(%s.%s)", d.Function, table, d.Expression)
}

// Contributes reports whether a change to column can alter this aggregate.
// Any column may matter when a free-form condition is configured.
func (d Definition) Contributes(column string) bool {
	column = strings.TrimSpace(column)
	if d.Condition != "" {
		return true
	}
	return strings.EqualFold(column, d.ForeignKey) || (d.Expression != "*" && strings.EqualFold(column, d.Expression))
}
