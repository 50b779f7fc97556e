package aggregates

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validCount() Definition {
	return Definition{
		ParentTable:  "post",
		TargetColumn: "comments_count",
		ChildTable:   "comment",
		ForeignKey:   "post_id",
		Function:     "count",
	}.Normalize()
}

func TestNormalizeDefaults(t *testing.T) {
	d := validCount()
	if d.Name != "post.comments_count" {
		t.Fatalf("name default: got=%q", d.Name)
	}
	if d.ParentKey != "id" || d.Expression != "*" || d.EmptyPolicy != EmptyAsSQL || d.Function != FunctionCount {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadDefinitions(t *testing.T) {
	cases := map[string]func(d *Definition){
		"bad table":        func(d *Definition) { d.ChildTable = "comment; drop table post" },
		"sum without expr": func(d *Definition) { d.Function = FunctionSum; d.Expression = "*" },
		"bad expression":   func(d *Definition) { d.Expression = "score + 1" },
		"bad function":     func(d *Definition) { d.Function = "MEDIAN" },
		"bad policy":       func(d *Definition) { d.EmptyPolicy = "maybe" },
		"stacked cond":     func(d *Definition) { d.Condition = "approved = 1; delete from post" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := validCount()
			mutate(&d)
			err := d.Validate()
			if !IsCode(err, CodeValidation) {
				t.Fatalf("expected validation error, got=%v", err)
			}
			if !strings.Contains(err.Error(), "post.comments_count") {
				t.Fatalf("error should name the definition: %v", err)
			}
		})
	}
}

func TestContributes(t *testing.T) {
	d := Definition{ForeignKey: "poll_id", Function: FunctionSum, Expression: "score"}
	if !d.Contributes("poll_id") || !d.Contributes("SCORE") {
		t.Fatalf("fk and expression must contribute")
	}
	if d.Contributes("label") {
		t.Fatalf("label must not contribute")
	}
	d.Condition = "label <> ''"
	if !d.Contributes("label") {
		t.Fatalf("any column contributes once a condition is set")
	}
}

func TestResolveEmptyPolicies(t *testing.T) {
	count := validCount()
	sum := Definition{Function: FunctionSum, Expression: "score", EmptyPolicy: EmptyAsSQL}

	if got := count.Resolve(IntValue(0)); !got.Equal(IntValue(0)) {
		t.Fatalf("sql policy count: got=%s", got)
	}
	if got := sum.Resolve(Null()); !got.IsNull() {
		t.Fatalf("sql policy sum: got=%s", got)
	}

	count.EmptyPolicy = EmptyAsNull
	if got := count.Resolve(IntValue(0)); !got.IsNull() {
		t.Fatalf("null policy count: got=%s", got)
	}
	if got := count.Resolve(IntValue(3)); !got.Equal(IntValue(3)) {
		t.Fatalf("null policy keeps non-empty: got=%s", got)
	}

	sum.EmptyPolicy = EmptyAsZero
	if got := sum.Resolve(Null()); !got.Equal(IntValue(0)) {
		t.Fatalf("zero policy sum: got=%s", got)
	}
}

func TestValueNativeAndJSON(t *testing.T) {
	var v Value
	if err := v.Scan(float64(2.5)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got, ok := v.Native().(float64); !ok || got != 2.5 {
		t.Fatalf("Native float: got=%v", v.Native())
	}
	if err := v.Scan(int64(19)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got, ok := v.Native().(int64); !ok || got != 19 {
		t.Fatalf("Native int: got=%v", v.Native())
	}
	if err := v.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if !v.IsNull() || v.Native() != nil {
		t.Fatalf("expected null value")
	}

	raw, err := json.Marshal(map[string]Value{"a": IntValue(17), "b": Null()})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"a":17,"b":null}` {
		t.Fatalf("json: got=%s", raw)
	}
	var back map[string]Value
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back["a"].Equal(IntValue(17)) || !back["b"].IsNull() {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestWithDefinition(t *testing.T) {
	base := NewError(CodeConflict, "aggregates.update", "write failed", nil)
	tagged := WithDefinition(base, "poll.total_score")
	if !strings.Contains(tagged.Error(), "aggregates.update[poll.total_score]") {
		t.Fatalf("unexpected message: %v", tagged)
	}
	plain := errors.New("boom")
	if WithDefinition(plain, "x") != plain {
		t.Fatalf("non-aggregate errors pass through")
	}
}

func TestEmptyValue(t *testing.T) {
	count := validCount()
	if got := count.EmptyValue(); !got.Equal(IntValue(0)) {
		t.Fatalf("count empty: got=%s", got)
	}
	count.EmptyPolicy = EmptyAsNull
	if got := count.EmptyValue(); !got.IsNull() {
		t.Fatalf("count empty with null policy: got=%s", got)
	}
	max := Definition{Function: FunctionMax, Expression: "score", EmptyPolicy: EmptyAsZero}
	if got := max.EmptyValue(); !got.Equal(IntValue(0)) {
		t.Fatalf("max empty with zero policy: got=%s", got)
	}
}
