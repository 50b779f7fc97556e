package repos

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// Normalize reduces a column value to a plain comparable form: pointers are dereferenced,
// driver.Valuer implementations are resolved, byte slices become strings and times are
// rendered in UTC. Nil (or a nil pointer) stays nil.
func Normalize(v any) any {
	for i := 0; i < 8; i++ {
		if v == nil {
			return nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil
			}
			// Valuers with pointer receivers resolve before dereferencing.
			if vr, ok := v.(driver.Valuer); ok {
				out, err := vr.Value()
				if err != nil {
					return fmt.Sprint(v)
				}
				v = out
				continue
			}
			v = rv.Elem().Interface()
			continue
		}
		switch t := v.(type) {
		case []byte:
			return string(t)
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano)
		case driver.Valuer:
			out, err := t.Value()
			if err != nil {
				return fmt.Sprint(v)
			}
			if reflect.TypeOf(out) == reflect.TypeOf(v) {
				return out
			}
			v = out
			continue
		}
		return v
	}
	return v
}

// Key renders a normalized value as a map key. ok is false for nil.
func Key(v any) (key string, ok bool) {
	n := Normalize(v)
	if n == nil {
		return "", false
	}
	return fmt.Sprint(n), true
}

// SameValue compares two column values after normalization.
func SameValue(a, b any) bool {
	ka, okA := Key(a)
	kb, okB := Key(b)
	if !okA || !okB {
		return okA == okB
	}
	return ka == kb
}
