package aggregates

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Value is an aggregate result. It scans any numeric SQL result, including NULL.
type Value struct {
	decimal.NullDecimal
}

func Null() Value { return Value{} }

func IntValue(i int64) Value {
	return Value{decimal.NullDecimal{Decimal: decimal.NewFromInt(i), Valid: true}}
}

func DecimalValue(d decimal.Decimal) Value {
	return Value{decimal.NullDecimal{Decimal: d, Valid: true}}
}

func (v Value) IsNull() bool { return !v.Valid }

func (v Value) Equal(o Value) bool {
	if v.Valid != o.Valid {
		return false
	}
	return !v.Valid || v.Decimal.Equal(o.Decimal)
}

// Native returns nil, an int64 for integral values, or a float64.
func (v Value) Native() any {
	if !v.Valid {
		return nil
	}
	if v.Decimal.IsInteger() {
		return v.Decimal.IntPart()
	}
	return v.Decimal.InexactFloat64()
}

func (v Value) String() string {
	if !v.Valid {
		return "NULL"
	}
	return v.Decimal.String()
}

// MarshalJSON renders null or a bare JSON number.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return []byte(v.Decimal.String()), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = Null()
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return err
	}
	*v = DecimalValue(d)
	return nil
}

// Resolve applies the definition's empty-set policy to a raw SQL aggregate result.
func (d Definition) Resolve(raw Value) Value {
	switch d.EmptyPolicy {
	case EmptyAsNull:
		if d.Function == FunctionCount && raw.Valid && raw.Decimal.IsZero() {
			return Null()
		}
	case EmptyAsZero:
		if !raw.Valid {
			return IntValue(0)
		}
	}
	return raw
}

// EmptyValue is what the definition stores for a parent without matching children.
func (d Definition) EmptyValue() Value {
	if d.Function == FunctionCount {
		return d.Resolve(IntValue(0))
	}
	return d.Resolve(Null())
}
