package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Kind identifies the variant carried by a Value.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindDate   Kind = "date"
	KindNull   Kind = "null"
	KindList   Kind = "list"
	KindObject Kind = "object"
)

// Value is a sealed union of the scalar and container types a field can hold.
// Only the types declared in this file implement it.
type Value interface {
	Kind() Kind
	// Native returns the plain Go representation used for export.
	Native() any
	value()
}

// String is a text value.
type String string

// Number is a numeric value. Integers and floats share one representation so
// that 10 and 10.0 read from different sources compare equal.
type Number float64

// Bool is a boolean value.
type Bool bool

// Null marks an explicitly empty value.
type Null struct{}

// List is an unordered collection of values.
type List []Value

// Object is a nested key/value structure.
type Object map[string]Value

// Date is an instant normalised to UTC.
type Date struct {
	t time.Time
}

// NewDate returns t as a Date in UTC.
func NewDate(t time.Time) Date {
	return Date{t: t.UTC()}
}

// Time returns the underlying instant.
func (d Date) Time() time.Time { return d.t }

func (String) Kind() Kind { return KindString }
func (Number) Kind() Kind { return KindNumber }
func (Bool) Kind() Kind   { return KindBool }
func (Date) Kind() Kind   { return KindDate }
func (Null) Kind() Kind   { return KindNull }
func (List) Kind() Kind   { return KindList }
func (Object) Kind() Kind { return KindObject }

func (String) value() {}
func (Number) value() {}
func (Bool) value()   {}
func (Date) value()   {}
func (Null) value()   {}
func (List) value()   {}
func (Object) value() {}

func (s String) Native() any { return string(s) }
func (n Number) Native() any { return float64(n) }
func (b Bool) Native() any   { return bool(b) }
func (d Date) Native() any   { return d.t }
func (Null) Native() any     { return nil }

func (l List) Native() any {
	out := make([]any, len(l))
	for i, item := range l {
		out[i] = item.Native()
	}
	return out
}

func (o Object) Native() any {
	out := make(map[string]any, len(o))
	for key, item := range o {
		out[key] = item.Native()
	}
	return out
}

// FromAny converts decoded JSON or plain Go values into a Value.
func FromAny(raw any) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return typed, nil
	case string:
		return String(typed), nil
	case bool:
		return Bool(typed), nil
	case float64:
		return finiteNumber(typed)
	case float32:
		return finiteNumber(float64(typed))
	case int:
		return Number(typed), nil
	case int32:
		return Number(typed), nil
	case int64:
		return Number(typed), nil
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", typed.String(), err)
		}
		return Number(f), nil
	case time.Time:
		return NewDate(typed), nil
	case []any:
		list := make(List, len(typed))
		for i, item := range typed {
			converted, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = converted
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(typed))
		for key, item := range typed {
			converted, err := FromAny(item)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", key, err)
			}
			obj[key] = converted
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}

// finiteNumber rejects NaN and infinities, which have no JSON encoding.
func finiteNumber(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite number %v", ErrValidation, f)
	}
	return Number(f), nil
}

// Display renders a value as human readable text for tables and exports.
func Display(v Value) string {
	switch typed := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(typed)
	case Number:
		return formatNumber(float64(typed))
	case Bool:
		return strconv.FormatBool(bool(typed))
	case Date:
		t := typed.t
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339Nano)
	default:
		return string(CanonicalJSON(v))
	}
}

func formatNumber(f float64) string {
	if f == 0 {
		// collapses -0
		return "0"
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Fields is the domain payload of a version.
type Fields map[string]Value

// Keys returns the field names in lexicographic order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy; values themselves are immutable.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for key, value := range f {
		out[key] = value
	}
	return out
}

// Native converts the fields into a plain map for export.
func (f Fields) Native() map[string]any {
	out := make(map[string]any, len(f))
	for key, value := range f {
		out[key] = value.Native()
	}
	return out
}

// FieldsFromMap converts a plain map into Fields.
func FieldsFromMap(raw map[string]any) (Fields, error) {
	out := make(Fields, len(raw))
	for key, item := range raw {
		converted, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out[key] = converted
	}
	return out, nil
}
