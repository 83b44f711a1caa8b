package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// taggedValue is the persisted shape of a Value. The tag keeps dates and
// numbers distinct from strings after a round trip through a document store.
type taggedValue struct {
	Type  Kind            `json:"t"`
	Value json.RawMessage `json:"v,omitempty"`
}

// MarshalValue encodes v in its tagged form.
func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		v = Null{}
	}
	var payload any
	switch typed := v.(type) {
	case Null:
		return json.Marshal(taggedValue{Type: KindNull})
	case String:
		payload = string(typed)
	case Number:
		payload = float64(typed)
	case Bool:
		payload = bool(typed)
	case Date:
		payload = typed.t.Format(time.RFC3339Nano)
	case List:
		items := make([]json.RawMessage, len(typed))
		for i, item := range typed {
			encoded, err := MarshalValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = encoded
		}
		payload = items
	case Object:
		items := make(map[string]json.RawMessage, len(typed))
		for key, item := range typed {
			encoded, err := MarshalValue(item)
			if err != nil {
				return nil, err
			}
			items[key] = encoded
		}
		payload = items
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedValue{Type: v.Kind(), Value: raw})
}

// UnmarshalValue decodes a tagged value.
func UnmarshalValue(data []byte) (Value, error) {
	var tagged taggedValue
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	switch tagged.Type {
	case KindNull:
		return Null{}, nil
	case KindString:
		var s string
		if err := json.Unmarshal(tagged.Value, &s); err != nil {
			return nil, fmt.Errorf("failed to decode string value: %w", err)
		}
		return String(s), nil
	case KindNumber:
		var f float64
		if err := json.Unmarshal(tagged.Value, &f); err != nil {
			return nil, fmt.Errorf("failed to decode number value: %w", err)
		}
		return Number(f), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(tagged.Value, &b); err != nil {
			return nil, fmt.Errorf("failed to decode bool value: %w", err)
		}
		return Bool(b), nil
	case KindDate:
		var s string
		if err := json.Unmarshal(tagged.Value, &s); err != nil {
			return nil, fmt.Errorf("failed to decode date value: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date value %q: %w", s, err)
		}
		return NewDate(ts), nil
	case KindList:
		var items []json.RawMessage
		if err := json.Unmarshal(tagged.Value, &items); err != nil {
			return nil, fmt.Errorf("failed to decode list value: %w", err)
		}
		list := make(List, len(items))
		for i, item := range items {
			decoded, err := UnmarshalValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = decoded
		}
		return list, nil
	case KindObject:
		var items map[string]json.RawMessage
		if err := json.Unmarshal(tagged.Value, &items); err != nil {
			return nil, fmt.Errorf("failed to decode object value: %w", err)
		}
		obj := make(Object, len(items))
		for key, item := range items {
			decoded, err := UnmarshalValue(item)
			if err != nil {
				return nil, err
			}
			obj[key] = decoded
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", tagged.Type)
	}
}

// MarshalJSON encodes the fields as an object of tagged values.
func (f Fields) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f))
	for key, value := range f {
		encoded, err := MarshalValue(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out[key] = encoded
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an object of tagged values.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for key, item := range raw {
		decoded, err := UnmarshalValue(item)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		out[key] = decoded
	}
	*f = out
	return nil
}
