package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/unicode/norm"
)

// CanonicalJSON produces the byte form used for fingerprints and equality.
//
// Rules:
//   - every value is wrapped with its kind so "10" and 10 differ
//   - object keys are sorted lexicographically
//   - strings and keys are NFC normalised, HTML characters are not escaped
//   - numbers use the shortest decimal form, -0 collapses to 0
//   - dates are RFC 3339 with nanoseconds in UTC
//   - list elements are sorted by their canonical bytes (lists are unordered)
func CanonicalJSON(v Value) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	return buf.Bytes()
}

// NormalizeKeys returns f with every field and nested object key in NFC, so
// the keys that are diffed and compared are the ones that were hashed. Keys
// that only differ in normalisation collide and are rejected.
func NormalizeKeys(f Fields) (Fields, error) {
	out, err := normalizeObject(Object(f))
	if err != nil {
		return nil, err
	}
	return Fields(out), nil
}

func normalizeObject(obj Object) (Object, error) {
	out := make(Object, len(obj))
	for key, item := range obj {
		nk := norm.NFC.String(key)
		if _, dup := out[nk]; dup {
			return nil, fmt.Errorf("%w: keys %q collide after unicode normalisation", ErrValidation, nk)
		}
		normalized, err := normalizeKeysIn(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", nk, err)
		}
		out[nk] = normalized
	}
	return out, nil
}

func normalizeKeysIn(v Value) (Value, error) {
	switch typed := v.(type) {
	case Object:
		return normalizeObject(typed)
	case List:
		out := make(List, len(typed))
		for i, item := range typed {
			normalized, err := normalizeKeysIn(item)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	default:
		return v, nil
	}
}

// CanonicalFields is CanonicalJSON over a whole field set.
func CanonicalFields(f Fields) []byte {
	return CanonicalJSON(Object(f))
}

// Equal reports whether two values are the same under canonicalisation.
func Equal(a, b Value) bool {
	return bytes.Equal(CanonicalJSON(a), CanonicalJSON(b))
}

func writeCanonical(buf *bytes.Buffer, v Value) {
	if v == nil {
		v = Null{}
	}

	buf.WriteString(`{"t":`)
	writeCanonicalString(buf, string(v.Kind()))

	switch typed := v.(type) {
	case Null:
		buf.WriteByte('}')
		return
	case String:
		buf.WriteString(`,"v":`)
		writeCanonicalString(buf, string(typed))
	case Number:
		buf.WriteString(`,"v":`)
		buf.WriteString(formatNumber(float64(typed)))
	case Bool:
		buf.WriteString(`,"v":`)
		if typed {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Date:
		buf.WriteString(`,"v":`)
		writeCanonicalString(buf, typed.t.UTC().Format(time.RFC3339Nano))
	case List:
		elems := make([][]byte, len(typed))
		for i, item := range typed {
			elems[i] = CanonicalJSON(item)
		}
		sort.Slice(elems, func(i, j int) bool {
			return bytes.Compare(elems[i], elems[j]) < 0
		})
		buf.WriteString(`,"v":[`)
		for i, elem := range elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(elem)
		}
		buf.WriteByte(']')
	case Object:
		normalized := make(map[string]Value, len(typed))
		keys := make([]string, 0, len(typed))
		for key, item := range typed {
			nk := norm.NFC.String(key)
			normalized[nk] = item
			keys = append(keys, nk)
		}
		sort.Strings(keys)
		buf.WriteString(`,"v":{`)
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, key)
			buf.WriteByte(':')
			writeCanonical(buf, normalized[key])
		}
		buf.WriteByte('}')
	}

	buf.WriteByte('}')
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
}
