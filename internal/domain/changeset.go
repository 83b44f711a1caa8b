package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ChangeKind classifies a field level difference.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeChanged ChangeKind = "changed"
)

// FieldChange is one entry of a ChangeSet. Path is dotted for nested objects.
// Old is nil for additions, New is nil for removals.
type FieldChange struct {
	Path string
	Kind ChangeKind
	Old  Value
	New  Value
}

// ChangeSet lists the differences between two field sets, sorted by Path.
type ChangeSet []FieldChange

// IsEmpty reports whether nothing changed.
func (c ChangeSet) IsEmpty() bool { return len(c) == 0 }

// Get returns the change recorded for path.
func (c ChangeSet) Get(path string) (FieldChange, bool) {
	idx := sort.Search(len(c), func(i int) bool { return c[i].Path >= path })
	if idx < len(c) && c[idx].Path == path {
		return c[idx], true
	}
	return FieldChange{}, false
}

// Paths returns the changed paths in order.
func (c ChangeSet) Paths() []string {
	paths := make([]string, len(c))
	for i, change := range c {
		paths[i] = change.Path
	}
	return paths
}

type changeJSON struct {
	Kind ChangeKind      `json:"kind"`
	Old  json.RawMessage `json:"old,omitempty"`
	New  json.RawMessage `json:"new,omitempty"`
}

// MarshalJSON encodes the set as an object keyed by path with tagged values.
func (c ChangeSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]changeJSON, len(c))
	for _, change := range c {
		entry := changeJSON{Kind: change.Kind}
		if change.Old != nil {
			encoded, err := MarshalValue(change.Old)
			if err != nil {
				return nil, fmt.Errorf("diff %s: %w", change.Path, err)
			}
			entry.Old = encoded
		}
		if change.New != nil {
			encoded, err := MarshalValue(change.New)
			if err != nil {
				return nil, fmt.Errorf("diff %s: %w", change.Path, err)
			}
			entry.New = encoded
		}
		out[change.Path] = entry
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the object form written by MarshalJSON.
func (c *ChangeSet) UnmarshalJSON(data []byte) error {
	var raw map[string]changeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ChangeSet, 0, len(raw))
	for path, entry := range raw {
		change := FieldChange{Path: path, Kind: entry.Kind}
		if len(entry.Old) > 0 {
			decoded, err := UnmarshalValue(entry.Old)
			if err != nil {
				return fmt.Errorf("diff %s: %w", path, err)
			}
			change.Old = decoded
		}
		if len(entry.New) > 0 {
			decoded, err := UnmarshalValue(entry.New)
			if err != nil {
				return fmt.Errorf("diff %s: %w", path, err)
			}
			change.New = decoded
		}
		out = append(out, change)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	*c = out
	return nil
}

// Plain returns the set with native values, suitable for display and export:
// {"Dose": {"kind": "changed", "old": 10, "new": 20}}.
func (c ChangeSet) Plain() map[string]map[string]any {
	out := make(map[string]map[string]any, len(c))
	for _, change := range c {
		entry := map[string]any{"kind": string(change.Kind)}
		if change.Old != nil {
			entry["old"] = change.Old.Native()
		}
		if change.New != nil {
			entry["new"] = change.New.Native()
		}
		out[change.Path] = entry
	}
	return out
}

// PlainJSON renders Plain as JSON text.
func (c ChangeSet) PlainJSON() (string, error) {
	encoded, err := json.Marshal(c.Plain())
	if err != nil {
		return "", fmt.Errorf("failed to encode diff: %w", err)
	}
	return string(encoded), nil
}
