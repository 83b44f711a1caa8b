package domain

import "sort"

// DiffFields computes the change set that turns oldFields into newFields.
// Nested objects are compared key by key; lists are compared as unordered
// collections and reported as a single change.
func DiffFields(oldFields, newFields Fields) ChangeSet {
	changes := ChangeSet{}
	diffObjects("", Object(oldFields), Object(newFields), &changes)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func diffObjects(prefix string, base, target Object, acc *ChangeSet) {
	keys := make(map[string]struct{}, len(base)+len(target))
	for key := range base {
		keys[key] = struct{}{}
	}
	for key := range target {
		keys[key] = struct{}{}
	}

	for key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		oldValue, inBase := base[key]
		newValue, inTarget := target[key]

		switch {
		case inBase && !inTarget:
			*acc = append(*acc, FieldChange{Path: path, Kind: ChangeRemoved, Old: oldValue})
		case !inBase && inTarget:
			*acc = append(*acc, FieldChange{Path: path, Kind: ChangeAdded, New: newValue})
		default:
			diffValues(path, oldValue, newValue, acc)
		}
	}
}

func diffValues(path string, oldValue, newValue Value, acc *ChangeSet) {
	oldObj, oldIsObj := oldValue.(Object)
	newObj, newIsObj := newValue.(Object)
	if oldIsObj && newIsObj {
		diffObjects(path, oldObj, newObj, acc)
		return
	}

	if !Equal(oldValue, newValue) {
		*acc = append(*acc, FieldChange{Path: path, Kind: ChangeChanged, Old: oldValue, New: newValue})
	}
}
