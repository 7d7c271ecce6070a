package cache

import (
	"maps"
)

// Record is the field data for a single cache entry.
type Record map[string]any

// Entry pairs a primary key with a copy of its record.
type Entry struct {
	Key  string
	Data Record
}

// CopyRule controls how much of a stored record is copied when it is read out of the cache.
type CopyRule int

const (
	// copies the field map and each field's own slice or map; values nested inside those are
	// shared with the cache
	CopyShallow CopyRule = iota
	// recursively copies maps and slices
	CopyDeep
)

func (r Record) copyWith(rule CopyRule) Record {
	if r == nil {
		return nil
	}
	if rule == CopyDeep {
		return deepCopyRecord(r)
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneContainer(v)
	}
	return out
}

// one level copy of a field value. Index keys are derived from a field and its immediate members,
// so this is enough to keep a shallow read from reaching index state.
func cloneContainer(v any) any {
	switch val := v.(type) {
	case Record:
		return maps.Clone(val)
	case map[string]any:
		return maps.Clone(val)
	case []any:
		return append([]any(nil), val...)
	case []string:
		return append([]string(nil), val...)
	case []int:
		return append([]int(nil), val...)
	case map[string]bool:
		return maps.Clone(val)
	case map[string]string:
		return maps.Clone(val)
	case map[string]struct{}:
		return maps.Clone(val)
	default:
		return v
	}
}

// Has reports whether the field is present with a non-nil value. Blank strings and empty
// collections count as absent.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return val != ""
	case []string:
		return len(val) > 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	case map[string]bool:
		return len(val) > 0
	}
	return true
}

func deepCopyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = deepCopyValue(v)
	}
	return out
}

// only the JSON/YAML-shaped container types are copied; anything else is treated as a value
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case Record:
		return deepCopyRecord(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = deepCopyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = deepCopyValue(inner)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []int:
		return append([]int(nil), val...)
	case map[string]bool:
		return maps.Clone(val)
	case map[string]string:
		return maps.Clone(val)
	case map[string]struct{}:
		return maps.Clone(val)
	default:
		return v
	}
}
