package cache

import (
	"fmt"
	"sort"
)

// Index is a derived view over cache entries, mapping index keys to sets of primary keys.
//
// The Cache calls the On* hooks at each mutation point, while holding its write lock. Index
// implementations must tolerate hooks for keys they have never seen (and deletes of keys they
// no longer track) without error.
type Index interface {
	Name() string
	OnInsert(key string, data Record)
	OnUpdate(key string, old, updated Record)
	OnDelete(key string, data Record)
	// returns a copy of the pointer set for the index key; empty (not nil) when there are no members
	Keys(indexKey string) KeySet
	// all index keys which currently have at least one member, sorted
	IndexKeys() []string
	Reset()
}

// KeySet is a set of primary keys.
type KeySet map[string]struct{}

func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the members in lexical order.
func (s KeySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// pointerSet is the bookkeeping shared by the index implementations. It keeps a reverse mapping
// from primary key to index keys, so that memberships can be replaced wholesale without trusting
// the caller's idea of the previous record.
type pointerSet struct {
	forward map[string]KeySet
	reverse map[string][]string
}

func newPointerSet() pointerSet {
	return pointerSet{
		forward: make(map[string]KeySet),
		reverse: make(map[string][]string),
	}
}

func (p *pointerSet) assign(key string, indexKeys []string) {
	p.drop(key)
	if len(indexKeys) == 0 {
		return
	}
	seen := make(map[string]bool, len(indexKeys))
	uniq := make([]string, 0, len(indexKeys))
	for _, ik := range indexKeys {
		if seen[ik] {
			continue
		}
		seen[ik] = true
		uniq = append(uniq, ik)
		set, ok := p.forward[ik]
		if !ok {
			set = make(KeySet)
			p.forward[ik] = set
		}
		set[key] = struct{}{}
	}
	p.reverse[key] = uniq
}

// no-op for unknown keys
func (p *pointerSet) drop(key string) {
	for _, ik := range p.reverse[key] {
		set := p.forward[ik]
		delete(set, key)
		if len(set) == 0 {
			delete(p.forward, ik)
		}
	}
	delete(p.reverse, key)
}

func (p *pointerSet) Keys(indexKey string) KeySet {
	set := p.forward[indexKey]
	out := make(KeySet, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}

func (p *pointerSet) IndexKeys() []string {
	out := make([]string, 0, len(p.forward))
	for ik := range p.forward {
		out = append(out, ik)
	}
	sort.Strings(out)
	return out
}

func (p *pointerSet) Reset() {
	p.forward = make(map[string]KeySet)
	p.reverse = make(map[string][]string)
}

// CollectionIndex groups records by the members of a set-valued field, so a record can appear
// under several index keys. Accepted field shapes: a single string, []string, []any, and string
// keyed maps (for map[string]bool only true values count as members).
type CollectionIndex struct {
	pointerSet
	name  string
	field string
}

var _ Index = (*CollectionIndex)(nil)

func NewCollectionIndex(name, field string) *CollectionIndex {
	return &CollectionIndex{
		pointerSet: newPointerSet(),
		name:       name,
		field:      field,
	}
}

func (idx *CollectionIndex) Name() string { return idx.name }

func (idx *CollectionIndex) OnInsert(key string, data Record) {
	idx.assign(key, members(data[idx.field]))
}

func (idx *CollectionIndex) OnUpdate(key string, old, updated Record) {
	idx.assign(key, members(updated[idx.field]))
}

func (idx *CollectionIndex) OnDelete(key string, data Record) {
	idx.drop(key)
}

func members(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, m := range val {
			if m == nil {
				continue
			}
			out = append(out, fmt.Sprint(m))
		}
		return out
	case map[string]bool:
		out := make([]string, 0, len(val))
		for m, ok := range val {
			if ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]struct{}:
		out := make([]string, 0, len(val))
		for m := range val {
			out = append(out, m)
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(val))
		for m := range val {
			out = append(out, m)
		}
		return out
	}
	return nil
}

// Completeness buckets
const (
	BucketEmpty      = "empty"
	BucketIncomplete = "incomplete"
	BucketComplete   = "complete"
)

// CompletenessIndex files every record into exactly one of BucketEmpty, BucketIncomplete or
// BucketComplete, depending on how many of the required fields are present (see Record.Has).
type CompletenessIndex struct {
	pointerSet
	name     string
	required []string
}

var _ Index = (*CompletenessIndex)(nil)

func NewCompletenessIndex(name string, required ...string) *CompletenessIndex {
	return &CompletenessIndex{
		pointerSet: newPointerSet(),
		name:       name,
		required:   required,
	}
}

func (idx *CompletenessIndex) Name() string { return idx.name }

// Classify returns the bucket for a record.
func (idx *CompletenessIndex) Classify(data Record) string {
	present := 0
	for _, f := range idx.required {
		if data.Has(f) {
			present++
		}
	}
	switch {
	case present == len(idx.required):
		return BucketComplete
	case present == 0:
		return BucketEmpty
	default:
		return BucketIncomplete
	}
}

// Missing lists the required fields absent from a record, in declaration order.
func (idx *CompletenessIndex) Missing(data Record) []string {
	var out []string
	for _, f := range idx.required {
		if !data.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (idx *CompletenessIndex) OnInsert(key string, data Record) {
	idx.assign(key, []string{idx.Classify(data)})
}

func (idx *CompletenessIndex) OnUpdate(key string, old, updated Record) {
	idx.assign(key, []string{idx.Classify(updated)})
}

func (idx *CompletenessIndex) OnDelete(key string, data Record) {
	idx.drop(key)
}

// FieldIndex maps the value of a single scalar field (formatted with fmt.Sprint) to the records
// holding it. Records without the field are not indexed.
type FieldIndex struct {
	pointerSet
	name  string
	field string
}

var _ Index = (*FieldIndex)(nil)

func NewFieldIndex(name, field string) *FieldIndex {
	return &FieldIndex{
		pointerSet: newPointerSet(),
		name:       name,
		field:      field,
	}
}

func (idx *FieldIndex) Name() string { return idx.name }

func (idx *FieldIndex) valueKeys(data Record) []string {
	v, ok := data[idx.field]
	if !ok || v == nil {
		return nil
	}
	return []string{fmt.Sprint(v)}
}

func (idx *FieldIndex) OnInsert(key string, data Record) {
	idx.assign(key, idx.valueKeys(data))
}

func (idx *FieldIndex) OnUpdate(key string, old, updated Record) {
	idx.assign(key, idx.valueKeys(updated))
}

func (idx *FieldIndex) OnDelete(key string, data Record) {
	idx.drop(key)
}
