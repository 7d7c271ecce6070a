package cache

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Name of the always-present identity index (primary key to itself).
const PrimaryIndex = "primary"

var ErrNotFound = errors.New("not found")

// Cache is a keyed record store with secondary indices. It is safe for concurrent use; index hooks
// run under the cache's write lock.
//
// Entries are kept in insertion order for iteration. Deletes are linear in the number of entries,
// which is fine for the small collections this is meant for.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Record
	order   []string
	indices map[string]Index
	names   []string
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]Record),
		indices: make(map[string]Index),
	}
}

// AddIndex registers a secondary index and populates it from the current contents.
func (c *Cache) AddIndex(idx Index) error {
	name := idx.Name()
	if name == "" || name == PrimaryIndex {
		return fmt.Errorf("invalid index name: %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indices[name]; ok {
		return fmt.Errorf("index already registered: %s", name)
	}
	idx.Reset()
	for _, k := range c.order {
		idx.OnInsert(k, c.entries[k])
	}
	c.indices[name] = idx
	c.names = append(c.names, name)
	return nil
}

// IndexNames returns the registered secondary index names, in registration order.
func (c *Cache) IndexNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.names)
}

// Update merges data into the record for key: new fields are added and existing fields
// overwritten. If the key is absent, a new entry is created when orCreate is true, otherwise the
// error wraps ErrNotFound. Returns a shallow copy of the resulting record.
func (c *Cache) Update(key string, data Record, orCreate bool) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.entries[key]
	if !ok {
		if !orCreate {
			return nil, fmt.Errorf("cache entry %q: %w", key, ErrNotFound)
		}
		return c.insertLocked(key, data).copyWith(CopyShallow), nil
	}

	merged := c.mergeLocked(old, data)
	c.replaceLocked(key, old, merged)
	return merged.copyWith(CopyShallow), nil
}

// Put stores data as the complete record for key, replacing any existing fields.
func (c *Cache) Put(key string, data Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.entries[key]
	if !ok {
		c.insertLocked(key, data)
		return
	}
	c.replaceLocked(key, old, data.copyWith(CopyDeep))
}

// Mutate applies fn to a deep copy of the record for key, then stores the result and updates every
// index. If fn returns an error nothing is stored.
func (c *Cache) Mutate(key string, fn func(data Record) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("cache entry %q: %w", key, ErrNotFound)
	}
	working := old.copyWith(CopyDeep)
	if err := fn(working); err != nil {
		return err
	}
	if working == nil {
		working = Record{}
	}
	// fn may have kept references into working
	c.replaceLocked(key, old, working.copyWith(CopyDeep))
	return nil
}

// mergeLocked returns a new record holding old's fields overlaid with deep copies of data's. The
// stored record is replaced rather than edited so index hooks can compare old and new.
func (c *Cache) mergeLocked(old, data Record) Record {
	merged := old.copyWith(CopyShallow)
	for k, v := range data {
		merged[k] = deepCopyValue(v)
	}
	return merged
}

// stored records never share containers with caller data
func (c *Cache) insertLocked(key string, data Record) Record {
	rec := data.copyWith(CopyDeep)
	if rec == nil {
		rec = Record{}
	}
	c.entries[key] = rec
	c.order = append(c.order, key)
	for _, name := range c.names {
		c.indices[name].OnInsert(key, rec)
	}
	return rec
}

func (c *Cache) replaceLocked(key string, old, updated Record) {
	c.entries[key] = updated
	for _, name := range c.names {
		c.indices[name].OnUpdate(key, old, updated)
	}
}

// Get returns a copy of the record for a primary key.
func (c *Cache) Get(key string, rule CopyRule) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return rec.copyWith(rule), true
}

// Lookup returns copies of every entry filed under indexKey in the named index, ordered by primary
// key. For PrimaryIndex the index key is the primary key and at most one entry is returned. An
// unknown index name wraps ErrNotFound; an index key with no members yields an empty result.
func (c *Cache) Lookup(indexName, indexKey string, rule CopyRule) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys, err := c.keysLocked(indexName, indexKey)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(keys))
	for _, k := range keys.Sorted() {
		rec, ok := c.entries[k]
		if !ok {
			continue
		}
		out = append(out, Entry{Key: k, Data: rec.copyWith(rule)})
	}
	return out, nil
}

// GetKeys returns the pointer set for an index key without copying any records.
func (c *Cache) GetKeys(indexName, indexKey string) (KeySet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keysLocked(indexName, indexKey)
}

// IndexKeys lists the index keys with at least one member in the named index.
func (c *Cache) IndexKeys(indexName string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if indexName == PrimaryIndex {
		return slices.Sorted(slices.Values(c.order)), nil
	}
	idx, ok := c.indices[indexName]
	if !ok {
		return nil, fmt.Errorf("index %q: %w", indexName, ErrNotFound)
	}
	return idx.IndexKeys(), nil
}

func (c *Cache) keysLocked(indexName, indexKey string) (KeySet, error) {
	if indexName == PrimaryIndex {
		out := make(KeySet, 1)
		if _, ok := c.entries[indexKey]; ok {
			out[indexKey] = struct{}{}
		}
		return out, nil
	}
	idx, ok := c.indices[indexName]
	if !ok {
		return nil, fmt.Errorf("index %q: %w", indexName, ErrNotFound)
	}
	return idx.Keys(indexKey), nil
}

// Delete removes the entry for key from the cache and from every index. Returns false if the key
// was not present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(key)
}

// DeleteIndexed removes every entry filed under indexKey in the named index, returning how many
// were removed.
func (c *Cache) DeleteIndexed(indexName, indexKey string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.keysLocked(indexName, indexKey)
	if err != nil {
		return 0, err
	}
	n := 0
	for k := range keys {
		if c.deleteLocked(k) {
			n++
		}
	}
	return n, nil
}

func (c *Cache) deleteLocked(key string) bool {
	rec, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	if i := slices.Index(c.order, key); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	for _, name := range c.names {
		c.indices[name].OnDelete(key, rec)
	}
	return true
}

// Reindex re-derives every index membership for the given keys from the stored records. Keys which
// are no longer in the cache are purged from all indices.
func (c *Cache) Reindex(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		rec, ok := c.entries[k]
		for _, name := range c.names {
			if ok {
				c.indices[name].OnUpdate(k, rec, rec)
			} else {
				c.indices[name].OnDelete(k, nil)
			}
		}
	}
}

// Clear removes all entries and resets every index.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Record)
	c.order = nil
	for _, idx := range c.indices {
		idx.Reset()
	}
}

// Load replaces the cache contents with the given entries, in order. Repeated keys are merged.
func (c *Cache) Load(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Record, len(entries))
	c.order = make([]string, 0, len(entries))
	for _, idx := range c.indices {
		idx.Reset()
	}
	for _, e := range entries {
		old, ok := c.entries[e.Key]
		if !ok {
			c.insertLocked(e.Key, e.Data)
			continue
		}
		c.replaceLocked(e.Key, old, c.mergeLocked(old, e.Data))
	}
}

func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns all primary keys in insertion order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// All iterates over (key, shallow copy) pairs in insertion order. The key list is captured when
// iteration starts; entries deleted during iteration are skipped.
func (c *Cache) All() iter.Seq2[string, Record] {
	return func(yield func(string, Record) bool) {
		for _, k := range c.Keys() {
			rec, ok := c.Get(k, CopyShallow)
			if !ok {
				continue
			}
			if !yield(k, rec) {
				return
			}
		}
	}
}
