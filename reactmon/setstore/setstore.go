// Named sets of strings, loaded from a JSON file at startup.
//
// The daemon uses them for deployment-wide lists which are not per-guild configuration, such as the
// bot admins ("bot-admins") and channels ignored in every guild ("ignored-channels").
package setstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"sync"
)

const (
	SetBotAdmins       = "bot-admins"
	SetIgnoredChannels = "ignored-channels"
)

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
}

type MemSetStore struct {
	mu   sync.RWMutex
	sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		sets: make(map[string]map[string]bool),
	}
}

func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	return s.Has(name, val), nil
}

// Has is InSet for callers which cannot block or handle errors. Unknown sets contain nothing.
func (s *MemSetStore) Has(name, val string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets[name][val]
}

// Members returns a copy of the named set; nil if it does not exist.
func (s *MemSetStore) Members(name string) map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.sets[name])
}

func (s *MemSetStore) Add(name string, vals ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[name]
	if !ok {
		set = make(map[string]bool, len(vals))
		s.sets[name] = set
	}
	for _, v := range vals {
		set[v] = true
	}
}

func (s *MemSetStore) LoadFromFileJSON(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := s.LoadJSON(f); err != nil {
		return fmt.Errorf("loading sets from %s: %w", p, err)
	}
	return nil
}

// LoadJSON reads an object of set name to list of values. Sets in the input replace sets of the same
// name; other sets are left alone.
func (s *MemSetStore) LoadJSON(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var rules map[string][]string
	if err := json.Unmarshal(raw, &rules); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, l := range rules {
		m := make(map[string]bool, len(l))
		for _, val := range l {
			m[val] = true
		}
		s.sets[name] = m
	}
	return nil
}
