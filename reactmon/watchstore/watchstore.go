// Persistence for per-guild reaction watch configuration.
//
// Both stores implement reactmon.ConfigStore. GormStore is used by the daemon (sqlite or
// postgres); MemStore is for tests and for running without a database.
package watchstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/guildmod/warden/reactmon"
)

type MemStore struct {
	mu      sync.Mutex
	configs map[string]reactmon.WatchConfig
}

var _ reactmon.ConfigStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{configs: make(map[string]reactmon.WatchConfig)}
}

func (s *MemStore) LoadGuildWatchConfig(ctx context.Context, guildID string) (*reactmon.WatchConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[guildID]
	if !ok {
		return nil, fmt.Errorf("%w: guild %s", reactmon.ErrConfigNotFound, guildID)
	}
	out := cfg.Clone()
	return &out, nil
}

func (s *MemStore) SaveGuildWatchConfig(ctx context.Context, cfg *reactmon.WatchConfig) error {
	if cfg.GuildID == "" {
		return fmt.Errorf("saving watch config: missing guild ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.GuildID] = cfg.Clone()
	return nil
}

func (s *MemStore) DeleteGuildWatchConfig(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, guildID)
	return nil
}

func (s *MemStore) ListGuildWatchConfigs(ctx context.Context) ([]reactmon.WatchConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reactmon.WatchConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out, nil
}
