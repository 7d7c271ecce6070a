// General per-guild configuration: where the mod log goes, which roles count as moderators or
// admins, and which channels are ignored by the reaction monitor.
//
// Settings are persisted with gorm and served from an in-memory snapshot, so that permission checks
// on the event delivery path never touch the database.
package guildconfig

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Settings struct {
	GuildID string `json:"guild_id"`
	// channel receiving mod log messages; empty disables the mod log
	LogChannelID      string   `json:"log_channel_id"`
	ModRoleIDs        []string `json:"mod_role_ids"`
	AdminRoleIDs      []string `json:"admin_role_ids"`
	IgnoredChannelIDs []string `json:"ignored_channel_ids"`
}

func (s Settings) clone() Settings {
	s.ModRoleIDs = slices.Clone(s.ModRoleIDs)
	s.AdminRoleIDs = slices.Clone(s.AdminRoleIDs)
	s.IgnoredChannelIDs = slices.Clone(s.IgnoredChannelIDs)
	return s
}

func (s *Settings) normalize() {
	for _, l := range []*[]string{&s.ModRoleIDs, &s.AdminRoleIDs, &s.IgnoredChannelIDs} {
		sort.Strings(*l)
		*l = slices.Compact(*l)
		*l = slices.DeleteFunc(*l, func(v string) bool { return v == "" })
	}
}

func hasAny(have, want []string) bool {
	for _, v := range have {
		if slices.Contains(want, v) {
			return true
		}
	}
	return false
}

// HasModRole reports whether any of the roles is configured as a moderator role.
func (s Settings) HasModRole(roleIDs []string) bool {
	return hasAny(roleIDs, s.ModRoleIDs)
}

func (s Settings) HasAdminRole(roleIDs []string) bool {
	return hasAny(roleIDs, s.AdminRoleIDs)
}

func (s Settings) IgnoredChannels() map[string]bool {
	out := make(map[string]bool, len(s.IgnoredChannelIDs))
	for _, id := range s.IgnoredChannelIDs {
		out[id] = true
	}
	return out
}

type GuildSettings struct {
	GuildID           string   `gorm:"primaryKey"`
	LogChannelID      string
	ModRoleIDs        []string `gorm:"serializer:json"`
	AdminRoleIDs      []string `gorm:"serializer:json"`
	IgnoredChannelIDs []string `gorm:"serializer:json"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Store struct {
	// nil means settings only live in memory
	db       *gorm.DB
	settings *xsync.MapOf[string, Settings]
}

func NewStore(db *gorm.DB) (*Store, error) {
	if db != nil {
		if err := db.AutoMigrate(&GuildSettings{}); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate guild settings: %w", err)
		}
	}
	return &Store{
		db:       db,
		settings: xsync.NewMapOf[string, Settings](),
	}, nil
}

// Get returns the cached settings for the guild, or empty settings. It never does I/O.
func (s *Store) Get(guildID string) Settings {
	v, ok := s.settings.Load(guildID)
	if !ok {
		return Settings{GuildID: guildID}
	}
	return v.clone()
}

func (s *Store) LogChannel(guildID string) string {
	v, ok := s.settings.Load(guildID)
	if !ok {
		return ""
	}
	return v.LogChannelID
}

// Load refreshes the guild's cached settings from the database.
func (s *Store) Load(ctx context.Context, guildID string) (Settings, error) {
	if s.db == nil {
		return s.Get(guildID), nil
	}
	var row GuildSettings
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.settings.Delete(guildID)
		return Settings{GuildID: guildID}, nil
	} else if err != nil {
		return Settings{}, fmt.Errorf("loading settings for guild %s: %w", guildID, err)
	}
	set := row.toSettings()
	s.settings.Store(guildID, set)
	return set.clone(), nil
}

// LoadAll replaces the cache with everything in the database.
func (s *Store) LoadAll(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	var rows []GuildSettings
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return fmt.Errorf("loading guild settings: %w", err)
	}
	fresh := make(map[string]bool, len(rows))
	for _, row := range rows {
		s.settings.Store(row.GuildID, row.toSettings())
		fresh[row.GuildID] = true
	}
	s.settings.Range(func(id string, _ Settings) bool {
		if !fresh[id] {
			s.settings.Delete(id)
		}
		return true
	})
	return nil
}

func (s *Store) Save(ctx context.Context, set Settings) error {
	if set.GuildID == "" {
		return fmt.Errorf("saving guild settings: missing guild ID")
	}
	set = set.clone()
	set.normalize()
	if s.db != nil {
		row := GuildSettings{
			GuildID:           set.GuildID,
			LogChannelID:      set.LogChannelID,
			ModRoleIDs:        set.ModRoleIDs,
			AdminRoleIDs:      set.AdminRoleIDs,
			IgnoredChannelIDs: set.IgnoredChannelIDs,
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"log_channel_id", "mod_role_ids", "admin_role_ids", "ignored_channel_ids", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("saving settings for guild %s: %w", set.GuildID, err)
		}
	}
	s.settings.Store(set.GuildID, set)
	return nil
}

func (s *Store) Delete(ctx context.Context, guildID string) error {
	if s.db != nil {
		if err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Delete(&GuildSettings{}).Error; err != nil {
			return fmt.Errorf("deleting settings for guild %s: %w", guildID, err)
		}
	}
	s.settings.Delete(guildID)
	return nil
}

func (row *GuildSettings) toSettings() Settings {
	set := Settings{
		GuildID:           row.GuildID,
		LogChannelID:      row.LogChannelID,
		ModRoleIDs:        row.ModRoleIDs,
		AdminRoleIDs:      row.AdminRoleIDs,
		IgnoredChannelIDs: row.IgnoredChannelIDs,
	}
	set.normalize()
	return set
}
