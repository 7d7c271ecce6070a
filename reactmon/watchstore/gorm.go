package watchstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guildmod/warden/reactmon"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GuildWatch struct {
	GuildID            string `gorm:"primaryKey"`
	Watching           bool
	MinReactLifespanMs int64
	MuteDurationSec    int64
	MuteRoleID         string
	Emoji              []WatchedEmoji `gorm:"foreignKey:GuildID;references:GuildID"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type WatchedEmoji struct {
	ID      uint   `gorm:"primaryKey"`
	GuildID string `gorm:"uniqueIndex:idx_watched_emoji_guild_emoji;not null"`
	// reactmon.Emoji.Key()
	Emoji  string `gorm:"uniqueIndex:idx_watched_emoji_guild_emoji;not null"`
	Log    bool
	Remove bool
	Mute   bool
}

// GormStore persists watch configs in a SQL database.
type GormStore struct {
	db *gorm.DB
}

var _ reactmon.ConfigStore = (*GormStore)(nil)

// NewGormStore migrates the schema and returns a store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&GuildWatch{}, &WatchedEmoji{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate watch config tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) LoadGuildWatchConfig(ctx context.Context, guildID string) (*reactmon.WatchConfig, error) {
	var row GuildWatch
	err := s.db.WithContext(ctx).
		Preload("Emoji", func(db *gorm.DB) *gorm.DB { return db.Order("emoji") }).
		Where("guild_id = ?", guildID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: guild %s", reactmon.ErrConfigNotFound, guildID)
	} else if err != nil {
		return nil, err
	}
	cfg := row.toConfig()
	return &cfg, nil
}

func (s *GormStore) SaveGuildWatchConfig(ctx context.Context, cfg *reactmon.WatchConfig) error {
	if cfg.GuildID == "" {
		return fmt.Errorf("saving watch config: missing guild ID")
	}
	row := fromConfig(cfg)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "guild_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"watching", "min_react_lifespan_ms", "mute_duration_sec", "mute_role_id", "updated_at"}),
			}).
			Create(&row).Error
		if err != nil {
			return fmt.Errorf("upserting guild watch: %w", err)
		}
		// the watchlist is small; replace it wholesale
		if err := tx.Where("guild_id = ?", cfg.GuildID).Delete(&WatchedEmoji{}).Error; err != nil {
			return fmt.Errorf("clearing watched emoji: %w", err)
		}
		if len(row.Emoji) > 0 {
			if err := tx.Create(&row.Emoji).Error; err != nil {
				return fmt.Errorf("saving watched emoji: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) DeleteGuildWatchConfig(ctx context.Context, guildID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guild_id = ?", guildID).Delete(&WatchedEmoji{}).Error; err != nil {
			return err
		}
		return tx.Where("guild_id = ?", guildID).Delete(&GuildWatch{}).Error
	})
}

func (s *GormStore) ListGuildWatchConfigs(ctx context.Context) ([]reactmon.WatchConfig, error) {
	var rows []GuildWatch
	err := s.db.WithContext(ctx).
		Preload("Emoji", func(db *gorm.DB) *gorm.DB { return db.Order("emoji") }).
		Order("guild_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]reactmon.WatchConfig, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toConfig())
	}
	return out, nil
}

func (row *GuildWatch) toConfig() reactmon.WatchConfig {
	cfg := reactmon.DefaultWatchConfig(row.GuildID)
	cfg.Watching = row.Watching
	if row.MinReactLifespanMs > 0 {
		cfg.MinReactLifespan = time.Duration(row.MinReactLifespanMs) * time.Millisecond
	}
	if row.MuteDurationSec > 0 {
		cfg.MuteDuration = time.Duration(row.MuteDurationSec) * time.Second
	}
	cfg.MuteRoleID = row.MuteRoleID
	for _, e := range row.Emoji {
		cfg.Watchlist[e.Emoji] = reactmon.EmojiPolicy{Log: e.Log, Remove: e.Remove, Mute: e.Mute}
	}
	return cfg
}

func fromConfig(cfg *reactmon.WatchConfig) GuildWatch {
	row := GuildWatch{
		GuildID:            cfg.GuildID,
		Watching:           cfg.Watching,
		MinReactLifespanMs: cfg.MinReactLifespan.Milliseconds(),
		MuteDurationSec:    int64(cfg.MuteDuration / time.Second),
		MuteRoleID:         cfg.MuteRoleID,
	}
	for key, p := range cfg.Watchlist {
		row.Emoji = append(row.Emoji, WatchedEmoji{
			GuildID: cfg.GuildID,
			Emoji:   key,
			Log:     p.Log,
			Remove:  p.Remove,
			Mute:    p.Mute,
		})
	}
	return row
}
