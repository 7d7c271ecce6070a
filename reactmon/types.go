package reactmon

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

type EventType int

const (
	ReactionAdd EventType = iota + 1
	ReactionRemove
)

func (t EventType) String() string {
	switch t {
	case ReactionAdd:
		return "add"
	case ReactionRemove:
		return "remove"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Emoji identifies a reaction emoji: either a guild custom emoji (ID set) or a unicode emoji (Name
// holds the character sequence).
type Emoji struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Animated bool   `json:"animated,omitempty"`
}

func (e Emoji) Custom() bool {
	return e.ID != ""
}

// Key is the identity used for watchlist lookups. Custom emoji are keyed by ID (names can be
// renamed); unicode emoji by their NFC form with variation selectors stripped.
func (e Emoji) Key() string {
	if e.Custom() {
		return e.ID
	}
	return normalizeUnicodeEmoji(e.Name)
}

// String renders the emoji as it would appear in a chat message.
func (e Emoji) String() string {
	if !e.Custom() {
		return e.Name
	}
	name := e.Name
	if name == "" {
		name = "_"
	}
	if e.Animated {
		return fmt.Sprintf("<a:%s:%s>", name, e.ID)
	}
	return fmt.Sprintf("<:%s:%s>", name, e.ID)
}

func normalizeUnicodeEmoji(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "\ufe0f", "")
}

// Member is the resolved guild member who performed a reaction.
type Member struct {
	UserID  string   `json:"user_id"`
	RoleIDs []string `json:"role_ids,omitempty"`
	Bot     bool     `json:"bot,omitempty"`
}

// Event is a raw reaction event as delivered by the gateway. Member may be nil (remove events
// usually carry no member).
type Event struct {
	Type      EventType
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     Emoji
	Member    *Member
}

// ActorID is the member ID if the member is resolved, otherwise the user ID.
func (e Event) ActorID() string {
	if e.Member != nil && e.Member.UserID != "" {
		return e.Member.UserID
	}
	return e.UserID
}

// Message is the subset of a chat message the monitor needs.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
}

func MessageLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// EmojiPolicy is what to do when a watched emoji is used.
type EmojiPolicy struct {
	Log    bool `json:"log"`
	Remove bool `json:"remove"`
	Mute   bool `json:"mute"`
}

func (p EmojiPolicy) Any() bool {
	return p.Log || p.Remove || p.Mute
}

func (p EmojiPolicy) String() string {
	var parts []string
	if p.Log {
		parts = append(parts, "log")
	}
	if p.Remove {
		parts = append(parts, "remove")
	}
	if p.Mute {
		parts = append(parts, "mute")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// TimedEvent is an event stamped with the monitor clock at ingestion.
type TimedEvent struct {
	At    time.Time
	Event Event
}
