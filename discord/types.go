package discord

import (
	"net/url"
	"strconv"
)

// Permission bits, as in role permission strings.
const (
	PermKickMembers     uint64 = 1 << 1
	PermBanMembers      uint64 = 1 << 2
	PermAdministrator   uint64 = 1 << 3
	PermManageChannels  uint64 = 1 << 4
	PermManageGuild     uint64 = 1 << 5
	PermManageMessages  uint64 = 1 << 13
	PermManageRoles     uint64 = 1 << 28
	PermModerateMembers uint64 = 1 << 40

	PermAll uint64 = ^uint64(0)
)

// Gateway intents.
const (
	IntentGuilds                uint64 = 1 << 0
	IntentGuildMessages         uint64 = 1 << 9
	IntentGuildMessageReactions uint64 = 1 << 10
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

type Member struct {
	User  *User    `json:"user,omitempty"`
	Roles []string `json:"roles"`
}

// Emoji as sent by the API: ID is null for unicode emoji.
type Emoji struct {
	ID       *string `json:"id"`
	Name     string  `json:"name"`
	Animated bool    `json:"animated,omitempty"`
}

// PathSegment is the emoji as it appears in reaction endpoint paths.
func (e Emoji) PathSegment() string {
	if e.ID != nil && *e.ID != "" {
		return url.PathEscape(e.Name + ":" + *e.ID)
	}
	return url.PathEscape(e.Name)
}

type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Author    User   `json:"author"`
	Content   string `json:"content"`
}

type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	// decimal string of permission bits
	Permissions string `json:"permissions"`
}

func (r Role) PermissionBits() uint64 {
	v, err := strconv.ParseUint(r.Permissions, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerID     string `json:"owner_id"`
	Roles       []Role `json:"roles"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// UnavailableGuild is the GUILD_DELETE payload. Unavailable is set for outages; a missing flag means
// the bot was removed from the guild.
type UnavailableGuild struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

type ReadyEvent struct {
	V         int                `json:"v"`
	User      User               `json:"user"`
	SessionID string             `json:"session_id"`
	Guilds    []UnavailableGuild `json:"guilds"`
}

type GuildRoleEvent struct {
	GuildID string `json:"guild_id"`
	Role    Role   `json:"role"`
}

type GuildRoleDeleteEvent struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}

// ReactionEvent is the MESSAGE_REACTION_ADD and MESSAGE_REACTION_REMOVE payload. Member is only
// present on adds in guilds.
type MessageDeleteEvent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
}

type MessageDeleteBulkEvent struct {
	IDs       []string `json:"ids"`
	ChannelID string   `json:"channel_id"`
	GuildID   string   `json:"guild_id,omitempty"`
}

type ReactionEvent struct {
	UserID    string  `json:"user_id"`
	ChannelID string  `json:"channel_id"`
	MessageID string  `json:"message_id"`
	GuildID   string  `json:"guild_id,omitempty"`
	Member    *Member `json:"member,omitempty"`
	Emoji     Emoji   `json:"emoji"`
}
