package main

import (
	"sync/atomic"

	"github.com/guildmod/warden/discord"
	"github.com/guildmod/warden/guildconfig"
	"github.com/guildmod/warden/reactmon"
	"github.com/guildmod/warden/reactmon/setstore"
)

const (
	moderatorPerms = discord.PermManageMessages | discord.PermModerateMembers | discord.PermKickMembers | discord.PermBanMembers
	adminPerms     = discord.PermAdministrator | discord.PermManageGuild
)

// authority answers eligibility questions from in-memory state only: the gateway-maintained
// roster, cached guild settings, and the static sets file.
type authority struct {
	botID    atomic.Pointer[string]
	roster   *discord.Roster
	settings *guildconfig.Store
	sets     *setstore.MemSetStore
}

var _ reactmon.Authority = (*authority)(nil)

func (a *authority) setBotUserID(id string) {
	a.botID.Store(&id)
}

func (a *authority) BotUserID() string {
	if id := a.botID.Load(); id != nil {
		return *id
	}
	return ""
}

func (a *authority) IsModerator(guildID string, m *reactmon.Member) bool {
	if m == nil {
		return false
	}
	if a.settings.Get(guildID).HasModRole(m.RoleIDs) {
		return true
	}
	return a.roster.HasAnyPermission(guildID, m.UserID, m.RoleIDs, moderatorPerms)
}

func (a *authority) IsAdminRole(guildID string, m *reactmon.Member) bool {
	if m == nil {
		return false
	}
	if a.settings.Get(guildID).HasAdminRole(m.RoleIDs) {
		return true
	}
	return a.roster.HasAnyPermission(guildID, m.UserID, m.RoleIDs, adminPerms)
}

func (a *authority) IsBotAdmin(userID string) bool {
	return a.sets.Has(setstore.SetBotAdmins, userID)
}

// IgnoredChannels merges the guild's ignore list with the deployment-wide one.
func (a *authority) IgnoredChannels(guildID string) map[string]bool {
	out := a.settings.Get(guildID).IgnoredChannels()
	for ch := range a.sets.Members(setstore.SetIgnoredChannels) {
		out[ch] = true
	}
	return out
}
