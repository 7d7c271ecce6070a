package main

import (
	"context"
	"log/slog"

	"github.com/guildmod/warden/discord"
	"github.com/guildmod/warden/guildconfig"
	"github.com/guildmod/warden/notify"
	"github.com/guildmod/warden/reactmon"
)

// gatewayHooks routes gateway events to the roster, guild settings, and the reaction monitor.
type gatewayHooks struct {
	// callbacks carry no context of their own; this is the daemon's
	ctx       context.Context
	logger    *slog.Logger
	monitor   *reactmon.Monitor
	roster    *discord.Roster
	settings  *guildconfig.Store
	authority *authority
	throttle  *notify.Throttle
	messages  messageForgetter
}

type messageForgetter interface {
	ForgetMessage(ctx context.Context, channelID, messageID string)
}

func (h *gatewayHooks) callbacks() *discord.GatewayCallbacks {
	return &discord.GatewayCallbacks{
		Ready:           h.handleReady,
		GuildCreate:     h.handleGuildCreate,
		GuildUpdate:     h.handleGuildUpdate,
		GuildDelete:     h.handleGuildDelete,
		GuildRoleSet:    h.handleRoleSet,
		GuildRoleDelete: h.handleRoleDelete,
		MessageDelete:   h.handleMessageDelete,
		MessageBulk:     h.handleMessageBulk,
		ReactionAdd: func(evt *discord.ReactionEvent) error {
			return h.handleReaction(reactmon.ReactionAdd, evt)
		},
		ReactionRemove: func(evt *discord.ReactionEvent) error {
			return h.handleReaction(reactmon.ReactionRemove, evt)
		},
	}
}

func (h *gatewayHooks) handleReady(evt *discord.ReadyEvent) error {
	h.authority.setBotUserID(evt.User.ID)
	h.logger.Info("gateway session ready", "bot", evt.User.ID, "guilds", len(evt.Guilds))
	return nil
}

func (h *gatewayHooks) handleGuildCreate(evt *discord.Guild) error {
	if evt.Unavailable {
		return nil
	}
	h.roster.SetGuild(evt)
	if _, err := h.settings.Load(h.ctx, evt.ID); err != nil {
		return err
	}
	return h.monitor.JoinGuild(h.ctx, evt.ID)
}

func (h *gatewayHooks) handleGuildUpdate(evt *discord.Guild) error {
	h.roster.SetGuild(evt)
	return nil
}

// GUILD_DELETE with the unavailable flag is an outage; state is kept until the guild comes back.
func (h *gatewayHooks) handleGuildDelete(evt *discord.UnavailableGuild) error {
	if evt.Unavailable {
		h.logger.Warn("guild unavailable", "guild", evt.ID)
		return nil
	}
	h.logger.Info("removed from guild", "guild", evt.ID)
	h.roster.RemoveGuild(evt.ID)
	h.throttle.Forget(evt.ID)
	if err := h.monitor.LeaveGuild(h.ctx, evt.ID); err != nil {
		return err
	}
	return h.settings.Delete(h.ctx, evt.ID)
}

func (h *gatewayHooks) handleRoleSet(evt *discord.GuildRoleEvent) error {
	h.roster.UpsertRole(evt.GuildID, evt.Role)
	return nil
}

func (h *gatewayHooks) handleRoleDelete(evt *discord.GuildRoleDeleteEvent) error {
	h.roster.DeleteRole(evt.GuildID, evt.RoleID)
	return nil
}

func (h *gatewayHooks) handleMessageDelete(evt *discord.MessageDeleteEvent) error {
	h.messages.ForgetMessage(h.ctx, evt.ChannelID, evt.ID)
	return nil
}

func (h *gatewayHooks) handleMessageBulk(evt *discord.MessageDeleteBulkEvent) error {
	for _, id := range evt.IDs {
		h.messages.ForgetMessage(h.ctx, evt.ChannelID, id)
	}
	return nil
}

func (h *gatewayHooks) handleReaction(typ reactmon.EventType, evt *discord.ReactionEvent) error {
	// direct messages
	if evt.GuildID == "" {
		return nil
	}

	var member *reactmon.Member
	if evt.Member != nil && evt.Member.User != nil {
		h.roster.RememberMember(evt.GuildID, evt.Member)
		member = &reactmon.Member{
			UserID:  evt.Member.User.ID,
			RoleIDs: evt.Member.Roles,
			Bot:     evt.Member.User.Bot,
		}
	} else if roles, ok := h.roster.MemberRoles(evt.GuildID, evt.UserID); ok {
		member = &reactmon.Member{UserID: evt.UserID, RoleIDs: roles}
	}

	h.monitor.RecordEvent(reactmon.Event{
		Type:      typ,
		GuildID:   evt.GuildID,
		ChannelID: evt.ChannelID,
		MessageID: evt.MessageID,
		UserID:    evt.UserID,
		Emoji:     fromDiscordEmoji(evt.Emoji),
		Member:    member,
	})
	return nil
}
