package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/guildmod/warden/discord"
	"github.com/guildmod/warden/reactmon"
)

// discordPlatform performs reactmon actions through the REST client.
type discordPlatform struct {
	client *discord.Client
}

var _ reactmon.Platform = (*discordPlatform)(nil)

// platformError classifies REST errors for the monitor. notFound is what a 404 means for the call.
func platformError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, discord.ErrNotFound):
		return fmt.Errorf("%w: %w", notFound, err)
	case errors.Is(err, discord.ErrForbidden):
		return fmt.Errorf("%w: %w", reactmon.ErrForbidden, err)
	case errors.Is(err, discord.ErrRateLimited):
		return fmt.Errorf("%w: %w", reactmon.ErrRateLimited, err)
	default:
		return err
	}
}

func (p *discordPlatform) FetchMessage(ctx context.Context, channelID, messageID string) (*reactmon.Message, error) {
	msg, err := p.client.GetChannelMessage(ctx, channelID, messageID)
	if err != nil {
		return nil, platformError(err, reactmon.ErrMessageNotFound)
	}
	return &reactmon.Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		AuthorID:  msg.Author.ID,
	}, nil
}

func (p *discordPlatform) ClearReaction(ctx context.Context, msg *reactmon.Message, emoji reactmon.Emoji) error {
	err := p.client.DeleteAllReactionsForEmoji(ctx, msg.ChannelID, msg.ID, toDiscordEmoji(emoji))
	return platformError(err, reactmon.ErrMessageNotFound)
}

func (p *discordPlatform) AddRoleToMember(ctx context.Context, guildID, userID, roleID string) error {
	err := p.client.AddGuildMemberRole(ctx, guildID, userID, roleID, "watched emoji used")
	return platformError(err, reactmon.ErrMemberNotFound)
}

func (p *discordPlatform) RemoveRoleFromMember(ctx context.Context, guildID, userID, roleID string) error {
	err := p.client.RemoveGuildMemberRole(ctx, guildID, userID, roleID, "mute expired")
	return platformError(err, reactmon.ErrMemberNotFound)
}

func toDiscordEmoji(e reactmon.Emoji) discord.Emoji {
	out := discord.Emoji{Name: e.Name, Animated: e.Animated}
	if e.Custom() {
		id := e.ID
		out.ID = &id
		if out.Name == "" {
			out.Name = "_"
		}
	}
	return out
}

func fromDiscordEmoji(e discord.Emoji) reactmon.Emoji {
	out := reactmon.Emoji{Name: e.Name, Animated: e.Animated}
	if e.ID != nil {
		out.ID = *e.ID
	}
	return out
}
