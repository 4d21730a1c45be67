package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/contest-remind-bot/internal/chat"
)

// Discord implements chat.Platform on a discordgo session
type Discord struct {
	session *discordgo.Session
}

// NewDiscord wraps a session
func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

// wrapErr maps 404 responses and state misses to chat.ErrNotFound
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, chat.ErrNotFound)
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("%s: %w", op, chat.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (d *Discord) SendMessage(channelID, content string, embed *discordgo.MessageEmbed, mentionRoleID string) (string, error) {
	send := &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if mentionRoleID != "" {
		send.AllowedMentions.Roles = []string{mentionRoleID}
	}

	msg, err := d.session.ChannelMessageSendComplex(channelID, send)
	if err != nil {
		return "", wrapErr("send message", err)
	}
	return msg.ID, nil
}

func (d *Discord) EditMessage(channelID, messageID, content string) error {
	_, err := d.session.ChannelMessageEdit(channelID, messageID, content)
	return wrapErr("edit message", err)
}

func (d *Discord) FetchMessage(channelID, messageID string) (*chat.Message, error) {
	msg, err := d.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, wrapErr("fetch message", err)
	}

	out := &chat.Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
		Embeds:    msg.Embeds,
		Reactions: make(map[string]chat.Reaction, len(msg.Reactions)),
	}
	for _, r := range msg.Reactions {
		if r.Emoji == nil {
			continue
		}
		out.Reactions[r.Emoji.APIName()] = chat.Reaction{Count: r.Count, Me: r.Me}
	}
	return out, nil
}

func (d *Discord) AddReaction(channelID, messageID, emoji string) error {
	return wrapErr("add reaction", d.session.MessageReactionAdd(channelID, messageID, emoji))
}

func (d *Discord) CreateRole(guildID, name string) (*chat.Role, error) {
	mentionable := true
	role, err := d.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Mentionable: &mentionable,
	})
	if err != nil {
		return nil, wrapErr("create role", err)
	}
	return &chat.Role{ID: role.ID, Name: role.Name, Mentionable: role.Mentionable}, nil
}

func (d *Discord) DeleteRole(guildID, roleID string) error {
	return wrapErr("delete role", d.session.GuildRoleDelete(guildID, roleID))
}

// Role resolves a role from the state cache, falling back to the API
func (d *Discord) Role(guildID, roleID string) (*chat.Role, error) {
	if role, err := d.session.State.Role(guildID, roleID); err == nil {
		return &chat.Role{ID: role.ID, Name: role.Name, Mentionable: role.Mentionable}, nil
	}

	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return nil, wrapErr("list roles", err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return &chat.Role{ID: role.ID, Name: role.Name, Mentionable: role.Mentionable}, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", roleID, chat.ErrNotFound)
}

func (d *Discord) GrantRole(guildID, userID, roleID string) error {
	return wrapErr("grant role", d.session.GuildMemberRoleAdd(guildID, userID, roleID))
}

func (d *Discord) RevokeRole(guildID, userID, roleID string) error {
	return wrapErr("revoke role", d.session.GuildMemberRoleRemove(guildID, userID, roleID))
}

func (d *Discord) DirectMessage(userID, content string) error {
	ch, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return wrapErr("open DM channel", err)
	}
	_, err = d.session.ChannelMessageSend(ch.ID, content)
	return wrapErr("send DM", err)
}

func (d *Discord) IsBot(guildID, userID string) bool {
	if d.session.State.User != nil && d.session.State.User.ID == userID {
		return true
	}
	member, err := d.session.State.Member(guildID, userID)
	if err != nil {
		member, err = d.session.GuildMember(guildID, userID)
		if err != nil {
			slog.Debug("Failed to resolve member", "guild", guildID, "user", userID, "error", err)
			return false
		}
	}
	return member.User != nil && member.User.Bot
}

func (d *Discord) Guilds() []string {
	d.session.State.RLock()
	defer d.session.State.RUnlock()

	ids := make([]string, 0, len(d.session.State.Guilds))
	for _, g := range d.session.State.Guilds {
		ids = append(ids, g.ID)
	}
	return ids
}
