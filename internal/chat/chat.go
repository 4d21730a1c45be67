package chat

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// ErrNotFound is returned when a channel, role, message or member can no longer be resolved
var ErrNotFound = errors.New("chat: not found")

// Role is a guild role
type Role struct {
	ID          string
	Name        string
	Mentionable bool
}

// Reaction summarises one emoji on a message
type Reaction struct {
	Count int
	// Me is set when the bot itself reacted
	Me bool
}

// Message is a fetched channel message
type Message struct {
	ID        string
	ChannelID string
	Content   string
	Embeds    []*discordgo.MessageEmbed
	Reactions map[string]Reaction
}

// Subscribers counts the non-bot reactions for an emoji
func (m *Message) Subscribers(emoji string) int {
	r := m.Reactions[emoji]
	if r.Me {
		return r.Count - 1
	}
	return r.Count
}

// ReactionEvent is a reaction added to or removed from a guild message
type ReactionEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

// Platform is the set of chat capabilities the reminder engines consume
type Platform interface {
	// SendMessage posts to a channel, allowing the given role to be pinged, and returns the message ID
	SendMessage(channelID, content string, embed *discordgo.MessageEmbed, mentionRoleID string) (string, error)
	EditMessage(channelID, messageID, content string) error
	FetchMessage(channelID, messageID string) (*Message, error)
	AddReaction(channelID, messageID, emoji string) error

	// CreateRole creates a mentionable role
	CreateRole(guildID, name string) (*Role, error)
	DeleteRole(guildID, roleID string) error
	Role(guildID, roleID string) (*Role, error)
	GrantRole(guildID, userID, roleID string) error
	RevokeRole(guildID, userID, roleID string) error

	DirectMessage(userID, content string) error
	IsBot(guildID, userID string) bool
	Guilds() []string
}
