// Package chattest provides an in-memory chat.Platform for tests.
package chattest

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/contest-remind-bot/internal/chat"
)

// Sent is a message posted through the fake
type Sent struct {
	ID            string
	ChannelID     string
	Content       string
	Embed         *discordgo.MessageEmbed
	MentionRoleID string
}

// Edit is a content edit issued through the fake
type Edit struct {
	ChannelID string
	MessageID string
	Content   string
}

// Platform records every call and keeps guild roles and messages in memory
type Platform struct {
	mu sync.Mutex
	id int

	GuildIDs     []string
	Bots         map[string]bool
	Sent         []Sent
	Edits        []Edit
	DMs          map[string][]string
	Messages     map[string]*chat.Message
	Roles        map[string]*chat.Role
	DeletedRoles []string
	Members      map[string]map[string]bool

	// FailDMs makes DirectMessage fail for these users
	FailDMs map[string]bool
	// FailChannels makes SendMessage fail for these channels
	FailChannels map[string]bool
}

// New creates an empty fake platform
func New(guildIDs ...string) *Platform {
	return &Platform{
		GuildIDs:     guildIDs,
		Bots:         make(map[string]bool),
		DMs:          make(map[string][]string),
		Messages:     make(map[string]*chat.Message),
		Roles:        make(map[string]*chat.Role),
		Members:      make(map[string]map[string]bool),
		FailDMs:      make(map[string]bool),
		FailChannels: make(map[string]bool),
	}
}

func (p *Platform) nextID(prefix string) string {
	p.id++
	return fmt.Sprintf("%s-%d", prefix, p.id)
}

func (p *Platform) SendMessage(channelID, content string, embed *discordgo.MessageEmbed, mentionRoleID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailChannels[channelID] {
		return "", fmt.Errorf("send to %s: %w", channelID, chat.ErrNotFound)
	}
	id := p.nextID("msg")
	p.Sent = append(p.Sent, Sent{ID: id, ChannelID: channelID, Content: content, Embed: embed, MentionRoleID: mentionRoleID})

	msg := &chat.Message{ID: id, ChannelID: channelID, Content: content, Reactions: make(map[string]chat.Reaction)}
	if embed != nil {
		msg.Embeds = []*discordgo.MessageEmbed{embed}
	}
	p.Messages[id] = msg
	return id, nil
}

func (p *Platform) EditMessage(channelID, messageID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg, ok := p.Messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return chat.ErrNotFound
	}
	msg.Content = content
	p.Edits = append(p.Edits, Edit{ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (p *Platform) FetchMessage(channelID, messageID string) (*chat.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg, ok := p.Messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return nil, chat.ErrNotFound
	}
	cp := *msg
	cp.Reactions = make(map[string]chat.Reaction, len(msg.Reactions))
	for k, v := range msg.Reactions {
		cp.Reactions[k] = v
	}
	return &cp, nil
}

func (p *Platform) AddReaction(channelID, messageID, emoji string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg, ok := p.Messages[messageID]
	if !ok {
		return chat.ErrNotFound
	}
	r := msg.Reactions[emoji]
	if !r.Me {
		r.Me = true
		r.Count++
	}
	msg.Reactions[emoji] = r
	return nil
}

// React simulates a user reaction count change on a message (delta of +1 or -1)
func (p *Platform) React(messageID, emoji string, delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := p.Messages[messageID]
	r := msg.Reactions[emoji]
	r.Count += delta
	msg.Reactions[emoji] = r
}

func (p *Platform) CreateRole(guildID, name string) (*chat.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	role := &chat.Role{ID: p.nextID("role"), Name: name, Mentionable: true}
	p.Roles[role.ID] = role
	p.Members[role.ID] = make(map[string]bool)
	return role, nil
}

func (p *Platform) DeleteRole(guildID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.Roles[roleID]; !ok {
		return chat.ErrNotFound
	}
	delete(p.Roles, roleID)
	delete(p.Members, roleID)
	p.DeletedRoles = append(p.DeletedRoles, roleID)
	return nil
}

func (p *Platform) Role(guildID, roleID string) (*chat.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	role, ok := p.Roles[roleID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (p *Platform) GrantRole(guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	members, ok := p.Members[roleID]
	if !ok {
		return chat.ErrNotFound
	}
	members[userID] = true
	return nil
}

func (p *Platform) RevokeRole(guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	members, ok := p.Members[roleID]
	if !ok {
		return chat.ErrNotFound
	}
	delete(members, userID)
	return nil
}

// Holders returns how many members hold a role
func (p *Platform) Holders(roleID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Members[roleID])
}

func (p *Platform) DirectMessage(userID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailDMs[userID] {
		return fmt.Errorf("cannot send messages to this user")
	}
	p.DMs[userID] = append(p.DMs[userID], content)
	return nil
}

func (p *Platform) IsBot(guildID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Bots[userID]
}

func (p *Platform) Guilds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.GuildIDs...)
}

// SentTo returns the messages posted to a channel
func (p *Platform) SentTo(channelID string) []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Sent
	for _, s := range p.Sent {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}
