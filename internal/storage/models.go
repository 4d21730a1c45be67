package storage

import (
	"sort"
	"time"

	"github.com/flor3z/contest-remind-bot/internal/contest"
)

// TierSettings is the per-tier notification configuration of a guild.
// Empty IDs and nil slices/pointers mean "not configured".
type TierSettings struct {
	RemindChannelID    string   `json:"remind_channel_id,omitempty"`
	RemindRoleID       string   `json:"remind_role_id,omitempty"`
	RemindBefore       []int    `json:"remind_before,omitempty"`
	FinalCallChannelID string   `json:"finalcall_channel_id,omitempty"`
	FinalCallBefore    *int     `json:"finalcall_before,omitempty"`
	Websites           []string `json:"subscribed_websites,omitempty"`
}

// GuildSettings stores per-server configuration
type GuildSettings struct {
	Div1 TierSettings `json:"div1"`
	Open TierSettings `json:"all"`
}

// Tier returns the settings block for a tier
func (g *GuildSettings) Tier(t contest.Tier) *TierSettings {
	if t == contest.Div1 {
		return &g.Div1
	}
	return &g.Open
}

// Clone returns a deep copy
func (g GuildSettings) Clone() GuildSettings {
	return GuildSettings{Div1: g.Div1.clone(), Open: g.Open.clone()}
}

func (t TierSettings) clone() TierSettings {
	out := t
	out.RemindBefore = append([]int(nil), t.RemindBefore...)
	out.Websites = append([]string(nil), t.Websites...)
	if t.FinalCallBefore != nil {
		v := *t.FinalCallBefore
		out.FinalCallBefore = &v
	}
	return out
}

// SetReminder configures the reminder channel, role and lead times
func (t *TierSettings) SetReminder(channelID, roleID string, before []int) {
	t.RemindChannelID = channelID
	t.RemindRoleID = roleID
	t.RemindBefore = NormalizeLeadTimes(before)
}

// SetFinalCall configures the final-call channel and lead time
func (t *TierSettings) SetFinalCall(channelID string, before int) {
	t.FinalCallChannelID = channelID
	t.FinalCallBefore = &before
}

// RemindersConfigured reports whether reminders can be delivered for this tier
func (t TierSettings) RemindersConfigured() bool {
	return t.RemindChannelID != "" && t.RemindRoleID != "" && len(t.RemindBefore) > 0
}

// FinalCallConfigured reports whether final calls can be delivered for this tier
func (t TierSettings) FinalCallConfigured() bool {
	return t.FinalCallChannelID != "" && t.FinalCallBefore != nil
}

// Subscribed reports whether reminders are wanted for a website
func (t TierSettings) Subscribed(website string) bool {
	for _, w := range t.Websites {
		if w == website {
			return true
		}
	}
	return false
}

// Subscribe adds a website to the subscription set
func (t *TierSettings) Subscribe(website string) {
	if t.Subscribed(website) {
		return
	}
	t.Websites = append(t.Websites, website)
	sort.Strings(t.Websites)
}

// Unsubscribe removes a website from the subscription set
func (t *TierSettings) Unsubscribe(website string) {
	out := t.Websites[:0]
	for _, w := range t.Websites {
		if w != website {
			out = append(out, w)
		}
	}
	t.Websites = out
}

// NormalizeLeadTimes returns distinct non-negative lead times in descending order
func NormalizeLeadTimes(before []int) []int {
	seen := make(map[int]bool, len(before))
	out := make([]int, 0, len(before))
	for _, m := range before {
		if m < 0 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// FinalCallState is the lifecycle position of a final-call subscription
type FinalCallState string

const (
	// FinalCallActive waits for the ping instant
	FinalCallActive FinalCallState = "active"
	// FinalCallFired has sent its ping and waits for the contest start
	FinalCallFired FinalCallState = "fired"
)

// Field is one embed field
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Snapshot is a frozen copy of the reminder a final call was subscribed from,
// so the ping can be rebuilt after the feed has moved on
type Snapshot struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Start       time.Time `json:"start"`
	Description string    `json:"description"`
	Fields      []Field   `json:"fields"`
}

// FinalCall is an opt-in last-minute ping for one contest
type FinalCall struct {
	State       FinalCallState `json:"state"`
	RoleID      string         `json:"role_id"`
	RoleName    string         `json:"role_name"`
	ChannelID   string         `json:"channel_id,omitempty"`
	MessageID   string         `json:"message_id,omitempty"`
	LeadMinutes int            `json:"lead_minutes"`
	Snapshot    Snapshot       `json:"snapshot"`
}

// SendTime is the instant the ping is due
func (f FinalCall) SendTime(leadMinutes int) time.Time {
	return f.Snapshot.Start.Add(-time.Duration(leadMinutes) * time.Minute)
}

func (f FinalCall) clone() FinalCall {
	out := f
	out.Snapshot.Fields = append([]Field(nil), f.Snapshot.Fields...)
	return out
}

// State is the persisted blob layout
type State struct {
	Version       int                                               `json:"version"`
	GuildSettings map[string]*GuildSettings                         `json:"guild_settings"`
	FinalCalls    map[string]map[contest.Tier]map[string]*FinalCall `json:"finalcall_active"`
}
