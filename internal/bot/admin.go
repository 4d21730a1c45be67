package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/contest-remind-bot/internal/cache"
	"github.com/flor3z/contest-remind-bot/internal/chat"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/embed"
	"github.com/flor3z/contest-remind-bot/internal/storage"
)

// CommandError is a validation failure shown to the invoking member
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

// GuildReconciler rebuilds a guild's timers after its settings change
type GuildReconciler interface {
	Reconcile(guildID string)
}

// Admin applies administrative commands to the settings store
type Admin struct {
	store       *storage.Store
	registry    *contest.Registry
	cache       *cache.Cache
	reconcilers []GuildReconciler
}

// NewAdmin creates the command service
func NewAdmin(store *storage.Store, registry *contest.Registry, c *cache.Cache, reconcilers ...GuildReconciler) *Admin {
	return &Admin{
		store:       store,
		registry:    registry,
		cache:       c,
		reconcilers: reconcilers,
	}
}

// commit persists the store, takes a backup when due and reconciles the guild
func (a *Admin) commit(ctx context.Context, guildID string) {
	if err := a.store.Persist(ctx); err != nil {
		slog.Error("Failed to persist settings", "guild", guildID, "error", err)
	}
	if _, err := a.store.BackupIfDue(ctx); err != nil {
		slog.Error("Failed to back up settings", "guild", guildID, "error", err)
	}
	for _, r := range a.reconcilers {
		r.Reconcile(guildID)
	}
}

// ParseLeadTimes parses a list of minute values such as "10 60 180"
func ParseLeadTimes(raw string) ([]int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 0 {
		return nil, &CommandError{Message: "Please provide valid `before` values"}
	}

	before := make([]int, 0, len(fields))
	for _, f := range fields {
		m, err := strconv.Atoi(f)
		if err != nil || m < 0 {
			return nil, &CommandError{Message: "Please provide valid `before` values"}
		}
		before = append(before, m)
	}
	return before, nil
}

func formatLeadTimes(before []int) string {
	parts := make([]string, len(before))
	for i, m := range before {
		parts[i] = strconv.Itoa(m)
	}
	return fmt.Sprintf("At %s mins before contest", strings.Join(parts, ", "))
}

func channelMention(id string) string {
	if id == "" {
		return "Not Set"
	}
	return "<#" + id + ">"
}

func roleMention(id string) string {
	if id == "" {
		return "Not Set"
	}
	return "<@&" + id + ">"
}

func addField(e *discordgo.MessageEmbed, name, value string, inline bool) {
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline})
}

// ConfigureReminders sets the reminder channel, role and lead times of a tier
func (a *Admin) ConfigureReminders(ctx context.Context, guildID string, tier contest.Tier, channelID string, role chat.Role, before []int) (*discordgo.MessageEmbed, error) {
	if !role.Mentionable {
		return nil, &CommandError{Message: "The role for reminders must be mentionable"}
	}
	if len(before) == 0 {
		return nil, &CommandError{Message: "Please provide valid `before` values"}
	}
	for _, m := range before {
		if m < 0 {
			return nil, &CommandError{Message: "Please provide valid `before` values"}
		}
	}

	settings := a.store.Update(guildID, func(g *storage.GuildSettings) {
		g.Tier(tier).SetReminder(channelID, role.ID, before)
	})
	a.commit(ctx, guildID)
	slog.Info("Reminder settings saved", "guild", guildID, "tier", tier)

	ts := settings.Tier(tier)
	e := embed.Success("Reminder settings saved successfully")
	addField(e, "Reminder channel for "+tier.String(), channelMention(ts.RemindChannelID), true)
	addField(e, "Reminder Role for "+tier.String(), roleMention(ts.RemindRoleID), true)
	addField(e, "Reminder Before for "+tier.String(), formatLeadTimes(ts.RemindBefore), true)
	return e, nil
}

// ConfigureFinalCall sets the final-call channel and lead time of a tier
func (a *Admin) ConfigureFinalCall(ctx context.Context, guildID string, tier contest.Tier, channelID string, before int) (*discordgo.MessageEmbed, error) {
	if before < 0 {
		return nil, &CommandError{Message: "Please provide valid `before` values"}
	}

	a.store.Update(guildID, func(g *storage.GuildSettings) {
		g.Tier(tier).SetFinalCall(channelID, before)
	})
	a.commit(ctx, guildID)
	slog.Info("Final call settings saved", "guild", guildID, "tier", tier)

	e := embed.Success(fmt.Sprintf("Final call settings for %s saved successfully", tier))
	addField(e, "Final Call Channel "+tier.Label(), channelMention(channelID), true)
	addField(e, "Final Call Before "+tier.Label(), fmt.Sprintf("%d mins before contest", before), true)
	return e, nil
}

// SetSubscriptions subscribes or unsubscribes a tier from websites. Unknown websites are reported back.
func (a *Admin) SetSubscriptions(ctx context.Context, guildID string, tier contest.Tier, websites []string, unsubscribe bool) *discordgo.MessageEmbed {
	var supported, unsupported []string
	for _, w := range websites {
		if a.registry.Supported(w) {
			supported = append(supported, w)
		} else {
			unsupported = append(unsupported, w)
		}
	}

	if len(supported) == 0 {
		return embed.Alert(fmt.Sprintf("None of these websites are supported for %s contest reminders.\nSupported websites -\n %s.",
			tier, strings.Join(a.registry.List(), ", ")))
	}

	a.store.Update(guildID, func(g *storage.GuildSettings) {
		ts := g.Tier(tier)
		for _, w := range supported {
			if unsubscribe {
				ts.Unsubscribe(w)
			} else {
				ts.Subscribe(w)
			}
		}
	})
	a.commit(ctx, guildID)

	action := "subscribed to"
	if unsubscribe {
		action = "unsubscribed from"
	}
	msg := fmt.Sprintf("Successfully %s %s for %s contest reminders.", action, strings.Join(supported, ", "), tier)
	if len(unsupported) > 0 {
		verb := "is"
		if len(unsupported) > 1 {
			verb = "are"
		}
		msg += fmt.Sprintf("\n%s %s not supported.", strings.Join(unsupported, ", "), verb)
	}
	return embed.Success(msg)
}

// ResetSubscriptions clears the website subscriptions of both tiers
func (a *Admin) ResetSubscriptions(ctx context.Context, guildID string) *discordgo.MessageEmbed {
	a.store.Update(guildID, func(g *storage.GuildSettings) {
		g.Div1.Websites = nil
		g.Open.Websites = nil
	})
	a.commit(ctx, guildID)
	return embed.Success("Successfully reset the subscriptions to the default ones")
}

// Clear drops every setting of the guild
func (a *Admin) Clear(ctx context.Context, guildID string) *discordgo.MessageEmbed {
	a.store.Reset(guildID)
	a.commit(ctx, guildID)
	slog.Info("Reminder settings cleared", "guild", guildID)
	return embed.Success("Reminder settings cleared")
}

// Settings renders one embed per tier describing the guild's configuration
func (a *Admin) Settings(guildID, guildName string) []*discordgo.MessageEmbed {
	settings, _ := a.store.Lookup(guildID)

	var out []*discordgo.MessageEmbed
	for _, tier := range contest.Tiers {
		ts := settings.Tier(tier)

		remindBefore := "Not Set"
		if len(ts.RemindBefore) > 0 {
			remindBefore = formatLeadTimes(ts.RemindBefore)
		}
		finalBefore := "Not Set"
		if ts.FinalCallBefore != nil {
			finalBefore = fmt.Sprintf("At %d mins before contest", *ts.FinalCallBefore)
		}
		websites := "None"
		if len(ts.Websites) > 0 {
			websites = strings.Join(ts.Websites, ", ")
		}

		e := embed.Success(fmt.Sprintf("Current %s settings", tier))
		addField(e, "Remind Channel", channelMention(ts.RemindChannelID), true)
		addField(e, "Remind Role", roleMention(ts.RemindRoleID), true)
		addField(e, "Remind Before", remindBefore, true)
		addField(e, "Final Call Channel", channelMention(ts.FinalCallChannelID), true)
		addField(e, "Final Call Before", finalBefore, true)
		addField(e, "\u200b", "\u200b", true)
		addField(e, "Subscribed websites", websites, false)
		if guildName != "" {
			e.Footer = &discordgo.MessageEmbedFooter{Text: guildName}
		}
		out = append(out, e)
	}
	return out
}

// ContestList renders the guild's contests of a tier and view, narrowed by shorthand filters like "+cf -ac"
func (a *Admin) ContestList(guildID string, tier contest.Tier, view string, filters []string) ([]*discordgo.MessageEmbed, error) {
	v := a.cache.Snapshot().Tier(tier)

	var list []contest.Contest
	switch view {
	case "future":
		list = v.Future
	case "active":
		list = v.Active
	case "finished":
		list = v.Finished
	default:
		return nil, &CommandError{Message: fmt.Sprintf("Unknown contest view `%s`", view)}
	}

	settings, _ := a.store.Lookup(guildID)
	list = a.cache.ContestsForTier(list, settings, tier)
	list = contest.FilterByShorthand(list, filters, a.registry)
	if len(list) == 0 {
		return []*discordgo.MessageEmbed{embed.Neutral(fmt.Sprintf("No %s contests found", view))}, nil
	}

	title := fmt.Sprintf("%s contests %s", strings.ToUpper(view[:1])+view[1:], tier.Label())
	return embed.ContestList(list, title), nil
}
