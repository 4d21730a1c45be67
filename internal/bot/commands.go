package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/contest-remind-bot/internal/chat"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/embed"
)

// maxEmbeds is the most embeds Discord accepts in one response
const maxEmbeds = 10

var (
	manageServer int64 = discordgo.PermissionManageServer
	dmPermission       = false
)

// buildTierChoices creates the tier selection choices for slash commands
func buildTierChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(contest.Tiers))
	for i, t := range contest.Tiers {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{
			Name:  t.String(),
			Value: t.String(),
		}
	}
	return choices
}

func tierOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "tier",
		Description: "Which audience: div1 or all",
		Required:    required,
		Choices:     buildTierChoices(),
	}
}

func websitesOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "websites",
		Description: "Space separated websites (e.g., codeforces.com atcoder.jp)",
		Required:    true,
	}
}

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "remind",
			Description:              "Commands for contest reminders",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "configure",
					Description: "Send reminders for a tier to this channel",
					Options: []*discordgo.ApplicationCommandOption{
						tierOption(true),
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "Mentionable role to ping",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "before",
							Description: "Minutes before the contest (e.g., 10 60 180)",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "subscribe",
					Description: "Start contest reminders from websites",
					Options:     []*discordgo.ApplicationCommandOption{tierOption(true), websitesOption()},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "unsubscribe",
					Description: "Stop contest reminders from websites",
					Options:     []*discordgo.ApplicationCommandOption{tierOption(true), websitesOption()},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reset_subscriptions",
					Description: "Resets the subscribed websites to the default ones",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "clear",
					Description: "Clear all reminder settings",
				},
			},
		},
		{
			Name:                     "final",
			Description:              "Manage final call reminders",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "configure",
					Description: "Send final calls for a tier to this channel",
					Options: []*discordgo.ApplicationCommandOption{
						tierOption(true),
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "before",
							Description: "Minutes before the contest",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:         "settings",
			Description:  "Show the reminder settings of this server",
			DMPermission: &dmPermission,
		},
		{
			Name:         "clist",
			Description:  "List contests",
			DMPermission: &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "view",
					Description: "Which contests to list",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "future", Value: "future"},
						{Name: "active", Value: "active"},
						{Name: "finished", Value: "finished"},
					},
				},
				tierOption(false),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "filters",
					Description: "Website filters (e.g., +cf +ac)",
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands, err := b.session.ApplicationCommandBulkOverwrite(
		b.session.State.User.ID,
		"", // Empty string = global command
		commandDefinitions,
	)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) str(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o options) tier() (contest.Tier, error) {
	raw := o.str("tier")
	if raw == "" {
		return contest.Open, nil
	}
	t, err := contest.ParseTier(raw)
	if err != nil {
		return 0, &CommandError{Message: fmt.Sprintf("Unknown tier `%s`", raw)}
	}
	return t, nil
}

// subcommand returns the invoked subcommand and its options
func subcommand(i *discordgo.InteractionCreate) (string, options) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return "", nil
	}
	sub := data.Options[0]
	return sub.Name, optionMap(sub.Options)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// handleRemind handles the /remind subcommands
func (b *Bot) handleRemind(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name, opts := subcommand(i)
	ctx, cancel := commandContext()
	defer cancel()

	switch name {
	case "configure":
		tier, err := opts.tier()
		if err != nil {
			respondWithError(s, i, err)
			return
		}
		before, err := ParseLeadTimes(opts.str("before"))
		if err != nil {
			respondWithError(s, i, err)
			return
		}
		r := opts["role"].RoleValue(s, i.GuildID)
		if resolved := i.ApplicationCommandData().Resolved; resolved != nil && resolved.Roles[r.ID] != nil {
			r = resolved.Roles[r.ID]
		}
		role := chat.Role{ID: r.ID, Name: r.Name, Mentionable: r.Mentionable}

		e, err := b.admin.ConfigureReminders(ctx, i.GuildID, tier, i.ChannelID, role, before)
		if err != nil {
			respondWithError(s, i, err)
			return
		}
		respondWithEmbeds(s, i, e)

	case "subscribe", "unsubscribe":
		tier, err := opts.tier()
		if err != nil {
			respondWithError(s, i, err)
			return
		}
		websites := strings.FieldsFunc(opts.str("websites"), func(r rune) bool { return r == ' ' || r == ',' })
		respondWithEmbeds(s, i, b.admin.SetSubscriptions(ctx, i.GuildID, tier, websites, name == "unsubscribe"))

	case "reset_subscriptions":
		respondWithEmbeds(s, i, b.admin.ResetSubscriptions(ctx, i.GuildID))

	case "clear":
		respondWithEmbeds(s, i, b.admin.Clear(ctx, i.GuildID))

	default:
		slog.Warn("Unknown subcommand", "command", "remind", "subcommand", name)
	}
}

// handleFinal handles the /final subcommands
func (b *Bot) handleFinal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name, opts := subcommand(i)
	if name != "configure" {
		slog.Warn("Unknown subcommand", "command", "final", "subcommand", name)
		return
	}

	ctx, cancel := commandContext()
	defer cancel()

	tier, err := opts.tier()
	if err != nil {
		respondWithError(s, i, err)
		return
	}
	before := int(opts["before"].IntValue())

	e, err := b.admin.ConfigureFinalCall(ctx, i.GuildID, tier, i.ChannelID, before)
	if err != nil {
		respondWithError(s, i, err)
		return
	}
	respondWithEmbeds(s, i, e)
}

// handleSettings handles the /settings command
func (b *Bot) handleSettings(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildName := ""
	if g, err := s.State.Guild(i.GuildID); err == nil {
		guildName = g.Name
	}
	respondWithEmbeds(s, i, b.admin.Settings(i.GuildID, guildName)...)
}

// handleClist handles the /clist command
func (b *Bot) handleClist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i.ApplicationCommandData().Options)

	tier, err := opts.tier()
	if err != nil {
		respondWithError(s, i, err)
		return
	}

	embeds, err := b.admin.ContestList(i.GuildID, tier, opts.str("view"), strings.Fields(opts.str("filters")))
	if err != nil {
		respondWithError(s, i, err)
		return
	}
	respondWithEmbeds(s, i, embeds...)
}

// Helper functions

func respondWithEmbeds(s *discordgo.Session, i *discordgo.InteractionCreate, embeds ...*discordgo.MessageEmbed) {
	if len(embeds) > maxEmbeds {
		embeds = embeds[:maxEmbeds]
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: embeds,
		},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "guild", i.GuildID, "error", err)
	}
}

func respondWithError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		respondWithEmbeds(s, i, embed.Alert(cmdErr.Message))
		return
	}
	slog.Error("Command failed", "guild", i.GuildID, "error", err)
	respondWithEmbeds(s, i, embed.Alert("Something went wrong. Please try again."))
}
