package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/contest-remind-bot/internal/cache"
	"github.com/flor3z/contest-remind-bot/internal/chat"
	"github.com/flor3z/contest-remind-bot/internal/clist"
	"github.com/flor3z/contest-remind-bot/internal/clock"
	"github.com/flor3z/contest-remind-bot/internal/config"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/finalcall"
	"github.com/flor3z/contest-remind-bot/internal/poller"
	"github.com/flor3z/contest-remind-bot/internal/reminder"
	"github.com/flor3z/contest-remind-bot/internal/storage"
	"github.com/flor3z/contest-remind-bot/internal/web"
)

// Bot represents the Discord bot instance
type Bot struct {
	config   *config.Config
	session  *discordgo.Session
	platform *Discord
	repo     *storage.Repository
	store    *storage.Store
	registry *contest.Registry
	feed     *clist.Feed
	cache    *cache.Cache

	reminders  *reminder.Scheduler
	finalCalls *finalcall.Engine
	admin      *Admin
	poller     *poller.Poller
	status     *web.Server

	commands    []*discordgo.ApplicationCommand
	cancelWatch context.CancelFunc
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Website rules, optionally overridden from disk
	registry := contest.NewRegistry()
	if cfg.WebsitesPath != "" {
		if err := registry.LoadFile(cfg.WebsitesPath); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to load website rules: %w", err)
		}
	}

	client := clist.NewClient(clist.BaseURL, cfg.ClistUsername, cfg.ClistAPIKey, cfg.FeedRatePerMinute)
	feed, err := clist.NewFeed(client, cfg.FeedCachePath, registry.List)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize contest feed: %w", err)
	}

	clk := clock.Real()
	platform := NewDiscord(session)
	store := storage.NewStore(repo, clk, cfg.BackupInterval)
	contests := cache.New(feed, registry, clk)
	reminders := reminder.New(platform, contests, store, clk, cfg.ReactionEmoji)
	finalCalls := finalcall.New(platform, store, clk, cfg.ReactionEmoji)

	b := &Bot{
		config:     cfg,
		session:    session,
		platform:   platform,
		repo:       repo,
		store:      store,
		registry:   registry,
		feed:       feed,
		cache:      contests,
		reminders:  reminders,
		finalCalls: finalCalls,
		admin:      NewAdmin(store, registry, contests, reminders, finalCalls),
	}
	b.poller = poller.New(contests, b.guildIDs, cfg.RefreshInterval, reminders, finalCalls)

	if cfg.StatusAddr != "" {
		b.status = web.NewServer(cfg.StatusAddr, web.Deps{
			Contests:   contests,
			Store:      store,
			Reminders:  reminders,
			FinalCalls: finalCalls,
			Backups:    repo,
		})
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

// Start restores persisted state, opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	b.store.Load(ctx)

	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	if b.config.WebsitesPath != "" {
		watchCtx, cancel := context.WithCancel(ctx)
		b.cancelWatch = cancel
		go func() {
			if err := b.registry.Watch(watchCtx, b.config.WebsitesPath); err != nil {
				slog.Error("Website rules watcher stopped", "error", err)
			}
		}()
	}

	// Start the contest poller
	b.poller.Start(ctx)

	if b.status != nil {
		b.status.Start()
	}

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the poller and every pending timer
	b.poller.Stop()
	b.reminders.Stop()
	b.finalCalls.Stop()

	if b.cancelWatch != nil {
		b.cancelWatch()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if b.status != nil {
		if err := b.status.Shutdown(ctx); err != nil {
			slog.Warn("Failed to stop status server", "error", err)
		}
	}

	if err := b.store.Persist(ctx); err != nil {
		slog.Error("Failed to persist state on shutdown", "error", err)
	}

	// Close storage
	if err := b.feed.Close(); err != nil {
		slog.Warn("Failed to close feed cache", "error", err)
	}
	b.repo.Close()

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// guildIDs is every guild the bot is in or has state for
func (b *Bot) guildIDs() []string {
	seen := make(map[string]bool)
	for _, id := range b.platform.Guilds() {
		seen[id] = true
	}
	for _, id := range b.store.Guilds() {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleReactionAdd)
	b.session.AddHandler(b.handleReactionRemove)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
	b.session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		slog.Debug("Guild available", "guild", g.ID, "name", g.Name)
		b.reminders.Reconcile(g.ID)
		b.finalCalls.Reconcile(g.ID)
	})
}

func reactionEvent(r *discordgo.MessageReaction) chat.ReactionEvent {
	return chat.ReactionEvent{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
	}
}

func (b *Bot) handleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	b.finalCalls.HandleReactionAdd(context.Background(), reactionEvent(r.MessageReaction))
}

func (b *Bot) handleReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	b.finalCalls.HandleReactionRemove(context.Background(), reactionEvent(r.MessageReaction))
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "remind":
		b.handleRemind(s, i)
	case "final":
		b.handleFinal(s, i)
	case "settings":
		b.handleSettings(s, i)
	case "clist":
		b.handleClist(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}
