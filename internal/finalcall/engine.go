package finalcall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flor3z/contest-remind-bot/internal/chat"
	"github.com/flor3z/contest-remind-bot/internal/clock"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/embed"
	"github.com/flor3z/contest-remind-bot/internal/storage"
)

// Delivery is the outcome of a direct-message notification
type Delivery int

const (
	Delivered Delivery = iota
	DMFailed
)

func (d Delivery) String() string {
	if d == Delivered {
		return "delivered"
	}
	return "dm_failed"
}

type key struct {
	guildID string
	tier    contest.Tier
	url     string
}

// subscription is the live timer of one final-call record. The timer is either
// the ping (record active) or the start-time cleanup (record fired).
type subscription struct {
	key       key
	timer     clock.Timer
	cancelled bool
}

// Engine turns reactions on reminder messages into role-based final-call pings
type Engine struct {
	chat  chat.Platform
	store *storage.Store
	clock clock.Clock
	emoji string

	mu      sync.Mutex
	timers  map[key]*subscription
	stopped bool
}

// New creates a final-call engine listening for emoji reactions
func New(platform chat.Platform, store *storage.Store, clk clock.Clock, emoji string) *Engine {
	return &Engine{
		chat:   platform,
		store:  store,
		clock:  clk,
		emoji:  emoji,
		timers: make(map[key]*subscription),
	}
}

// target is a validated reaction on a reminder message
type target struct {
	tier     contest.Tier
	settings storage.TierSettings
	message  *chat.Message
	snapshot storage.Snapshot
}

func (e *Engine) resolve(ev chat.ReactionEvent) (*target, bool) {
	if ev.GuildID == "" || ev.Emoji != e.emoji {
		return nil, false
	}

	settings := e.store.Settings(ev.GuildID)
	tier := contest.Div1
	if settings.Open.RemindChannelID != "" && ev.ChannelID == settings.Open.RemindChannelID {
		tier = contest.Open
	}
	ts := *settings.Tier(tier)
	if ts.RemindChannelID == "" || ts.RemindChannelID != ev.ChannelID || !ts.FinalCallConfigured() {
		return nil, false
	}
	if e.chat.IsBot(ev.GuildID, ev.UserID) {
		return nil, false
	}

	msg, err := e.chat.FetchMessage(ev.ChannelID, ev.MessageID)
	if err != nil {
		slog.Warn("Failed to fetch reacted message", "guild", ev.GuildID, "message", ev.MessageID, "error", err)
		return nil, false
	}
	if len(msg.Embeds) == 0 {
		return nil, false
	}
	snap, err := embed.Snapshot(msg.Embeds[0])
	if err != nil {
		slog.Debug("Reaction on a message that is not a reminder", "message", ev.MessageID, "error", err)
		return nil, false
	}

	return &target{tier: tier, settings: ts, message: msg, snapshot: snap}, true
}

// HandleReactionAdd subscribes the reacting member to the contest's final call
func (e *Engine) HandleReactionAdd(ctx context.Context, ev chat.ReactionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	t, ok := e.resolve(ev)
	if !ok {
		return
	}

	k := key{guildID: ev.GuildID, tier: t.tier, url: t.snapshot.URL}
	lead := *t.settings.FinalCallBefore
	sendTime := t.snapshot.Start.Add(-time.Duration(lead) * time.Minute)
	if !sendTime.After(e.clock.Now()) {
		slog.Debug("Final call window closed", "guild", ev.GuildID, "contest", t.snapshot.URL)
		return
	}

	rec, exists := e.store.FinalCall(k.guildID, k.tier, k.url)
	if exists && rec.State == storage.FinalCallFired {
		return
	}

	if exists {
		if _, err := e.chat.Role(ev.GuildID, rec.RoleID); err != nil {
			slog.Warn("Final call role unavailable", "guild", ev.GuildID, "role", rec.RoleID, "error", err)
			return
		}
	} else {
		name := fmt.Sprintf("Final Call %s - %s", t.tier.Label(), t.snapshot.Name)
		role, err := e.chat.CreateRole(ev.GuildID, name)
		if err != nil {
			slog.Error("Failed to create final call role", "guild", ev.GuildID, "contest", t.snapshot.URL, "error", err)
			return
		}
		rec = storage.FinalCall{
			State:       storage.FinalCallActive,
			RoleID:      role.ID,
			RoleName:    role.Name,
			LeadMinutes: lead,
			Snapshot:    t.snapshot,
		}
		e.store.PutFinalCall(k.guildID, k.tier, k.url, rec)
		e.persist(ctx)
		e.armLocked(k, rec)
		slog.Info("Final call armed", "guild", ev.GuildID, "tier", t.tier, "contest", t.snapshot.Name, "role", role.ID)
	}

	if err := e.chat.GrantRole(ev.GuildID, ev.UserID, rec.RoleID); err != nil {
		slog.Error("Failed to grant final call role", "guild", ev.GuildID, "user", ev.UserID, "role", rec.RoleID, "error", err)
		return
	}

	e.notify(ev.UserID, fmt.Sprintf("Final Call Alarm Set. You are alloted `%s` which will be pinged %d mins before the contest",
		rec.RoleName, lead))
}

// HandleReactionRemove unsubscribes the member and tears the final call down when nobody is left
func (e *Engine) HandleReactionRemove(ctx context.Context, ev chat.ReactionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	t, ok := e.resolve(ev)
	if !ok {
		return
	}

	k := key{guildID: ev.GuildID, tier: t.tier, url: t.snapshot.URL}
	rec, exists := e.store.FinalCall(k.guildID, k.tier, k.url)
	if !exists {
		slog.Warn("Reaction removed from untracked final call", "guild", ev.GuildID, "tier", t.tier, "contest", k.url)
		return
	}

	if err := e.chat.RevokeRole(ev.GuildID, ev.UserID, rec.RoleID); err != nil {
		slog.Warn("Failed to revoke final call role", "guild", ev.GuildID, "user", ev.UserID, "role", rec.RoleID, "error", err)
	}
	e.notify(ev.UserID, fmt.Sprintf("Final Call Alarm Cleared for `%s`", t.snapshot.Name))

	if rec.State != storage.FinalCallActive || t.message.Subscribers(e.emoji) > 0 {
		return
	}

	e.cancelLocked(k)
	e.store.DeleteFinalCall(k.guildID, k.tier, k.url)
	e.persist(ctx)
	if err := e.chat.DeleteRole(ev.GuildID, rec.RoleID); err != nil {
		slog.Warn("Failed to delete final call role", "guild", ev.GuildID, "role", rec.RoleID, "error", err)
	}
	slog.Info("Final call withdrawn", "guild", ev.GuildID, "tier", t.tier, "contest", k.url)
}

func (e *Engine) notify(userID, content string) Delivery {
	if err := e.chat.DirectMessage(userID, content); err != nil {
		slog.Info("Could not DM member", "user", userID, "error", err)
		return DMFailed
	}
	return Delivered
}

func (e *Engine) persist(ctx context.Context) {
	if err := e.store.Persist(ctx); err != nil {
		slog.Error("Failed to persist final calls", "error", err)
	}
}

// leadFor prefers the guild's current lead time over the one recorded at subscription
func (e *Engine) leadFor(k key, rec storage.FinalCall) int {
	settings := e.store.Settings(k.guildID)
	if before := settings.Tier(k.tier).FinalCallBefore; before != nil {
		return *before
	}
	return rec.LeadMinutes
}

func (e *Engine) armLocked(k key, rec storage.FinalCall) {
	e.cancelLocked(k)

	sub := &subscription{key: k}
	e.timers[k] = sub

	var at time.Time
	fn := func() { e.finish(sub) }
	if rec.State == storage.FinalCallActive {
		at = rec.SendTime(e.leadFor(k, rec))
		fn = func() { e.ping(sub) }
	} else {
		at = rec.Snapshot.Start
	}

	delay := at.Sub(e.clock.Now())
	if delay < 0 {
		delay = 0
	}
	sub.timer = e.clock.AfterFunc(delay, fn)
}

func (e *Engine) cancelLocked(k key) {
	sub, ok := e.timers[k]
	if !ok {
		return
	}
	sub.cancelled = true
	if sub.timer != nil {
		sub.timer.Stop()
	}
	delete(e.timers, k)
}

func (e *Engine) liveLocked(sub *subscription) bool {
	return !e.stopped && !sub.cancelled && e.timers[sub.key] == sub
}

func (e *Engine) ping(sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.liveLocked(sub) {
		return
	}
	k := sub.key
	ctx := context.Background()

	rec, ok := e.store.FinalCall(k.guildID, k.tier, k.url)
	if !ok || rec.State != storage.FinalCallActive {
		delete(e.timers, k)
		return
	}

	now := e.clock.Now()
	if !rec.Snapshot.Start.After(now) {
		e.finishLocked(ctx, k, rec)
		return
	}

	settings := e.store.Settings(k.guildID)
	ts := settings.Tier(k.tier)
	lead := e.leadFor(k, rec)

	rec.State = storage.FinalCallFired
	if ts.FinalCallChannelID == "" {
		slog.Warn("Final call channel cleared, skipping ping", "guild", k.guildID, "tier", k.tier, "contest", k.url)
	} else {
		msgID, err := e.chat.SendMessage(ts.FinalCallChannelID, embed.FinalCallContent(rec.RoleID), embed.FinalCall(rec.Snapshot, lead), rec.RoleID)
		if err != nil {
			slog.Error("Failed to send final call", "guild", k.guildID, "tier", k.tier, "contest", k.url, "error", err)
		} else {
			rec.ChannelID = ts.FinalCallChannelID
			rec.MessageID = msgID
			slog.Info("Sent final call", "guild", k.guildID, "tier", k.tier, "contest", rec.Snapshot.Name)
		}
	}

	e.store.PutFinalCall(k.guildID, k.tier, k.url, rec)
	e.persist(ctx)

	sub.timer = e.clock.AfterFunc(rec.Snapshot.Start.Sub(now), func() { e.finish(sub) })
}

func (e *Engine) finish(sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.liveLocked(sub) {
		return
	}
	rec, ok := e.store.FinalCall(sub.key.guildID, sub.key.tier, sub.key.url)
	if !ok {
		delete(e.timers, sub.key)
		return
	}
	e.finishLocked(context.Background(), sub.key, rec)
}

func (e *Engine) finishLocked(ctx context.Context, k key, rec storage.FinalCall) {
	if rec.MessageID != "" {
		if err := e.chat.EditMessage(rec.ChannelID, rec.MessageID, embed.GoodLuck); err != nil {
			slog.Warn("Failed to edit final call message", "guild", k.guildID, "message", rec.MessageID, "error", err)
		}
	}

	delete(e.timers, k)
	e.store.DeleteFinalCall(k.guildID, k.tier, k.url)
	e.persist(ctx)

	if err := e.chat.DeleteRole(k.guildID, rec.RoleID); err != nil {
		slog.Warn("Failed to delete final call role", "guild", k.guildID, "role", rec.RoleID, "error", err)
	}
	slog.Info("Final call completed", "guild", k.guildID, "tier", k.tier, "contest", rec.Snapshot.Name)
}

// ReconcileAll re-arms the persisted final calls of every given guild
func (e *Engine) ReconcileAll(guildIDs []string) {
	for _, id := range guildIDs {
		e.Reconcile(id)
	}
}

// Reconcile re-arms every persisted record of a guild from its snapshot alone.
// Records whose role no longer exists are dropped.
func (e *Engine) Reconcile(guildID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	armed, dropped := 0, 0
	for _, tier := range contest.Tiers {
		for url, rec := range e.store.FinalCalls(guildID, tier) {
			k := key{guildID: guildID, tier: tier, url: url}
			if _, err := e.chat.Role(guildID, rec.RoleID); err != nil {
				if errors.Is(err, chat.ErrNotFound) {
					e.cancelLocked(k)
					e.store.DeleteFinalCall(guildID, tier, url)
					dropped++
					slog.Warn("Dropping final call whose role is gone", "guild", guildID, "tier", tier, "contest", url)
					continue
				}
				slog.Warn("Failed to resolve final call role", "guild", guildID, "role", rec.RoleID, "error", err)
			}
			e.armLocked(k, rec)
			armed++
		}
	}

	if dropped > 0 {
		e.persist(context.Background())
	}
	if armed > 0 || dropped > 0 {
		slog.Info("Final calls reconciled", "guild", guildID, "armed", armed, "dropped", dropped)
	}
}

// Armed returns the contest links with a live timer for a guild and tier
func (e *Engine) Armed(guildID string, tier contest.Tier) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var urls []string
	for k := range e.timers {
		if k.guildID == guildID && k.tier == tier {
			urls = append(urls, k.url)
		}
	}
	sort.Strings(urls)
	return urls
}

// Stop cancels every timer. Persisted records are left for the next start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for k := range e.timers {
		e.cancelLocked(k)
	}
	e.stopped = true
}
