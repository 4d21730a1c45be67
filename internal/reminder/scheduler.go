package reminder

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flor3z/contest-remind-bot/internal/cache"
	"github.com/flor3z/contest-remind-bot/internal/chat"
	"github.com/flor3z/contest-remind-bot/internal/clock"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/embed"
	"github.com/flor3z/contest-remind-bot/internal/storage"
)

// ContestSource supplies the classified contests reminders are derived from
type ContestSource interface {
	Snapshot() *cache.Snapshot
	ContestsForTier(contests []contest.Contest, settings storage.GuildSettings, tier contest.Tier) []contest.Contest
}

// Reminder is one pending (contest, lead time) pair
type Reminder struct {
	GuildID     string
	Tier        contest.Tier
	URL         string
	LeadMinutes int
	FireAt      time.Time
}

type key struct {
	guildID string
	tier    contest.Tier
}

type deliveryKey struct {
	key
	url         string
	leadMinutes int
	start       int64
}

type handle struct {
	Reminder
	contest    contest.Contest
	generation string
	timer      clock.Timer
	done       bool
}

// generation is the set of timers created by one reconciliation pass
type generation struct {
	id      string
	handles []*handle
}

// Scheduler keeps one timer per relevant (contest, lead time) pair for every guild and tier
type Scheduler struct {
	chat   chat.Platform
	source ContestSource
	store  *storage.Store
	clock  clock.Clock
	emoji  string

	mu        sync.Mutex
	current   map[key]*generation
	delivered map[deliveryKey]time.Time
	stopped   bool
}

// New creates a reminder scheduler. emoji is added to every reminder so members can opt into final calls.
func New(platform chat.Platform, source ContestSource, store *storage.Store, clk clock.Clock, emoji string) *Scheduler {
	return &Scheduler{
		chat:      platform,
		source:    source,
		store:     store,
		clock:     clk,
		emoji:     emoji,
		current:   make(map[key]*generation),
		delivered: make(map[deliveryKey]time.Time),
	}
}

// ReconcileAll reconciles every tier of every given guild
func (s *Scheduler) ReconcileAll(guildIDs []string) {
	for _, id := range guildIDs {
		s.Reconcile(id)
	}
}

// Reconcile rebuilds the timers of both tiers for a guild
func (s *Scheduler) Reconcile(guildID string) {
	for _, tier := range contest.Tiers {
		s.ReconcileTier(guildID, tier)
	}
}

// ReconcileTier cancels every timer of the guild and tier, then schedules a fresh
// generation from the current cache snapshot and settings. It returns the number scheduled.
func (s *Scheduler) ReconcileTier(guildID string, tier contest.Tier) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0
	}

	k := key{guildID: guildID, tier: tier}
	s.cancelLocked(k)

	gen := &generation{id: uuid.NewString()}
	s.current[k] = gen

	settings := s.store.Settings(guildID)
	ts := settings.Tier(tier)
	if !ts.RemindersConfigured() {
		slog.Debug("Reminders not configured", "guild", guildID, "tier", tier)
		return 0
	}

	now := s.clock.Now()
	s.pruneDeliveredLocked(now)

	view := s.source.Snapshot().Tier(tier)
	for _, start := range view.StartTimes {
		contests := s.source.ContestsForTier(view.Contests(start), settings, tier)
		if len(contests) == 0 {
			continue
		}

		for _, c := range dedupeByURL(contests) {
			for _, before := range ts.RemindBefore {
				dk := deliveryKey{key: k, url: c.URL, leadMinutes: before, start: c.Start.Unix()}
				if _, sent := s.delivered[dk]; sent {
					continue
				}

				fireAt := c.Start.Add(-time.Duration(before) * time.Minute)
				delay := fireAt.Sub(now)
				if delay < 0 {
					delay = 0
				}

				h := &handle{
					Reminder: Reminder{
						GuildID:     guildID,
						Tier:        tier,
						URL:         c.URL,
						LeadMinutes: before,
						FireAt:      fireAt,
					},
					contest:    c,
					generation: gen.id,
				}
				h.timer = s.clock.AfterFunc(delay, func() { s.fire(h) })
				gen.handles = append(gen.handles, h)
			}
		}
	}

	slog.Info("Reminder tasks scheduled",
		"guild", guildID, "tier", tier, "count", len(gen.handles), "generation", gen.id)
	return len(gen.handles)
}

// dedupeByURL keeps one contest per canonical URL, preserving first-seen order
func dedupeByURL(contests []contest.Contest) []contest.Contest {
	idx := make(map[string]int, len(contests))
	out := make([]contest.Contest, 0, len(contests))
	for _, c := range contests {
		if i, ok := idx[c.URL]; ok {
			out[i] = c
			continue
		}
		idx[c.URL] = len(out)
		out = append(out, c)
	}
	return out
}

func (s *Scheduler) cancelLocked(k key) {
	gen, ok := s.current[k]
	if !ok {
		return
	}
	for _, h := range gen.handles {
		h.timer.Stop()
		h.done = true
	}
	delete(s.current, k)
}

func (s *Scheduler) pruneDeliveredLocked(now time.Time) {
	for dk, start := range s.delivered {
		if start.Before(now) {
			delete(s.delivered, dk)
		}
	}
}

func (s *Scheduler) fire(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{guildID: h.GuildID, tier: h.Tier}
	gen, ok := s.current[k]
	if s.stopped || h.done || !ok || gen.id != h.generation {
		return
	}
	h.done = true
	s.delivered[deliveryKey{key: k, url: h.URL, leadMinutes: h.LeadMinutes, start: h.contest.Start.Unix()}] = h.contest.Start

	settings := s.store.Settings(h.GuildID)
	ts := settings.Tier(h.Tier)
	if !ts.RemindersConfigured() {
		slog.Warn("Dropping reminder, settings cleared", "guild", h.GuildID, "tier", h.Tier, "contest", h.URL)
		return
	}

	// a late reminder announces the time actually left
	before := int64(h.LeadMinutes) * 60
	if now := s.clock.Now(); now.After(h.FireAt) {
		before = max(0, int64(h.contest.Start.Sub(now)/time.Second))
	}

	content := embed.ReminderContent(ts.RemindRoleID, h.contest)
	msgID, err := s.chat.SendMessage(ts.RemindChannelID, content, embed.Reminder(h.contest, before), ts.RemindRoleID)
	if err != nil {
		slog.Error("Failed to send reminder",
			"guild", h.GuildID, "tier", h.Tier, "contest", h.URL, "before", h.LeadMinutes, "error", err)
		return
	}
	slog.Info("Sent reminder", "guild", h.GuildID, "tier", h.Tier, "contest", h.contest.Name, "before", h.LeadMinutes)

	if err := s.chat.AddReaction(ts.RemindChannelID, msgID, s.emoji); err != nil {
		slog.Warn("Failed to add final-call reaction", "guild", h.GuildID, "message", msgID, "error", err)
	}
}

// Scheduled returns the pending reminders of a guild and tier ordered by fire time
func (s *Scheduler) Scheduled(guildID string, tier contest.Tier) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, ok := s.current[key{guildID: guildID, tier: tier}]
	if !ok {
		return nil
	}

	var out []Reminder
	for _, h := range gen.handles {
		if !h.done {
			out = append(out, h.Reminder)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		if out[i].URL != out[j].URL {
			return out[i].URL < out[j].URL
		}
		return out[i].LeadMinutes > out[j].LeadMinutes
	})
	return out
}

// Stop cancels every pending reminder
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.current {
		s.cancelLocked(k)
	}
	s.stopped = true
}
