package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flor3z/contest-remind-bot/internal/clock"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/storage"
)

// FinishedLimit is how many recently finished contests are kept per tier
const FinishedLimit = 5

// Source supplies raw contest records
type Source interface {
	Contests(ctx context.Context) ([]contest.RawContest, error)
}

// TierView is the classified contest set for one tier
type TierView struct {
	All      []contest.Contest
	Future   []contest.Contest
	Active   []contest.Contest
	Finished []contest.Contest

	// StartTimes holds each distinct future start instant in ascending order;
	// ByStart maps its unix seconds to the contests starting then
	StartTimes []time.Time
	ByStart    map[int64][]contest.Contest
}

// Snapshot is an immutable generation of the cache
type Snapshot struct {
	RefreshedAt time.Time
	tiers       [2]TierView
}

// Tier returns the view for a tier
func (s *Snapshot) Tier(t contest.Tier) TierView {
	return s.tiers[t]
}

// Contests returns the contests for a distinct start instant
func (v TierView) Contests(start time.Time) []contest.Contest {
	return v.ByStart[start.Unix()]
}

// Cache keeps the latest classified contest snapshot
type Cache struct {
	source   Source
	registry *contest.Registry
	clock    clock.Clock

	mu       sync.RWMutex
	snapshot *Snapshot
}

// New creates an empty cache
func New(source Source, registry *contest.Registry, clk clock.Clock) *Cache {
	return &Cache{
		source:   source,
		registry: registry,
		clock:    clk,
		snapshot: &Snapshot{},
	}
}

// Snapshot returns the current generation
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Refresh pulls the feed and replaces the snapshot. On failure the previous
// snapshot stays authoritative and the error is returned for logging.
func (c *Cache) Refresh(ctx context.Context) error {
	raw, err := c.source.Contests(ctx)
	if err != nil {
		slog.Warn("Contest refresh failed, keeping previous snapshot", "error", err)
		return err
	}

	snap := c.build(raw, c.clock.Now())

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()

	slog.Info("Contest cache refreshed",
		"records", len(raw),
		"div1Future", len(snap.tiers[contest.Div1].Future),
		"allFuture", len(snap.tiers[contest.Open].Future))
	return nil
}

func (c *Cache) build(raw []contest.RawContest, now time.Time) *Snapshot {
	snap := &Snapshot{RefreshedAt: now}

	var contests []contest.Contest
	for _, r := range raw {
		ct, err := contest.New(r, c.registry)
		if err != nil {
			slog.Debug("Skipping malformed contest", "error", err)
			continue
		}
		contests = append(contests, ct)
	}

	for _, tier := range contest.Tiers {
		var matched []contest.Contest
		for _, ct := range contests {
			if c.registry.Matches(ct.Website, ct.Name, tier) {
				matched = append(matched, ct)
			}
		}
		snap.tiers[tier] = buildView(matched, now)
	}
	return snap
}

func buildView(contests []contest.Contest, now time.Time) TierView {
	v := TierView{All: contests, ByStart: make(map[int64][]contest.Contest)}

	for _, ct := range contests {
		switch {
		case ct.Start.After(now):
			v.Future = append(v.Future, ct)
		case ct.End().Before(now):
			v.Finished = append(v.Finished, ct)
		default:
			v.Active = append(v.Active, ct)
		}
	}

	sort.SliceStable(v.Future, func(i, j int) bool { return v.Future[i].Start.Before(v.Future[j].Start) })
	sort.SliceStable(v.Active, func(i, j int) bool { return v.Active[i].Start.Before(v.Active[j].Start) })
	sort.SliceStable(v.Finished, func(i, j int) bool { return v.Finished[i].End().After(v.Finished[j].End()) })
	if len(v.Finished) > FinishedLimit {
		v.Finished = v.Finished[:FinishedLimit]
	}

	for _, ct := range v.Future {
		key := ct.Start.Unix()
		if _, ok := v.ByStart[key]; !ok {
			v.StartTimes = append(v.StartTimes, ct.Start)
		}
		v.ByStart[key] = append(v.ByStart[key], ct)
	}
	return v
}

// ContestsFor narrows contests to what a guild subscribed to, per tier
func (c *Cache) ContestsFor(contests []contest.Contest, settings storage.GuildSettings) (div1, open []contest.Contest) {
	for _, ct := range contests {
		if settings.Div1.Subscribed(ct.Website) && c.registry.Matches(ct.Website, ct.Name, contest.Div1) {
			div1 = append(div1, ct)
		}
		if settings.Open.Subscribed(ct.Website) && c.registry.Matches(ct.Website, ct.Name, contest.Open) {
			open = append(open, ct)
		}
	}
	return div1, open
}

// ContestsForTier is ContestsFor restricted to one tier
func (c *Cache) ContestsForTier(contests []contest.Contest, settings storage.GuildSettings, tier contest.Tier) []contest.Contest {
	div1, open := c.ContestsFor(contests, settings)
	if tier == contest.Div1 {
		return div1
	}
	return open
}
