package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flor3z/contest-remind-bot/internal/clock"
	"github.com/flor3z/contest-remind-bot/internal/contest"
)

// SchemaVersion is bumped whenever State changes incompatibly
const SchemaVersion = 1

// ErrSchemaMismatch is returned when a blob was written by an incompatible version
var ErrSchemaMismatch = errors.New("state schema mismatch")

// Backend persists state blobs
type Backend interface {
	SavePrimary(ctx context.Context, data []byte) error
	LoadPrimary(ctx context.Context) ([]byte, error)
	SaveBackup(ctx context.Context, at time.Time, data []byte) error
}

// Store owns guild settings and final-call records. It is the only writer of persisted state.
type Store struct {
	backend     Backend
	clock       clock.Clock
	backupEvery time.Duration

	mu         sync.RWMutex
	lastBackup time.Time
	guilds     map[string]*GuildSettings
	finalCalls map[string]map[contest.Tier]map[string]*FinalCall
}

// NewStore creates an empty store
func NewStore(backend Backend, clk clock.Clock, backupEvery time.Duration) *Store {
	return &Store{
		backend:     backend,
		clock:       clk,
		backupEvery: backupEvery,
		guilds:      make(map[string]*GuildSettings),
		finalCalls:  make(map[string]map[contest.Tier]map[string]*FinalCall),
	}
}

// Load restores the primary snapshot. Any failure starts from empty state.
func (s *Store) Load(ctx context.Context) {
	state, err := s.readPrimary(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.guilds = make(map[string]*GuildSettings)
	s.finalCalls = make(map[string]map[contest.Tier]map[string]*FinalCall)

	if err != nil {
		if errors.Is(err, ErrNoState) {
			slog.Info("No persisted state, starting fresh")
		} else {
			slog.Warn("Failed to load persisted state, starting fresh", "error", err)
		}
		return
	}

	for id, g := range state.GuildSettings {
		if g != nil {
			s.guilds[id] = g
		}
	}
	records := 0
	for id, tiers := range state.FinalCalls {
		for tier, byURL := range tiers {
			for url, fc := range byURL {
				if fc == nil {
					continue
				}
				s.finalCallsLocked(id, tier)[url] = fc
				records++
			}
		}
	}
	slog.Info("Loaded persisted state", "guilds", len(s.guilds), "finalCalls", records)
}

func (s *Store) readPrimary(ctx context.Context) (*State, error) {
	data, err := s.backend.LoadPrimary(ctx)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	if state.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaMismatch, state.Version, SchemaVersion)
	}
	return &state, nil
}

// Settings returns a copy of a guild's settings, creating defaults on first access
func (s *Store) Settings(guildID string) GuildSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guildLocked(guildID).Clone()
}

// Lookup returns a copy of a guild's settings without creating defaults
func (s *Store) Lookup(guildID string) (GuildSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return GuildSettings{}, false
	}
	return g.Clone(), true
}

// Update mutates a guild's settings and returns the result
func (s *Store) Update(guildID string, fn func(*GuildSettings)) GuildSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.guildLocked(guildID)
	fn(g)
	g.Div1.RemindBefore = normalizeIfSet(g.Div1.RemindBefore)
	g.Open.RemindBefore = normalizeIfSet(g.Open.RemindBefore)
	return g.Clone()
}

func normalizeIfSet(before []int) []int {
	if before == nil {
		return nil
	}
	return NormalizeLeadTimes(before)
}

// Reset returns a guild to default settings
func (s *Store) Reset(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, guildID)
}

// Guilds returns every guild with settings or final calls
func (s *Store) Guilds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for id := range s.guilds {
		seen[id] = true
	}
	for id := range s.finalCalls {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) guildLocked(guildID string) *GuildSettings {
	g, ok := s.guilds[guildID]
	if !ok {
		g = &GuildSettings{}
		s.guilds[guildID] = g
	}
	return g
}

// FinalCall returns a copy of the record for a contest link
func (s *Store) FinalCall(guildID string, tier contest.Tier, url string) (FinalCall, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fc, ok := s.finalCalls[guildID][tier][url]
	if !ok {
		return FinalCall{}, false
	}
	return fc.clone(), true
}

// FinalCalls returns copies of every record for a guild and tier, keyed by link
func (s *Store) FinalCalls(guildID string, tier contest.Tier) map[string]FinalCall {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]FinalCall)
	for url, fc := range s.finalCalls[guildID][tier] {
		out[url] = fc.clone()
	}
	return out
}

// PutFinalCall creates or replaces a record
func (s *Store) PutFinalCall(guildID string, tier contest.Tier, url string, fc FinalCall) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := fc.clone()
	s.finalCallsLocked(guildID, tier)[url] = &c
}

// DeleteFinalCall removes a record and reports whether it existed
func (s *Store) DeleteFinalCall(guildID string, tier contest.Tier, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byURL, ok := s.finalCalls[guildID][tier]
	if !ok {
		return false
	}
	if _, ok := byURL[url]; !ok {
		return false
	}
	delete(byURL, url)
	return true
}

func (s *Store) finalCallsLocked(guildID string, tier contest.Tier) map[string]*FinalCall {
	tiers, ok := s.finalCalls[guildID]
	if !ok {
		tiers = make(map[contest.Tier]map[string]*FinalCall)
		s.finalCalls[guildID] = tiers
	}
	byURL, ok := tiers[tier]
	if !ok {
		byURL = make(map[string]*FinalCall)
		tiers[tier] = byURL
	}
	return byURL
}

func (s *Store) marshal() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		Version:       SchemaVersion,
		GuildSettings: s.guilds,
		FinalCalls:    s.finalCalls,
	}
	return json.Marshal(state)
}

// Persist overwrites the primary snapshot with the full current state
func (s *Store) Persist(ctx context.Context) error {
	data, err := s.marshal()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.backend.SavePrimary(ctx, data); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	slog.Debug("State persisted", "bytes", len(data))
	return nil
}

// BackupIfDue writes a timestamped snapshot unless one was written within the backup window
func (s *Store) BackupIfDue(ctx context.Context) (bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if !s.lastBackup.IsZero() && now.Sub(s.lastBackup) < s.backupEvery {
		s.mu.Unlock()
		return false, nil
	}
	s.lastBackup = now
	s.mu.Unlock()

	data, err := s.marshal()
	if err != nil {
		return false, fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.backend.SaveBackup(ctx, now, data); err != nil {
		return false, fmt.Errorf("failed to save backup: %w", err)
	}
	slog.Info("State backup written", "at", now)
	return true, nil
}
