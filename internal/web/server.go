package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flor3z/contest-remind-bot/internal/cache"
	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/reminder"
	"github.com/flor3z/contest-remind-bot/internal/storage"
)

// ContestSource exposes the current contest snapshot
type ContestSource interface {
	Snapshot() *cache.Snapshot
}

// GuildStore exposes guild settings and final-call records
type GuildStore interface {
	Lookup(guildID string) (storage.GuildSettings, bool)
	FinalCalls(guildID string, tier contest.Tier) map[string]storage.FinalCall
}

// ReminderLister exposes pending reminders
type ReminderLister interface {
	Scheduled(guildID string, tier contest.Tier) []reminder.Reminder
}

// FinalCallLister exposes armed final calls
type FinalCallLister interface {
	Armed(guildID string, tier contest.Tier) []string
}

// BackupLister exposes stored state backups
type BackupLister interface {
	Backups(ctx context.Context) ([]storage.Backup, error)
}

// Deps are the read-only views the status server renders
type Deps struct {
	Contests   ContestSource
	Store      GuildStore
	Reminders  ReminderLister
	FinalCalls FinalCallLister
	Backups    BackupLister
}

// NewRouter builds the status routes
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", HandleHealth(d.Contests))
	r.GET("/contests/:tier/:view", HandleContests(d.Contests))
	r.GET("/guilds/:id", HandleGuild(d))
	r.GET("/backups", HandleBackups(d.Backups))
	return r
}

// Server serves the status routes over HTTP
type Server struct {
	srv *http.Server
}

// NewServer creates a status server listening on addr
func NewServer(addr string, d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(d),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens in the background
func (s *Server) Start() {
	slog.Info("Starting status server", "addr", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Status server failed", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func HandleHealth(contests ContestSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := contests.Snapshot()
		body := gin.H{"status": "ok"}
		if !snap.RefreshedAt.IsZero() {
			body["refreshed_at"] = snap.RefreshedAt
		}
		c.JSON(http.StatusOK, body)
	}
}

type contestJSON struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Website  string    `json:"website"`
	Start    time.Time `json:"start"`
	Duration int64     `json:"duration_seconds"`
	URL      string    `json:"url"`
	Rare     bool      `json:"rare,omitempty"`
}

func toJSON(contests []contest.Contest) []contestJSON {
	out := make([]contestJSON, 0, len(contests))
	for _, ct := range contests {
		out = append(out, contestJSON{
			ID:       ct.ID,
			Name:     ct.DisplayName(),
			Website:  ct.Website,
			Start:    ct.Start,
			Duration: int64(ct.Duration / time.Second),
			URL:      ct.URL,
			Rare:     ct.Rare,
		})
	}
	return out
}

func HandleContests(contests ContestSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		tier, err := contest.ParseTier(c.Param("tier"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		view := contests.Snapshot().Tier(tier)
		var list []contest.Contest
		switch c.Param("view") {
		case "future":
			list = view.Future
		case "active":
			list = view.Active
		case "finished":
			list = view.Finished
		case "all":
			list = view.All
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown view"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"tier": tier.String(), "contests": toJSON(list)})
	}
}

type tierStatus struct {
	Scheduled  []reminder.Reminder          `json:"scheduled"`
	Armed      []string                     `json:"armed"`
	FinalCalls map[string]storage.FinalCall `json:"final_calls"`
}

func HandleGuild(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := c.Param("id")
		settings, ok := d.Store.Lookup(guildID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "guild not found"})
			return
		}

		tiers := make(map[string]tierStatus, len(contest.Tiers))
		for _, tier := range contest.Tiers {
			tiers[tier.String()] = tierStatus{
				Scheduled:  d.Reminders.Scheduled(guildID, tier),
				Armed:      d.FinalCalls.Armed(guildID, tier),
				FinalCalls: d.Store.FinalCalls(guildID, tier),
			}
		}

		c.JSON(http.StatusOK, gin.H{"settings": settings, "tiers": tiers})
	}
}

func HandleBackups(backups BackupLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := backups.Backups(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list backups", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list backups"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"backups": list})
	}
}
