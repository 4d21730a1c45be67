package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher pulls the latest contest feed into the cache
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Reconciler rebuilds derived timers for a set of guilds
type Reconciler interface {
	ReconcileAll(guildIDs []string)
}

// Poller periodically refreshes the contest cache and reconciles the schedulers against it
type Poller struct {
	cache       Refresher
	reconcilers []Reconciler
	guilds      func() []string
	interval    time.Duration

	mu      sync.Mutex
	c       *cron.Cron
	running bool
}

// New creates a new Poller. guilds lists the guilds to reconcile on every pass.
func New(cache Refresher, guilds func() []string, interval time.Duration, reconcilers ...Reconciler) *Poller {
	return &Poller{
		cache:       cache,
		reconcilers: reconcilers,
		guilds:      guilds,
		interval:    interval,
	}
}

// Start runs an initial poll, then schedules one every interval
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	slog.Info("Starting poller", "interval", p.interval)

	// Initial poll
	p.Poll(ctx)

	p.c = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	p.c.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		select {
		case <-ctx.Done():
			return
		default:
			p.Poll(ctx)
		}
	}))
	p.c.Start()
	p.running = true
}

// Stop halts the schedule and waits for a running poll to finish
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	<-p.c.Stop().Done()
	p.running = false
	slog.Info("Poller stopped")
}

// Poll refreshes the cache and reconciles every guild. A failed refresh keeps
// the previous snapshot and skips reconciliation.
func (p *Poller) Poll(ctx context.Context) {
	if err := p.cache.Refresh(ctx); err != nil {
		slog.Error("Failed to refresh contests", "error", err)
		return
	}

	guilds := p.guilds()
	if len(guilds) == 0 {
		slog.Debug("No guilds to reconcile")
		return
	}

	slog.Debug("Reconciling guilds", "count", len(guilds))
	for _, r := range p.reconcilers {
		r.ReconcileAll(guilds)
	}
}
