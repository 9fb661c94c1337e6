package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cortexlabs/cortex/internal/responsestore"
)

// GCConfig controls the periodic garbage collector: how often it runs
// and how long a session may go untouched before its index row is
// eligible for collection.
type GCConfig struct {
	Schedule   string // standard five-field cron expression
	SessionTTL time.Duration
}

// DefaultGCConfig runs once an hour and considers a session collectible
// after seven days of inactivity.
func DefaultGCConfig() GCConfig {
	return GCConfig{Schedule: "0 * * * *", SessionTTL: 7 * 24 * time.Hour}
}

// GC periodically sweeps stale session state: response-store entries
// past their TTL (via responsestore.Store.CleanupExpired) and index
// rows for sessions not updated within SessionTTL. Rows are deleted on
// age alone; whether a rollout file still exists on disk is not
// checked, and snapshots are not touched. It does not touch rollout
// files themselves —
// those are the durable record and are never garbage collected here.
type GC struct {
	cfg       GCConfig
	responses *responsestore.Store
	index     SessionIndex
	log       *slog.Logger

	cron *cron.Cron
}

// NewGC builds a GC. responses and index may be nil if that subsystem
// isn't in use; the corresponding sweep step is then a no-op.
func NewGC(cfg GCConfig, responses *responsestore.Store, index SessionIndex, log *slog.Logger) *GC {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg = DefaultGCConfig()
	}
	return &GC{cfg: cfg, responses: responses, index: index, log: log}
}

// Start schedules the sweep on cfg.Schedule and begins running it in
// the background. Call Stop to shut it down.
func (g *GC) Start() error {
	g.cron = cron.New()
	_, err := g.cron.AddFunc(g.cfg.Schedule, g.sweep)
	if err != nil {
		return err
	}
	g.cron.Start()
	return nil
}

// Stop waits for any in-flight sweep to finish and stops the scheduler.
func (g *GC) Stop() {
	if g.cron == nil {
		return
	}
	ctx := g.cron.Stop()
	<-ctx.Done()
}

func (g *GC) sweep() {
	if g.responses != nil {
		n := g.responses.CleanupExpired()
		if n > 0 {
			g.log.Info("gc: cleaned up expired stored tool responses", "count", n)
		}
	}
	if g.index != nil {
		g.sweepIndex()
	}
}

func (g *GC) sweepIndex() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := g.index.List(ctx, "", 0)
	if err != nil {
		g.log.Warn("gc: list index for sweep failed", "error", err)
		return
	}
	cutoff := time.Now().Add(-g.cfg.SessionTTL)
	removed := 0
	for _, rec := range records {
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		if err := g.index.Delete(ctx, rec.ID); err != nil {
			g.log.Warn("gc: delete stale index row failed", "session_id", rec.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		g.log.Info("gc: removed stale index rows", "count", removed)
	}
}
