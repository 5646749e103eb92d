// Package maintenance runs background housekeeping jobs on a cron
// schedule. Currently that is retention: pruning delivered reminders
// and long-finished outages past a configured age.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"outagebot/internal/store"
	"outagebot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string        // cron spec, default "0 4 * * *"
	MaxAge   time.Duration // default 720h
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = "0 4 * * *"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * 24 * time.Hour
	}
	return c
}

// Retention prunes old delivered rows on a schedule. A failed run is
// logged and retried at the next scheduled time.
type Retention struct {
	cfg  Config
	st   store.Store
	log  logx.Logger
	cron *cron.Cron
}

func NewRetention(cfg Config, st store.Store, log logx.Logger) *Retention {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Retention{
		cfg: cfg.withDefaults(),
		st:  st,
		log: log.With(logx.String("comp", "retention")),
	}
}

// Start registers the cron entry and begins scheduling. No-op when
// retention is disabled.
func (r *Retention) Start() error {
	if !r.cfg.Enabled {
		r.log.Debug("retention disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(r.cfg.Schedule, r.runOnce); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	r.log.Info("retention scheduled",
		logx.String("schedule", r.cfg.Schedule),
		logx.Duration("max_age", r.cfg.MaxAge),
	)
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *Retention) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-r.cfg.MaxAge).Unix()
	pruned, err := r.st.PruneDelivered(ctx, cutoff)
	if err != nil {
		r.log.Error("retention prune failed", logx.Err(err))
		return
	}
	r.log.Info("retention prune done",
		logx.Int64("pruned", pruned),
		logx.Time("cutoff", time.Unix(cutoff, 0).UTC()),
	)
}
