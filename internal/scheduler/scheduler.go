// Package scheduler owns the reminder pipeline: scheduling reminders
// for new outages and the poll loop that finds due reminders and
// delivers them to subscribed users.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"outagebot/internal/bot"
	"outagebot/internal/outage"
	"outagebot/internal/store"
	kit "outagebot/internal/transport"
	"outagebot/pkg/logx"
)

// Sender is the slice of the transport adapter dispatch needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Config struct {
	PollInterval time.Duration // default 30s
	SendTimeout  time.Duration // per-recipient delivery timeout, default 5s
	RatePerSec   int           // outbound send pacing, default 25
	GameURL      string        // entry link attached to "start" reminders
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
	return c
}

// Service schedules outage reminders and runs the dispatch loop.
type Service struct {
	st     store.Store
	sender Sender
	log    logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, st store.Store, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{st: st, sender: sender, log: log.With(logx.String("comp", "scheduler"))}
	s.Apply(cfg)
	return s
}

// Apply swaps runtime knobs (poll interval, pacing, game URL). Safe for
// concurrent use; the new interval takes effect after the current sleep.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// ScheduleOutage persists the outage, derives the reminder ladder
// against call-time now, and persists the reminders. The outage row is
// written first so it exists even if reminder creation fails part-way.
// Returns the outage id and the number of reminder rows attempted.
func (s *Service) ScheduleOutage(ctx context.Context, name string, reward *string, startsAt, endsAt int64) (int64, int, error) {
	outageID, err := s.st.CreateOutage(ctx, name, reward, startsAt, endsAt)
	if err != nil {
		return 0, 0, err
	}

	entries := outage.Ladder(startsAt, time.Now().Unix())
	attempted, err := s.st.CreateReminders(ctx, outageID, entries)
	if err != nil {
		return outageID, 0, err
	}

	s.log.Info("outage scheduled",
		logx.Int64("outage_id", outageID),
		logx.String("name", name),
		logx.Time("starts_at", time.Unix(startsAt, 0).UTC()),
		logx.Int("reminders", attempted),
	)
	return outageID, attempted, nil
}

// Run polls for due reminders until ctx is canceled. A failed cycle is
// logged and the loop carries on with its next tick.
func (s *Service) Run(ctx context.Context) {
	cfg, _ := s.snapshot()
	s.log.Info("reminder loop started", logx.Duration("interval", cfg.PollInterval))
	for {
		s.tick(ctx)
		cfg, _ = s.snapshot()
		select {
		case <-ctx.Done():
			s.log.Info("reminder loop stopped")
			return
		case <-time.After(cfg.PollInterval):
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := time.Now().Unix()
	due, err := s.st.GetDueReminders(ctx, now)
	if err != nil {
		s.log.Error("due reminder scan failed", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.dispatch(ctx, due, now)
}

// dispatch delivers a batch of due reminders. The recipient set is
// resolved once per cycle so every reminder in the batch sees the same
// snapshot. Per-recipient failures are logged and swallowed; each
// reminder is marked sent exactly once after its delivery attempt,
// even when there are no recipients at all.
func (s *Service) dispatch(ctx context.Context, due []outage.DueReminder, now int64) {
	cfg, limiter := s.snapshot()

	recipients, err := s.st.ListUserIDs(ctx, true, true)
	if err != nil {
		// Leave the batch untouched; it stays due for the next cycle.
		s.log.Error("recipient snapshot failed", logx.Err(err))
		return
	}

	s.log.Info("dispatching due reminders",
		logx.Int("reminders", len(due)),
		logx.Int("recipients", len(recipients)),
	)

	for _, rem := range due {
		if len(recipients) > 0 {
			text := outage.RenderMessage(rem, now)
			markup := bot.NotificationKeyboard(true, rem.Kind == outage.KindStart, cfg.GameURL)
			opt := &kit.SendOptions{ReplyMarkup: markup}

			for _, userID := range recipients {
				if err := limiter.Wait(ctx); err != nil {
					// Shutdown mid-batch: the unmarked remainder is
					// picked up again on the next start.
					return
				}
				sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
				_, err := s.sender.SendText(sctx, kit.ChatTarget{ChatID: userID}, text, opt)
				cancel()
				if err != nil {
					s.log.Debug("reminder delivery failed",
						logx.Int64("user_id", userID),
						logx.String("kind", string(rem.Kind)),
						logx.Err(err),
					)
				}
			}
		}

		if err := s.st.MarkReminderSent(ctx, rem.ReminderID, time.Now().Unix()); err != nil {
			s.log.Error("mark reminder sent failed",
				logx.Int64("reminder_id", rem.ReminderID), logx.Err(err))
		}
	}
}
