package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full application configuration. All durations are Go
// duration strings (e.g. "500ms", "30s", "720h").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	API       APIConfig       `json:"api"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`
	Retention RetentionConfig `json:"retention,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout, e.g. "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type APIConfig struct {
	Addr   string `json:"addr,omitempty"` // default "127.0.0.1:9000"
	Secret string `json:"secret"`
}

type DatabaseConfig struct {
	Path        string `json:"path,omitempty"` // default "./data/outagebot.db"
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// RemindersConfig controls the reminder poll loop and dispatch fan-out.
type RemindersConfig struct {
	PollInterval string `json:"poll_interval,omitempty"` // default "30s"
	SendTimeout  string `json:"send_timeout,omitempty"`  // default "5s"
	RatePerSec   int    `json:"rate_per_sec,omitempty"`  // default 25
	GameURL      string `json:"game_url,omitempty"`
}

// RetentionConfig controls the cron job pruning delivered reminders and
// long-finished outages.
type RetentionConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, default "0 4 * * *"
	MaxAge   string `json:"max_age,omitempty"`  // default "720h" (30 days)
}

// Validate checks required fields and parses every duration once so a
// broken config is rejected before (or instead of) being applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.API.Secret) == "" {
		return errors.New("api.secret is required")
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"database.busy_timeout", c.Database.BusyTimeout},
		{"reminders.poll_interval", c.Reminders.PollInterval},
		{"reminders.send_timeout", c.Reminders.SendTimeout},
		{"retention.max_age", c.Retention.MaxAge},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Reminders.RatePerSec < 0 {
		return errors.New("reminders.rate_per_sec must be >= 0")
	}
	return nil
}

// DatabasePath returns the configured path or the default.
func (c *Config) DatabasePath() string {
	if strings.TrimSpace(c.Database.Path) == "" {
		return "./data/outagebot.db"
	}
	return c.Database.Path
}

// Duration helpers used by wiring; Validate has already rejected
// malformed values, so the fallback only covers empty fields.

func (c *Config) PollTimeout() time.Duration {
	return mustDuration(c.Telegram.PollTimeout, 10*time.Second)
}

func (c *Config) BusyTimeout() time.Duration {
	return mustDuration(c.Database.BusyTimeout, 5*time.Second)
}

func (c *Config) ReminderPollInterval() time.Duration {
	return mustDuration(c.Reminders.PollInterval, 30*time.Second)
}

func (c *Config) ReminderSendTimeout() time.Duration {
	return mustDuration(c.Reminders.SendTimeout, 5*time.Second)
}

func (c *Config) RetentionMaxAge() time.Duration {
	return mustDuration(c.Retention.MaxAge, 30*24*time.Hour)
}

func (c *Config) RetentionSchedule() string {
	if strings.TrimSpace(c.Retention.Schedule) == "" {
		return "0 4 * * *"
	}
	return c.Retention.Schedule
}

func mustDuration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}

// String implements fmt.Stringer without leaking secrets into logs.
func (c *Config) String() string {
	return fmt.Sprintf("config{api.addr=%s db.path=%s poll=%s}", c.API.Addr, c.DatabasePath(), c.ReminderPollInterval())
}
