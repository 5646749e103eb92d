package store

import (
	"context"
	"time"

	"outagebot/internal/outage"
)

// Store is the persistence contract for users, outages and reminders.
// Implementations serialize all reads and writes; callers never touch
// the underlying handle. Storage errors propagate to the caller as-is.
type Store interface {
	// EnsureUser inserts the user with created_at=now if absent; no-op
	// otherwise.
	EnsureUser(ctx context.Context, userID int64) error

	// SetLegalAccepted upserts the user and flips the one-way legal
	// acceptance flag. Idempotent.
	SetLegalAccepted(ctx context.Context, userID, acceptedAt int64) error

	// IsLegalAccepted reports the flag; unknown users count as false.
	IsLegalAccepted(ctx context.Context, userID int64) (bool, error)

	// SetNotify toggles the notification opt-in.
	SetNotify(ctx context.Context, userID int64, on bool) error

	// GetUser returns the user row, or (nil, nil) when unknown.
	GetUser(ctx context.Context, userID int64) (*outage.User, error)

	// ListUserIDs returns user ids matching the given filters. The two
	// predicates are independent and combinable.
	ListUserIDs(ctx context.Context, onlyAccepted, onlyNotify bool) ([]int64, error)

	// CreateOutage always inserts a new row; there is no dedup by name.
	CreateOutage(ctx context.Context, name string, reward *string, startsAt, endsAt int64) (int64, error)

	// DeleteOutageByName deletes every outage with the given name and
	// returns the number of rows removed. Reminders cascade.
	DeleteOutageByName(ctx context.Context, name string) (int64, error)

	// CreateReminders inserts reminder rows, silently skipping entries
	// that collide on (outage_id, kind). The returned count is the
	// number of rows attempted, not the number actually inserted.
	CreateReminders(ctx context.Context, outageID int64, entries []outage.LadderEntry) (int, error)

	// GetDueReminders returns unsent reminders with send_at <= now,
	// joined with their outage, ordered by send_at ascending.
	GetDueReminders(ctx context.Context, now int64) ([]outage.DueReminder, error)

	// MarkReminderSent records the one-way PENDING -> SENT transition.
	MarkReminderSent(ctx context.Context, reminderID, sentAt int64) error

	// CountPendingReminders reports how many reminders are still unsent.
	CountPendingReminders(ctx context.Context) (int64, error)

	// PruneDelivered removes reminders sent before the cutoff and
	// outages that ended before the cutoff with no pending reminders
	// left. Returns total rows removed.
	PruneDelivered(ctx context.Context, before int64) (int64, error)

	Close() error
}

func nowUnix() int64 { return time.Now().Unix() }
