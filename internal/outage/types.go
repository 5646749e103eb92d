package outage

// Outage is a scheduled time-boxed event users are notified about.
// Timestamps are UTC epoch seconds.
type Outage struct {
	ID        int64
	Name      string
	Reward    *string
	StartsAt  int64
	EndsAt    int64
	CreatedAt int64
}

// Reminder is one scheduled notification tied to an outage and a kind.
// SentAt is nil until the reminder has been dispatched.
type Reminder struct {
	ID        int64
	OutageID  int64
	Kind      Kind
	SendAt    int64
	CreatedAt int64
	SentAt    *int64
}

// User is a bot user. Legal acceptance is one-way; NotifyOn is a
// toggleable opt-in for outage notifications.
type User struct {
	UserID          int64
	LegalAccepted   bool
	LegalAcceptedAt *int64
	NotifyOn        bool
	CreatedAt       int64
}

// DueReminder is a reminder joined with its outage, as returned by the
// due-queue scan.
type DueReminder struct {
	ReminderID int64
	Kind       Kind
	SendAt     int64
	Name       string
	Reward     *string
	StartsAt   int64
	EndsAt     int64
}
