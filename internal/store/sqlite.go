package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"outagebot/internal/outage"
	"outagebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// sqliteStore keeps a single mutex-guarded connection. SQLite is a
// single-file database; every operation goes through the lock so the
// bot router, the poll loop and the control API never write
// concurrently.
type sqliteStore struct {
	mu  sync.Mutex
	db  *sql.DB
	log logx.Logger
}

// Open opens (or creates) the SQLite database at cfg.Path, applies
// pragmas, runs the embedded migrations and returns the store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	s := &sqliteStore{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// Close closes the handle. The handle itself is kept so a late caller
// gets sql's "database is closed" error instead of a nil dereference.
func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *sqliteStore) EnsureUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?)`,
		userID, nowUnix(),
	)
	return err
}

func (s *sqliteStore) SetLegalAccepted(ctx context.Context, userID, acceptedAt int64) error {
	if acceptedAt == 0 {
		acceptedAt = nowUnix()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?)`,
		userID, acceptedAt,
	); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET legal_accepted = 1, legal_accepted_at = ? WHERE user_id = ?`,
		acceptedAt, userID,
	)
	return err
}

func (s *sqliteStore) IsLegalAccepted(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accepted int
	err := s.db.QueryRowContext(ctx,
		`SELECT legal_accepted FROM users WHERE user_id = ?`, userID,
	).Scan(&accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return accepted != 0, nil
}

func (s *sqliteStore) SetNotify(ctx context.Context, userID int64, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?)`,
		userID, nowUnix(),
	); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET notify_on = ? WHERE user_id = ?`,
		boolToInt(on), userID,
	)
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, userID int64) (*outage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		u          outage.User
		accepted   int
		acceptedAt sql.NullInt64
		notify     int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, legal_accepted, legal_accepted_at, notify_on, created_at
		 FROM users WHERE user_id = ?`, userID,
	).Scan(&u.UserID, &accepted, &acceptedAt, &notify, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.LegalAccepted = accepted != 0
	u.NotifyOn = notify != 0
	if acceptedAt.Valid {
		v := acceptedAt.Int64
		u.LegalAcceptedAt = &v
	}
	return &u, nil
}

func (s *sqliteStore) ListUserIDs(ctx context.Context, onlyAccepted, onlyNotify bool) ([]int64, error) {
	query := `SELECT user_id FROM users`
	var conds []string
	if onlyAccepted {
		conds = append(conds, "legal_accepted = 1")
	}
	if onlyNotify {
		conds = append(conds, "notify_on = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) CreateOutage(ctx context.Context, name string, reward *string, startsAt, endsAt int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outages (name, reward, starts_at, ends_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		name, nullStr(reward), startsAt, endsAt, nowUnix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) DeleteOutageByName(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM outages WHERE name = ?`, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) CreateReminders(ctx context.Context, outageID int64, entries []outage.LadderEntry) (int, error) {
	now := nowUnix()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		// INSERT OR IGNORE makes re-scheduling idempotent: a duplicate
		// (outage_id, kind) is a silent no-op, not an error.
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO reminders (outage_id, kind, send_at, created_at)
			 VALUES (?, ?, ?, ?)`,
			outageID, string(e.Kind), e.SendAt, now,
		); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

func (s *sqliteStore) GetDueReminders(ctx context.Context, now int64) ([]outage.DueReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.kind, r.send_at, o.name, o.reward, o.starts_at, o.ends_at
		 FROM reminders r
		 JOIN outages o ON o.id = r.outage_id
		 WHERE r.sent_at IS NULL AND r.send_at <= ?
		 ORDER BY r.send_at ASC`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []outage.DueReminder
	for rows.Next() {
		var (
			d      outage.DueReminder
			kind   string
			reward sql.NullString
		)
		if err := rows.Scan(&d.ReminderID, &kind, &d.SendAt, &d.Name, &reward, &d.StartsAt, &d.EndsAt); err != nil {
			return nil, err
		}
		d.Kind = outage.Kind(kind)
		if reward.Valid {
			v := reward.String
			d.Reward = &v
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (s *sqliteStore) MarkReminderSent(ctx context.Context, reminderID, sentAt int64) error {
	if sentAt == 0 {
		sentAt = nowUnix()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET sent_at = ? WHERE id = ?`,
		sentAt, reminderID,
	)
	return err
}

func (s *sqliteStore) CountPendingReminders(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE sent_at IS NULL`).Scan(&n)
	return n, err
}

func (s *sqliteStore) PruneDelivered(ctx context.Context, before int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE sent_at IS NOT NULL AND sent_at < ?`, before)
	if err != nil {
		return 0, err
	}
	reminders, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM outages
		 WHERE ends_at < ?
		   AND NOT EXISTS (
		       SELECT 1 FROM reminders r
		       WHERE r.outage_id = outages.id AND r.sent_at IS NULL
		   )`, before)
	if err != nil {
		return reminders, err
	}
	outages, _ := res.RowsAffected()
	return reminders + outages, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v *string) any {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return *v
}
