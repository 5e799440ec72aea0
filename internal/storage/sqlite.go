package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"partybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

// Open initializes the sqlite store and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; serializing through one connection
	// also makes the count-then-insert transactions race-free.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- members ----

func (s *sqliteStore) ClaimMember(ctx context.Context, name string, userID int64) (*Member, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("member name must not be empty")
	}
	// Create the member on first claim; re-claiming your own member is a
	// no-op. A member claimed by someone else stays theirs.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (name, claimed_by) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET claimed_by = excluded.claimed_by
		WHERE members.claimed_by IS NULL`,
		name, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming member: %w", err)
	}

	var m Member
	if err := s.db.GetContext(ctx, &m, `SELECT * FROM members WHERE name = ?`, name); err != nil {
		return nil, fmt.Errorf("loading member: %w", err)
	}
	if m.ClaimedBy == nil || *m.ClaimedBy != userID {
		return nil, ErrClaimed
	}
	return &m, nil
}

func (s *sqliteStore) MemberByID(ctx context.Context, id int64) (*Member, error) {
	var m Member
	err := s.db.GetContext(ctx, &m, `SELECT * FROM members WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading member: %w", err)
	}
	return &m, nil
}

func (s *sqliteStore) MemberByName(ctx context.Context, name string) (*Member, error) {
	var m Member
	err := s.db.GetContext(ctx, &m, `SELECT * FROM members WHERE name = ?`, strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading member: %w", err)
	}
	return &m, nil
}

func (s *sqliteStore) MembersClaimedBy(ctx context.Context, userID int64) ([]Member, error) {
	var out []Member
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM members WHERE claimed_by = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing claimed members: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) SetTimezone(ctx context.Context, memberID int64, zone string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET timezone = ? WHERE id = ?`, zone, memberID)
	if err != nil {
		return fmt.Errorf("setting timezone: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStore) SetStamina(ctx context.Context, memberID int64, value int, at time.Time) error {
	// Lowering the baseline below the notified level pulls the level down
	// with it, otherwise the monitor would never announce those
	// thresholds again.
	res, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET stamina = ?, stamina_at = ?, notified_level = MIN(notified_level, ?)
		WHERE id = ?`,
		value, at.UTC(), value, memberID,
	)
	if err != nil {
		return fmt.Errorf("setting stamina: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStore) TrackedMembers(ctx context.Context, cap int) ([]Member, error) {
	var out []Member
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM members
		WHERE claimed_by IS NOT NULL AND notified_level < ?
		ORDER BY id`,
		cap,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tracked members: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) RaiseNotifiedLevel(ctx context.Context, memberID int64, level int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE members SET notified_level = ?
		WHERE id = ? AND notified_level < ?`,
		level, memberID, level,
	)
	if err != nil {
		return fmt.Errorf("raising notified level: %w", err)
	}
	return nil
}

// ---- activities ----

func (s *sqliteStore) CreateActivity(ctx context.Context, a *Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, kind, detail, scheduled_at, organizer_id, notes,
		                        chat_id, message_id, reminder_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Kind, a.Detail, a.ScheduledAt.UTC(), a.OrganizerID, a.Notes,
		a.ChatID, a.MessageID, a.ReminderSent, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating activity: %w", err)
	}
	return nil
}

func (s *sqliteStore) Activity(ctx context.Context, id string) (*Activity, error) {
	var a Activity
	err := s.db.GetContext(ctx, &a, `SELECT * FROM activities WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading activity: %w", err)
	}
	return &a, nil
}

func (s *sqliteStore) SetActivityMessage(ctx context.Context, id string, chatID int64, messageID int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE activities SET chat_id = ?, message_id = ? WHERE id = ?`,
		chatID, messageID, id)
	if err != nil {
		return fmt.Errorf("storing message ref: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStore) DeleteActivity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting activity: %w", err)
	}
	return requireRow(res)
}

func (s *sqliteStore) ListUpcoming(ctx context.Context, from time.Time) ([]Activity, error) {
	var out []Activity
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM activities WHERE scheduled_at >= ?
		ORDER BY scheduled_at`,
		from.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) DueReminders(ctx context.Context, from, to time.Time) ([]Activity, error) {
	var out []Activity
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM activities
		WHERE reminder_sent = 0 AND scheduled_at >= ? AND scheduled_at < ?
		ORDER BY scheduled_at`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing due reminders: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE activities SET reminder_sent = 1 WHERE id = ? AND reminder_sent = 0`, id)
	if err != nil {
		return false, fmt.Errorf("marking reminder sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- participants ----

func (s *sqliteStore) AddParticipant(ctx context.Context, activityID string, memberID int64, capacity int) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists,
		`SELECT COUNT(*) FROM activities WHERE id = ?`, activityID); err != nil {
		return false, fmt.Errorf("checking activity: %w", err)
	}
	if exists == 0 {
		return false, ErrNotFound
	}

	// Duplicate join is a no-op even when the roster is full.
	var joined int
	if err := tx.GetContext(ctx, &joined,
		`SELECT COUNT(*) FROM participants WHERE activity_id = ? AND member_id = ?`,
		activityID, memberID); err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	if joined > 0 {
		return false, tx.Commit()
	}

	var count int
	if err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM participants WHERE activity_id = ?`, activityID); err != nil {
		return false, fmt.Errorf("counting participants: %w", err)
	}
	if count >= capacity {
		return false, ErrFull
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO participants (activity_id, member_id, joined_at) VALUES (?, ?, ?)`,
		activityID, memberID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("inserting participant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing join: %w", err)
	}
	return true, nil
}

func (s *sqliteStore) RemoveParticipant(ctx context.Context, activityID string, memberID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM participants WHERE activity_id = ? AND member_id = ?`,
		activityID, memberID)
	if err != nil {
		return false, fmt.Errorf("removing participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) Participants(ctx context.Context, activityID string) ([]Member, error) {
	var out []Member
	err := s.db.SelectContext(ctx, &out, `
		SELECT m.* FROM members m
		JOIN participants p ON p.member_id = m.id
		WHERE p.activity_id = ?
		ORDER BY p.joined_at, m.id`,
		activityID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	return out, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
