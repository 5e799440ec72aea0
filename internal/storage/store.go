// Package storage persists members, activities and roster slots.
//
// All invariants that must hold under concurrent access (capacity,
// reminder-flag monotonicity, notified-level monotonicity) are enforced
// here with single transactions or conditional updates, not by callers.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrFull indicates an activity's roster is at capacity.
	ErrFull = errors.New("activity full")

	// ErrClaimed indicates the member is already claimed by another
	// Telegram account.
	ErrClaimed = errors.New("member already claimed")
)

// Store is the persistence API used by the party and stamina services.
type Store interface {
	// Members.
	ClaimMember(ctx context.Context, name string, userID int64) (*Member, error)
	MemberByID(ctx context.Context, id int64) (*Member, error)
	MemberByName(ctx context.Context, name string) (*Member, error)
	MembersClaimedBy(ctx context.Context, userID int64) ([]Member, error)
	SetTimezone(ctx context.Context, memberID int64, zone string) error

	// SetStamina overwrites the baseline and its timestamp. When the new
	// baseline is below the already-notified level, the notified level is
	// reset to the baseline so thresholds re-fire on the way back up.
	SetStamina(ctx context.Context, memberID int64, value int, at time.Time) error

	// TrackedMembers returns claimed members whose notified level is
	// still below the given cap.
	TrackedMembers(ctx context.Context, cap int) ([]Member, error)

	// RaiseNotifiedLevel records that thresholds up to level have been
	// announced. It never lowers the stored level.
	RaiseNotifiedLevel(ctx context.Context, memberID int64, level int) error

	// Activities.
	CreateActivity(ctx context.Context, a *Activity) error
	Activity(ctx context.Context, id string) (*Activity, error)
	SetActivityMessage(ctx context.Context, id string, chatID int64, messageID int) error
	DeleteActivity(ctx context.Context, id string) error
	ListUpcoming(ctx context.Context, from time.Time) ([]Activity, error)

	// DueReminders returns activities scheduled within [from, to) whose
	// reminder has not been sent.
	DueReminders(ctx context.Context, from, to time.Time) ([]Activity, error)

	// MarkReminderSent flips the reminder flag. It reports false when the
	// flag was already set (another sweep won the race).
	MarkReminderSent(ctx context.Context, id string) (bool, error)

	// Participants.
	//
	// AddParticipant checks capacity and inserts in one transaction. It
	// returns ErrFull at capacity, ErrNotFound for a missing activity,
	// and added=false for a duplicate join (not an error).
	AddParticipant(ctx context.Context, activityID string, memberID int64, capacity int) (added bool, err error)
	RemoveParticipant(ctx context.Context, activityID string, memberID int64) (removed bool, err error)
	Participants(ctx context.Context, activityID string) ([]Member, error)

	Close() error
}
