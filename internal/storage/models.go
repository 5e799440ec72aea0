package storage

import "time"

// Member is one game character tracked by the bot. A Telegram account may
// claim several members; ClaimedBy is nil until someone does.
type Member struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`

	// ClaimedBy is the Telegram user id bound to this member. It
	// authorizes organizer actions and is the DM target for
	// notifications.
	ClaimedBy *int64 `db:"claimed_by"`

	// Timezone is the member's IANA zone name, unresolved until the
	// first scheduling wizard run asks for it.
	Timezone *string `db:"timezone"`

	// Stamina baseline and the instant it was last written. The current
	// level is always derived, never stored.
	Stamina   int        `db:"stamina"`
	StaminaAt *time.Time `db:"stamina_at"`

	// NotifiedLevel is the highest stamina threshold already announced.
	// It only moves up, except for an explicit baseline adjustment.
	NotifiedLevel int `db:"notified_level"`
}

// Activity is one scheduled party.
type Activity struct {
	ID          string    `db:"id"`
	Kind        string    `db:"kind"`
	Detail      string    `db:"detail"`
	ScheduledAt time.Time `db:"scheduled_at"` // UTC
	OrganizerID int64     `db:"organizer_id"`
	Notes       string    `db:"notes"`

	// ChatID/MessageID locate the roster message in Telegram. Both are
	// zero until the first post succeeds.
	ChatID    int64 `db:"chat_id"`
	MessageID int   `db:"message_id"`

	ReminderSent bool      `db:"reminder_sent"`
	CreatedAt    time.Time `db:"created_at"`
}

// HasMessage reports whether a roster message has been posted for this
// activity yet.
func (a *Activity) HasMessage() bool { return a.ChatID != 0 && a.MessageID != 0 }

// Participant is one occupied roster slot.
type Participant struct {
	ActivityID string    `db:"activity_id"`
	MemberID   int64     `db:"member_id"`
	JoinedAt   time.Time `db:"joined_at"`
}
