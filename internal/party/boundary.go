package party

import "context"

// Button is one interactive affordance attached to a message. Data is the
// opaque callback payload round-tripped by the chat platform.
type Button struct {
	Label string
	Data  string
}

// Payload is a fully rendered message: text plus button rows. The party
// package renders payloads; the transport layer turns them into platform
// messages.
type Payload struct {
	Text    string
	Buttons [][]Button
}

// Messenger posts and edits roster messages in the party chat.
//
// Update and Retract return ErrMessageGone when the message was already
// deleted externally; callers must treat that as already-synced.
type Messenger interface {
	Post(ctx context.Context, chatID int64, p Payload) (messageID int, err error)
	Update(ctx context.Context, chatID int64, messageID int, p Payload) error
	Retract(ctx context.Context, chatID int64, messageID int) error
}

// Notifier delivers direct messages to Telegram users, best-effort.
type Notifier interface {
	Available() bool
	Dispatch(ctx context.Context, userID int64, text string) error
}
