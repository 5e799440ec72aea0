package party

import "errors"

var (
	// ErrNotFound indicates the activity does not exist.
	ErrNotFound = errors.New("activity not found")

	// ErrFull indicates the roster is at capacity.
	ErrFull = errors.New("party is full")

	// ErrUnauthorized indicates the requester is neither the organizer
	// nor the holder of the admin secret.
	ErrUnauthorized = errors.New("not allowed")

	// ErrNoLinkedAccount indicates the Telegram user has not claimed any
	// member and therefore cannot organize.
	ErrNoLinkedAccount = errors.New("no linked member account")

	// ErrInvalidDate indicates the schedule form's date-time string did
	// not match the expected layout.
	ErrInvalidDate = errors.New("invalid date format")

	// ErrBadToken indicates a wizard round-trip token that cannot be
	// decoded (stale button, truncated callback data).
	ErrBadToken = errors.New("malformed wizard token")

	// ErrMessageGone is returned by a Messenger when the roster message
	// was already removed externally. Callers treat it as success.
	ErrMessageGone = errors.New("message gone")
)
