package party

import (
	"strconv"
	"strings"
)

// Callback tokens are colon-joined "<ns>:<action>:<args...>" strings, the
// same shape for every button the bot emits. They are the only state a
// wizard step carries between round trips, so each token encodes enough
// context (organizer id, chosen kind) for the next step to resume without
// any server-side session.
//
// Telegram limits callback data to 64 bytes; members are referenced by id
// and zones by catalog index to stay under it.
const (
	// NSWizard prefixes creation-wizard steps.
	NSWizard = "wz"
	// NSRoster prefixes join/leave/delete buttons on roster messages.
	NSRoster = "pt"
)

// Wizard step actions.
const (
	stepOrganizer = "org"
	stepTimezone  = "tz"
	stepKind      = "kind"
	stepForm      = "form"
)

// Roster actions.
const (
	ActionJoin   = "join"
	ActionLeave  = "leave"
	ActionDelete = "del"
)

func packToken(ns string, parts ...string) string {
	return ns + ":" + strings.Join(parts, ":")
}

// splitToken strips the expected namespace and returns the remaining
// segments, or nil when the token does not belong to that namespace.
func splitToken(ns, data string) []string {
	rest, ok := strings.CutPrefix(data, ns+":")
	if !ok {
		return nil
	}
	return strings.Split(rest, ":")
}

func parseID(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
