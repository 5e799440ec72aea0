package party

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"partybot/internal/storage"
	"partybot/pkg/logx"
)

// Synchronizer keeps one roster message per activity in step with the
// datastore. It always rebuilds the full payload from current state, so a
// late sync after racing mutations still converges on a correct message.
type Synchronizer struct {
	store storage.Store
	msgr  Messenger
	log   logx.Logger
}

func NewSynchronizer(store storage.Store, msgr Messenger, log logx.Logger) *Synchronizer {
	return &Synchronizer{store: store, msgr: msgr, log: log}
}

// Sync refreshes the roster message for one activity. It is best-effort:
// failures are logged and swallowed, never propagated to the mutation
// that triggered the sync. Activities without a posted message are left
// alone; the creation path owns the first post.
func (s *Synchronizer) Sync(ctx context.Context, activityID string) {
	a, err := s.store.Activity(ctx, activityID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("sync: loading activity failed", logx.String("activity", activityID), logx.Err(err))
		}
		return
	}
	if !a.HasMessage() {
		return
	}

	p, err := s.Render(ctx, a)
	if err != nil {
		s.log.Warn("sync: render failed", logx.String("activity", activityID), logx.Err(err))
		return
	}

	err = s.msgr.Update(ctx, a.ChatID, a.MessageID, p)
	switch {
	case err == nil:
	case errors.Is(err, ErrMessageGone):
		// Removed externally; nothing left to keep in sync.
		s.log.Debug("sync: roster message gone", logx.String("activity", activityID))
	default:
		s.log.Warn("sync: update failed", logx.String("activity", activityID), logx.Err(err))
	}
}

// Retract removes the roster message, best-effort. A message that is
// already gone counts as retracted.
func (s *Synchronizer) Retract(ctx context.Context, a *storage.Activity) {
	if !a.HasMessage() {
		return
	}
	if err := s.msgr.Retract(ctx, a.ChatID, a.MessageID); err != nil && !errors.Is(err, ErrMessageGone) {
		s.log.Warn("retracting roster message failed", logx.String("activity", a.ID), logx.Err(err))
	}
}

// Render builds the full roster payload for an activity from current
// state: header, fixed-length slot list and the interactive buttons.
func (s *Synchronizer) Render(ctx context.Context, a *storage.Activity) (Payload, error) {
	kind := KindByID(a.Kind)
	if kind == nil {
		return Payload{}, fmt.Errorf("unknown activity kind %q", a.Kind)
	}
	members, err := s.store.Participants(ctx, a.ID)
	if err != nil {
		return Payload{}, err
	}
	organizer, err := s.store.MemberByID(ctx, a.OrganizerID)
	if err != nil {
		return Payload{}, err
	}

	var b strings.Builder
	title := kind.Label
	if a.Detail != "" {
		title += " — " + a.Detail
	}
	fmt.Fprintf(&b, "🗓 %s\n", title)
	fmt.Fprintf(&b, "📅 %s\n", formatSchedule(a, organizer))
	fmt.Fprintf(&b, "👑 %s\n", organizer.Name)
	if a.Notes != "" {
		fmt.Fprintf(&b, "📝 %s\n", a.Notes)
	}
	fmt.Fprintf(&b, "\nRoster %d/%d:\n", len(members), kind.Capacity)
	for i := 0; i < kind.Capacity; i++ {
		if i < len(members) {
			fmt.Fprintf(&b, "%d. %s\n", i+1, members[i].Name)
		} else {
			fmt.Fprintf(&b, "%d. — open slot\n", i+1)
		}
	}

	p := Payload{Text: b.String()}
	p.Buttons = [][]Button{
		{
			{Label: "Join", Data: packToken(NSRoster, ActionJoin, a.ID)},
			{Label: "Leave", Data: packToken(NSRoster, ActionLeave, a.ID)},
		},
		{
			{Label: "Cancel party", Data: packToken(NSRoster, ActionDelete, a.ID)},
		},
	}
	return p, nil
}

// formatSchedule shows the scheduled instant in the organizer's zone when
// one is resolved, falling back to UTC.
func formatSchedule(a *storage.Activity, organizer *storage.Member) string {
	at := a.ScheduledAt.UTC()
	zone := "UTC"
	if organizer.Timezone != nil {
		if loc, err := time.LoadLocation(*organizer.Timezone); err == nil {
			at = a.ScheduledAt.In(loc)
			zone = *organizer.Timezone
		}
	}
	return at.Format("Mon, 02 Jan 2006 15:04") + " (" + zone + ")"
}
