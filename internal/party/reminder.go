package party

import (
	"context"
	"fmt"
	"time"

	"partybot/internal/storage"
	"partybot/pkg/logx"
)

// Reminder sends each activity's one pre-event notification. Semantics
// are at-most-once: the flag flips whether or not the DMs land, and an
// activity whose window slipped by unsent is never caught up on.
type Reminder struct {
	store    storage.Store
	notifier Notifier
	lead     time.Duration
	log      logx.Logger
}

func NewReminder(store storage.Store, notifier Notifier, lead time.Duration, log logx.Logger) *Reminder {
	return &Reminder{store: store, notifier: notifier, lead: lead, log: log}
}

// Sweep processes all activities whose scheduled time falls within the
// lead window. Failures on one activity do not abort the rest.
func (r *Reminder) Sweep(ctx context.Context, now time.Time) {
	due, err := r.store.DueReminders(ctx, now, now.Add(r.lead))
	if err != nil {
		r.log.Error("listing due reminders failed", logx.Err(err))
		return
	}

	for i := range due {
		if err := r.remind(ctx, &due[i], now); err != nil {
			r.log.Warn("reminder failed", logx.String("activity", due[i].ID), logx.Err(err))
		}
	}
}

func (r *Reminder) remind(ctx context.Context, a *storage.Activity, now time.Time) error {
	// Flip the flag first; losing this race to another sweep means the
	// reminder is already being handled.
	flipped, err := r.store.MarkReminderSent(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("marking reminder sent: %w", err)
	}
	if !flipped {
		return nil
	}

	kind := KindByID(a.Kind)
	label := a.Kind
	if kind != nil {
		label = kind.Label
	}
	in := a.ScheduledAt.Sub(now).Round(time.Minute)
	text := fmt.Sprintf("⏰ %s starts in %s.", label, in)
	if a.Detail != "" {
		text = fmt.Sprintf("⏰ %s (%s) starts in %s.", label, a.Detail, in)
	}

	members, err := r.store.Participants(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("listing participants: %w", err)
	}
	for _, m := range members {
		if m.ClaimedBy == nil {
			continue
		}
		// Best-effort, no retry: the flag is already set.
		if err := r.notifier.Dispatch(ctx, *m.ClaimedBy, text); err != nil {
			r.log.Warn("reminder dispatch failed",
				logx.String("activity", a.ID), logx.Int64("member_id", m.ID), logx.Err(err))
		}
	}
	r.log.Info("reminder sent", logx.String("activity", a.ID), logx.Int("participants", len(members)))
	return nil
}
