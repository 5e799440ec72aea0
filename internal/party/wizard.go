package party

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"partybot/internal/storage"
	"partybot/pkg/logx"
)

// Prompt is one wizard round trip: text, optional buttons, and whether
// the next input arrives as free text instead of a button press. When
// AwaitText is set, Token must be handed back with that text.
type Prompt struct {
	Text      string
	Buttons   [][]Button
	AwaitText bool
	Token     string
}

// Wizard drives the multi-step party creation flow. It holds no session
// state: everything a step needs is either in the datastore (timezone)
// or inside the step token itself, so any replica can resume any step.
type Wizard struct {
	store  storage.Store
	sync   *Synchronizer
	msgr   Messenger
	chatID int64
	log    logx.Logger
}

func NewWizard(store storage.Store, sync *Synchronizer, msgr Messenger, partyChatID int64, log logx.Logger) *Wizard {
	return &Wizard{store: store, sync: sync, msgr: msgr, chatID: partyChatID, log: log}
}

// Begin starts the flow for a Telegram user. With exactly one claimed
// member the organizer is auto-selected; with several the user picks.
func (w *Wizard) Begin(ctx context.Context, userID int64) (Prompt, error) {
	members, err := w.store.MembersClaimedBy(ctx, userID)
	if err != nil {
		return Prompt{}, fmt.Errorf("listing claimed members: %w", err)
	}
	switch len(members) {
	case 0:
		return Prompt{}, ErrNoLinkedAccount
	case 1:
		return w.afterOrganizer(ctx, &members[0])
	}

	var rows [][]Button
	for _, m := range members {
		rows = append(rows, []Button{{
			Label: m.Name,
			Data:  packToken(NSWizard, stepOrganizer, strconv.FormatInt(m.ID, 10)),
		}})
	}
	return Prompt{Text: "Who is organizing?", Buttons: rows}, nil
}

// Resume handles a wizard button press. The token alone identifies the
// step; userID guards against someone else's button presses advancing a
// foreign flow.
func (w *Wizard) Resume(ctx context.Context, userID int64, data string) (Prompt, error) {
	parts := splitToken(NSWizard, data)
	if len(parts) < 2 {
		return Prompt{}, ErrBadToken
	}

	switch parts[0] {
	case stepOrganizer:
		m, err := w.organizerFromToken(ctx, userID, parts[1])
		if err != nil {
			return Prompt{}, err
		}
		return w.afterOrganizer(ctx, m)

	case stepTimezone:
		if len(parts) != 3 {
			return Prompt{}, ErrBadToken
		}
		m, err := w.organizerFromToken(ctx, userID, parts[1])
		if err != nil {
			return Prompt{}, err
		}
		idx, err := strconv.Atoi(parts[2])
		if err != nil || idx < 0 || idx >= len(Zones) {
			return Prompt{}, ErrBadToken
		}
		// Persisted immediately: the timezone stands even if a later
		// step never happens.
		if err := w.store.SetTimezone(ctx, m.ID, Zones[idx]); err != nil {
			return Prompt{}, fmt.Errorf("persisting timezone: %w", err)
		}
		w.log.Info("timezone resolved", logx.Int64("member_id", m.ID), logx.String("zone", Zones[idx]))
		return w.kindPrompt(m), nil

	case stepKind:
		if len(parts) != 3 {
			return Prompt{}, ErrBadToken
		}
		m, err := w.organizerFromToken(ctx, userID, parts[1])
		if err != nil {
			return Prompt{}, err
		}
		kind := KindByID(parts[2])
		if kind == nil {
			return Prompt{}, ErrBadToken
		}
		return w.schedulePrompt(m, kind), nil
	}
	return Prompt{}, ErrBadToken
}

// Submit completes the flow from the schedule-form reply: parses the
// local date-time in the organizer's zone, creates the activity with the
// organizer pre-enrolled, posts the roster message and stores its handle.
func (w *Wizard) Submit(ctx context.Context, userID int64, token, text string) (*storage.Activity, error) {
	parts := splitToken(NSWizard, token)
	if len(parts) != 3 || parts[0] != stepForm {
		return nil, ErrBadToken
	}
	m, err := w.organizerFromToken(ctx, userID, parts[1])
	if err != nil {
		return nil, err
	}
	kind := KindByID(parts[2])
	if kind == nil {
		return nil, ErrBadToken
	}
	if m.Timezone == nil {
		return nil, fmt.Errorf("organizer %s has no resolved timezone", m.Name)
	}
	loc, err := time.LoadLocation(*m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", *m.Timezone, err)
	}

	when, detail, notes, err := parseScheduleForm(text, loc)
	if err != nil {
		return nil, err
	}

	a := &storage.Activity{
		ID:          uuid.NewString(),
		Kind:        kind.ID,
		Detail:      detail,
		ScheduledAt: when.UTC(),
		OrganizerID: m.ID,
		Notes:       notes,
	}
	if err := w.store.CreateActivity(ctx, a); err != nil {
		return nil, err
	}
	if _, err := w.store.AddParticipant(ctx, a.ID, m.ID, kind.Capacity); err != nil {
		return nil, fmt.Errorf("enrolling organizer: %w", err)
	}

	w.post(ctx, a)
	w.log.Info("activity created",
		logx.String("activity", a.ID), logx.String("kind", kind.ID),
		logx.Int64("organizer_id", m.ID), logx.Time("scheduled_at", a.ScheduledAt))
	return a, nil
}

// post publishes the initial roster message and persists its handle.
// Post failure just leaves the activity without a representation; a
// handle-persist failure after a successful post leaves an orphaned
// message, which gets its own log signature so operators can spot it.
func (w *Wizard) post(ctx context.Context, a *storage.Activity) {
	p, err := w.sync.Render(ctx, a)
	if err != nil {
		w.log.Warn("rendering initial roster failed", logx.String("activity", a.ID), logx.Err(err))
		return
	}
	msgID, err := w.msgr.Post(ctx, w.chatID, p)
	if err != nil {
		w.log.Warn("posting roster message failed", logx.String("activity", a.ID), logx.Err(err))
		return
	}
	if err := w.store.SetActivityMessage(ctx, a.ID, w.chatID, msgID); err != nil {
		w.log.Error("orphaned roster message: posted but handle not persisted",
			logx.String("activity", a.ID), logx.Int64("chat_id", w.chatID),
			logx.Int("message_id", msgID), logx.Err(err))
		return
	}
	a.ChatID = w.chatID
	a.MessageID = msgID
}

func (w *Wizard) organizerFromToken(ctx context.Context, userID int64, idPart string) (*storage.Member, error) {
	id, ok := parseID(idPart)
	if !ok {
		return nil, ErrBadToken
	}
	m, err := w.store.MemberByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBadToken
		}
		return nil, fmt.Errorf("loading organizer: %w", err)
	}
	if m.ClaimedBy == nil || *m.ClaimedBy != userID {
		return nil, ErrUnauthorized
	}
	return m, nil
}

// afterOrganizer is the timezone checkpoint: ask for a zone when the
// member has none, otherwise go straight to the kind selection.
func (w *Wizard) afterOrganizer(ctx context.Context, m *storage.Member) (Prompt, error) {
	if m.Timezone == nil {
		var rows [][]Button
		for i := 0; i < len(Zones); i += 2 {
			row := []Button{zoneButton(m.ID, i)}
			if i+1 < len(Zones) {
				row = append(row, zoneButton(m.ID, i+1))
			}
			rows = append(rows, row)
		}
		return Prompt{
			Text:    fmt.Sprintf("No timezone on record for %s yet. Pick one:", m.Name),
			Buttons: rows,
		}, nil
	}
	return w.kindPrompt(m), nil
}

func zoneButton(memberID int64, idx int) Button {
	return Button{
		Label: Zones[idx],
		Data: packToken(NSWizard, stepTimezone,
			strconv.FormatInt(memberID, 10), strconv.Itoa(idx)),
	}
}

func (w *Wizard) kindPrompt(m *storage.Member) Prompt {
	var rows [][]Button
	for _, k := range Kinds {
		rows = append(rows, []Button{{
			Label: fmt.Sprintf("%s (%d)", k.Label, k.Capacity),
			Data:  packToken(NSWizard, stepKind, strconv.FormatInt(m.ID, 10), k.ID),
		}})
	}
	return Prompt{Text: "What are we running?", Buttons: rows}
}

func (w *Wizard) schedulePrompt(m *storage.Member, kind *Kind) Prompt {
	zone := "UTC"
	if m.Timezone != nil {
		zone = *m.Timezone
	}
	return Prompt{
		Text: fmt.Sprintf(
			"%s it is. Reply with the schedule:\n\nDD.MM.YYYY HH:MM [; detail] [; notes]\n\nTimes are read in %s.",
			kind.Label, zone),
		AwaitText: true,
		Token:     packToken(NSWizard, stepForm, strconv.FormatInt(m.ID, 10), kind.ID),
	}
}

// parseScheduleForm decomposes "DD.MM.YYYY HH:MM [; detail [; notes]]".
// The local time is interpreted in loc at the target instant, so the
// offset is the one in force on that date (daylight saving included).
func parseScheduleForm(text string, loc *time.Location) (when time.Time, detail, notes string, err error) {
	fields := strings.SplitN(text, ";", 3)
	when, perr := time.ParseInLocation(ScheduleLayout, strings.TrimSpace(fields[0]), loc)
	if perr != nil {
		return time.Time{}, "", "", ErrInvalidDate
	}
	if len(fields) > 1 {
		detail = strings.TrimSpace(fields[1])
	}
	if len(fields) > 2 {
		notes = strings.TrimSpace(fields[2])
	}
	return when, detail, notes, nil
}
