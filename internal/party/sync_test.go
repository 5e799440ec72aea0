package party_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"partybot/internal/party"
	"partybot/internal/storage"
	"partybot/pkg/logx"
)

func TestSyncSkipsActivityWithoutMessage(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	fm := &fakeMessenger{}
	sync := party.NewSynchronizer(st, fm, logx.Nop())

	org := claimed(t, st, "Ayla", 101)
	a := &storage.Activity{
		ID:          uuid.NewString(),
		Kind:        "raid",
		ScheduledAt: time.Now().Add(time.Hour).UTC(),
		OrganizerID: org.ID,
	}
	require.NoError(t, st.CreateActivity(ctx, a))

	// Never posted: there is nothing to edit.
	sync.Sync(ctx, a.ID)
	require.Equal(t, 0, fm.updateCount())
}

func TestSyncMissingActivityIsNoOp(t *testing.T) {
	st := newStore(t)
	fm := &fakeMessenger{}
	sync := party.NewSynchronizer(st, fm, logx.Nop())

	sync.Sync(context.Background(), uuid.NewString())
	require.Equal(t, 0, fm.updateCount())
}

func TestSyncRebuildsFullRoster(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	fm := &fakeMessenger{}
	sync := party.NewSynchronizer(st, fm, logx.Nop())

	org := claimed(t, st, "Ayla", 101)
	require.NoError(t, st.SetTimezone(ctx, org.ID, "Europe/Berlin"))
	other := claimed(t, st, "Brin", 102)

	// 16:00 UTC on a July date is 18:00 in Berlin.
	a := &storage.Activity{
		ID:          uuid.NewString(),
		Kind:        "dungeon",
		Detail:      "Molten Core",
		ScheduledAt: time.Date(2025, 7, 15, 16, 0, 0, 0, time.UTC),
		OrganizerID: org.ID,
		Notes:       "bring potions",
		ChatID:      -100500,
		MessageID:   77,
	}
	require.NoError(t, st.CreateActivity(ctx, a))
	for _, m := range []*storage.Member{org, other} {
		_, err := st.AddParticipant(ctx, a.ID, m.ID, 4)
		require.NoError(t, err)
	}

	sync.Sync(ctx, a.ID)

	require.Equal(t, 1, fm.updateCount())
	up := fm.updates[0]
	require.Equal(t, a.ChatID, up.ChatID)
	require.Equal(t, a.MessageID, up.MessageID)

	text := up.Payload.Text
	require.Contains(t, text, "Dungeon Run — Molten Core")
	require.Contains(t, text, "18:00 (Europe/Berlin)")
	require.Contains(t, text, "👑 Ayla")
	require.Contains(t, text, "📝 bring potions")
	require.Contains(t, text, "Roster 2/4:")
	require.Contains(t, text, "1. Ayla")
	require.Contains(t, text, "2. Brin")
	require.Contains(t, text, "3. — open slot")
	require.Contains(t, text, "4. — open slot")

	buttonData(t, party.Prompt{Buttons: up.Payload.Buttons}, "Join")
	buttonData(t, party.Prompt{Buttons: up.Payload.Buttons}, "Leave")
	buttonData(t, party.Prompt{Buttons: up.Payload.Buttons}, "Cancel party")
}

func TestSyncTreatsGoneMessageAsSynced(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	fm := &fakeMessenger{gone: true}
	sync := party.NewSynchronizer(st, fm, logx.Nop())

	org := claimed(t, st, "Ayla", 101)
	a := seedActivity(t, st, "raid", org, time.Now().Add(time.Hour))
	_, err := st.AddParticipant(ctx, a.ID, org.ID, 6)
	require.NoError(t, err)

	// Deleted externally: swallowed, and the activity record survives.
	sync.Sync(ctx, a.ID)
	_, err = st.Activity(ctx, a.ID)
	require.NoError(t, err)
}

func TestRetractGoneMessageCountsAsRetracted(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	fm := &fakeMessenger{gone: true}
	sync := party.NewSynchronizer(st, fm, logx.Nop())

	org := claimed(t, st, "Ayla", 101)
	a := seedActivity(t, st, "raid", org, time.Now().Add(time.Hour))

	got, err := st.Activity(ctx, a.ID)
	require.NoError(t, err)
	sync.Retract(ctx, got)
	require.Empty(t, fm.retracts)
}
