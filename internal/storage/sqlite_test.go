package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"partybot/internal/storage"
	"partybot/pkg/logx"
)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createActivity(t *testing.T, st storage.Store, organizerID int64) *storage.Activity {
	t.Helper()
	a := &storage.Activity{
		ID:          uuid.NewString(),
		Kind:        "dungeon",
		ScheduledAt: time.Now().Add(time.Hour).UTC(),
		OrganizerID: organizerID,
	}
	require.NoError(t, st.CreateActivity(context.Background(), a))
	return a
}

func TestClaimMember(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)
	require.NotNil(t, m.ClaimedBy)
	require.EqualValues(t, 101, *m.ClaimedBy)

	// Re-claiming your own member is a no-op.
	again, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)
	require.Equal(t, m.ID, again.ID)

	// Someone else's claim does not transfer, the name collates
	// case-insensitively.
	_, err = st.ClaimMember(ctx, "ayla", 202)
	require.ErrorIs(t, err, storage.ErrClaimed)

	got, err := st.MemberByID(ctx, m.ID)
	require.NoError(t, err)
	require.EqualValues(t, 101, *got.ClaimedBy)
}

func TestClaimMemberRejectsEmptyName(t *testing.T) {
	st := newStore(t)
	_, err := st.ClaimMember(context.Background(), "   ", 101)
	require.Error(t, err)
}

func TestSetStaminaPullsNotifiedLevelDown(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)

	require.NoError(t, st.RaiseNotifiedLevel(ctx, m.ID, 40))
	require.NoError(t, st.SetStamina(ctx, m.ID, 5, time.Now()))

	got, err := st.MemberByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Stamina)
	require.Equal(t, 5, got.NotifiedLevel)

	// Raising the baseline above the level leaves the level alone.
	require.NoError(t, st.RaiseNotifiedLevel(ctx, m.ID, 40))
	require.NoError(t, st.SetStamina(ctx, m.ID, 50, time.Now()))
	got, err = st.MemberByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 40, got.NotifiedLevel)
}

func TestRaiseNotifiedLevelIsMonotonic(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)

	require.NoError(t, st.RaiseNotifiedLevel(ctx, m.ID, 40))
	require.NoError(t, st.RaiseNotifiedLevel(ctx, m.ID, 20))

	got, err := st.MemberByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 40, got.NotifiedLevel)

	require.NoError(t, st.RaiseNotifiedLevel(ctx, m.ID, 60))
	got, err = st.MemberByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 60, got.NotifiedLevel)
}

func TestTrackedMembers(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	a, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)
	b, err := st.ClaimMember(ctx, "Brin", 102)
	require.NoError(t, err)
	require.NoError(t, st.RaiseNotifiedLevel(ctx, b.ID, 60))

	// Only claimed members below the cap are tracked.
	got, err := st.TrackedMembers(ctx, 60)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, a.ID, got[0].ID)
}

func TestSetTimezoneUnknownMember(t *testing.T) {
	st := newStore(t)
	err := st.SetTimezone(context.Background(), 12345, "Europe/Berlin")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkReminderSentFlipsOnce(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)
	a := createActivity(t, st, m.ID)

	flipped, err := st.MarkReminderSent(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, flipped)

	flipped, err = st.MarkReminderSent(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, flipped)
}

func TestDueRemindersWindow(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)

	now := time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)
	mk := func(at time.Time) *storage.Activity {
		a := &storage.Activity{ID: uuid.NewString(), Kind: "raid", ScheduledAt: at, OrganizerID: m.ID}
		require.NoError(t, st.CreateActivity(ctx, a))
		return a
	}
	in := mk(now.Add(2 * time.Minute))
	mk(now.Add(-time.Minute))     // already started
	mk(now.Add(10 * time.Minute)) // beyond the window
	edge := mk(now.Add(5 * time.Minute))
	_ = edge // the upper bound is exclusive

	due, err := st.DueReminders(ctx, now, now.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, in.ID, due[0].ID)
}

func TestAddParticipantEnforcesCapacity(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)
	a := createActivity(t, st, m.ID)

	var members []*storage.Member
	for _, name := range []string{"Ayla", "Brin", "Cato", "Dree", "Eryn"} {
		mm, err := st.ClaimMember(ctx, name, 101)
		require.NoError(t, err)
		members = append(members, mm)
	}

	for i := 0; i < 4; i++ {
		added, err := st.AddParticipant(ctx, a.ID, members[i].ID, 4)
		require.NoError(t, err)
		require.True(t, added)
	}
	_, err = st.AddParticipant(ctx, a.ID, members[4].ID, 4)
	require.ErrorIs(t, err, storage.ErrFull)

	// Duplicate join is a no-op even on a full roster.
	added, err := st.AddParticipant(ctx, a.ID, members[0].ID, 4)
	require.NoError(t, err)
	require.False(t, added)

	roster, err := st.Participants(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, roster, 4)
}

func TestAddParticipantUnknownActivity(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)

	_, err = st.AddParticipant(ctx, uuid.NewString(), m.ID, 4)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemoveParticipantReportsPresence(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)
	a := createActivity(t, st, m.ID)

	_, err = st.AddParticipant(ctx, a.ID, m.ID, 4)
	require.NoError(t, err)

	removed, err := st.RemoveParticipant(ctx, a.ID, m.ID)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = st.RemoveParticipant(ctx, a.ID, m.ID)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestDeleteActivityCascades(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	m, err := st.ClaimMember(ctx, "Ayla", 101)
	require.NoError(t, err)
	a := createActivity(t, st, m.ID)
	_, err = st.AddParticipant(ctx, a.ID, m.ID, 4)
	require.NoError(t, err)

	require.NoError(t, st.DeleteActivity(ctx, a.ID))

	_, err = st.Activity(ctx, a.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	roster, err := st.Participants(ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, roster)
}
