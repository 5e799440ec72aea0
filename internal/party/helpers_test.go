package party_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"partybot/internal/party"
	"partybot/internal/storage"
	"partybot/pkg/logx"
)

// fakeMessenger records roster traffic and can simulate platform
// failures.
type fakeMessenger struct {
	mu     sync.Mutex
	nextID int

	posts    []postedMsg
	updates  []postedMsg
	retracts []int

	failPost   bool
	failUpdate bool
	gone       bool // report ErrMessageGone on update/retract
}

type postedMsg struct {
	ChatID    int64
	MessageID int
	Payload   party.Payload
}

func (f *fakeMessenger) Post(_ context.Context, chatID int64, p party.Payload) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPost {
		return 0, errors.New("post failed")
	}
	f.nextID++
	f.posts = append(f.posts, postedMsg{ChatID: chatID, MessageID: f.nextID, Payload: p})
	return f.nextID, nil
}

func (f *fakeMessenger) Update(_ context.Context, chatID int64, messageID int, p party.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone {
		return party.ErrMessageGone
	}
	if f.failUpdate {
		return errors.New("update failed")
	}
	f.updates = append(f.updates, postedMsg{ChatID: chatID, MessageID: messageID, Payload: p})
	return nil
}

func (f *fakeMessenger) Retract(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone {
		return party.ErrMessageGone
	}
	f.retracts = append(f.retracts, messageID)
	return nil
}

func (f *fakeMessenger) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func claimed(t *testing.T, st storage.Store, name string, userID int64) *storage.Member {
	t.Helper()
	m, err := st.ClaimMember(context.Background(), name, userID)
	require.NoError(t, err)
	return m
}

const adminSecret = "hunter2"

func newService(t *testing.T, st storage.Store, fm *fakeMessenger) *party.Service {
	t.Helper()
	sync := party.NewSynchronizer(st, fm, logx.Nop())
	return party.NewService(st, sync, adminSecret, logx.Nop())
}

// seedActivity creates an activity record directly, bypassing the
// wizard, with a posted roster message handle.
func seedActivity(t *testing.T, st storage.Store, kind string, organizer *storage.Member, at time.Time) *storage.Activity {
	t.Helper()
	a := &storage.Activity{
		ID:          uuid.NewString(),
		Kind:        kind,
		ScheduledAt: at.UTC(),
		OrganizerID: organizer.ID,
		ChatID:      -100500,
		MessageID:   77,
	}
	require.NoError(t, st.CreateActivity(context.Background(), a))
	return a
}

// buttonData finds a prompt button by label.
func buttonData(t *testing.T, p party.Prompt, label string) string {
	t.Helper()
	for _, row := range p.Buttons {
		for _, b := range row {
			if b.Label == label {
				return b.Data
			}
		}
	}
	t.Fatalf("no button labeled %q in prompt %q", label, p.Text)
	return ""
}
