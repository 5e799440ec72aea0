package stamina

import (
	"context"
	"fmt"
	"time"

	"partybot/internal/storage"
	"partybot/pkg/logx"
)

// Notifier delivers direct messages to Telegram users. Available reports
// whether the underlying connection is up; an unavailable notifier makes
// the monitor skip the whole sweep rather than queue work.
type Notifier interface {
	Available() bool
	Dispatch(ctx context.Context, userID int64, text string) error
}

// Config holds the fixed regeneration parameters.
type Config struct {
	Period     time.Duration
	Cap        int
	Thresholds []int // ascending
}

// Monitor announces stamina threshold crossings at most once per
// accumulation cycle.
type Monitor struct {
	store    storage.Store
	notifier Notifier
	cfg      Config
	log      logx.Logger
}

func NewMonitor(store storage.Store, notifier Notifier, cfg Config, log logx.Logger) *Monitor {
	return &Monitor{store: store, notifier: notifier, cfg: cfg, log: log}
}

// Sweep evaluates every tracked member once. Per-member failures are
// logged and do not abort the rest of the sweep.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) {
	if !m.notifier.Available() {
		m.log.Debug("notifier unavailable; skipping stamina sweep")
		return
	}

	members, err := m.store.TrackedMembers(ctx, m.cfg.Cap)
	if err != nil {
		m.log.Error("listing tracked members failed", logx.Err(err))
		return
	}

	for i := range members {
		if err := m.sweepMember(ctx, &members[i], now); err != nil {
			m.log.Warn("stamina check failed",
				logx.Int64("member_id", members[i].ID), logx.Err(err))
		}
	}
}

func (m *Monitor) sweepMember(ctx context.Context, mem *storage.Member, now time.Time) error {
	if mem.ClaimedBy == nil {
		return nil
	}

	var updatedAt time.Time
	if mem.StaminaAt != nil {
		updatedAt = *mem.StaminaAt
	}
	level := Level(mem.Stamina, updatedAt, now, m.cfg.Period, m.cfg.Cap)

	// Walk thresholds in ascending order. A threshold is only recorded as
	// announced after its dispatch succeeded; a failed dispatch leaves it
	// pending for the next sweep.
	pending := mem.NotifiedLevel
	for _, t := range m.cfg.Thresholds {
		if t <= mem.NotifiedLevel || level < t {
			continue
		}
		if err := m.notifier.Dispatch(ctx, *mem.ClaimedBy, m.message(mem.Name, t)); err != nil {
			m.log.Warn("stamina notification failed; will retry next sweep",
				logx.Int64("member_id", mem.ID), logx.Int("threshold", t), logx.Err(err))
			break
		}
		pending = t
	}

	if pending > mem.NotifiedLevel {
		if err := m.store.RaiseNotifiedLevel(ctx, mem.ID, pending); err != nil {
			return fmt.Errorf("recording notified level: %w", err)
		}
	}
	return nil
}

func (m *Monitor) message(name string, threshold int) string {
	if threshold >= m.cfg.Cap {
		return fmt.Sprintf("⚡ %s is at full stamina (%d/%d) — regeneration is wasted from here.", name, m.cfg.Cap, m.cfg.Cap)
	}
	return fmt.Sprintf("⚡ %s reached %d stamina.", name, threshold)
}
