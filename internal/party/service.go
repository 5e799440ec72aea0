package party

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"partybot/internal/storage"
	"partybot/pkg/logx"
)

// Service is the membership controller: join/leave/kick/delete with
// capacity enforcement and a roster resync after every accepted mutation.
type Service struct {
	store       storage.Store
	sync        *Synchronizer
	log         logx.Logger
	adminSecret string
}

func NewService(store storage.Store, sync *Synchronizer, adminSecret string, log logx.Logger) *Service {
	return &Service{store: store, sync: sync, adminSecret: adminSecret, log: log}
}

// Join adds a member to an activity's roster. A duplicate join is a
// no-op. Returns ErrNotFound for a missing activity and ErrFull at
// capacity. The capacity check and the insert are one transaction in the
// store, so two racing joins can never both take the last slot.
func (s *Service) Join(ctx context.Context, activityID string, memberID int64) error {
	a, err := s.store.Activity(ctx, activityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("loading activity: %w", err)
	}
	kind := KindByID(a.Kind)
	if kind == nil {
		return fmt.Errorf("activity %s has unknown kind %q", a.ID, a.Kind)
	}

	added, err := s.store.AddParticipant(ctx, activityID, memberID, kind.Capacity)
	switch {
	case errors.Is(err, storage.ErrFull):
		return ErrFull
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("joining: %w", err)
	}

	if added {
		s.log.Info("member joined", logx.String("activity", activityID), logx.Int64("member_id", memberID))
	}
	s.sync.Sync(ctx, activityID)
	return nil
}

// Leave removes a member from the roster. Leaving an activity you are not
// part of is a no-op, not an error.
func (s *Service) Leave(ctx context.Context, activityID string, memberID int64) error {
	if _, err := s.store.Activity(ctx, activityID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("loading activity: %w", err)
	}

	removed, err := s.store.RemoveParticipant(ctx, activityID, memberID)
	if err != nil {
		return fmt.Errorf("leaving: %w", err)
	}
	if removed {
		s.log.Info("member left", logx.String("activity", activityID), logx.Int64("member_id", memberID))
	}
	s.sync.Sync(ctx, activityID)
	return nil
}

// Kick removes a member on behalf of an admin. The shared admin secret is
// the only accepted credential.
func (s *Service) Kick(ctx context.Context, activityID string, memberID int64, secret string) error {
	if !s.adminOK(secret) {
		return ErrUnauthorized
	}
	return s.Leave(ctx, activityID, memberID)
}

// Delete cancels an activity. Authorized for the Telegram account that
// claimed the organizer, or for the admin secret. The roster message is
// retracted best-effort before the record goes away; participants cascade.
func (s *Service) Delete(ctx context.Context, activityID string, requesterUser int64, secret string) error {
	a, err := s.store.Activity(ctx, activityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("loading activity: %w", err)
	}

	if !s.adminOK(secret) {
		organizer, err := s.store.MemberByID(ctx, a.OrganizerID)
		if err != nil {
			return fmt.Errorf("loading organizer: %w", err)
		}
		if organizer.ClaimedBy == nil || *organizer.ClaimedBy != requesterUser {
			return ErrUnauthorized
		}
	}

	s.sync.Retract(ctx, a)
	if err := s.store.DeleteActivity(ctx, activityID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting activity: %w", err)
	}
	s.log.Info("activity deleted", logx.String("activity", activityID), logx.Int64("requester", requesterUser))
	return nil
}

func (s *Service) adminOK(secret string) bool {
	if s.adminSecret == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.adminSecret)) == 1
}

// Overview is a read-only projection of one upcoming activity for list
// views. It carries no business logic.
type Overview struct {
	Activity     storage.Activity
	Kind         Kind
	Participants []string
}

// Upcoming lists activities scheduled from now on, with resolved rosters.
func (s *Service) Upcoming(ctx context.Context, now time.Time) ([]Overview, error) {
	acts, err := s.store.ListUpcoming(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]Overview, 0, len(acts))
	for _, a := range acts {
		kind := KindByID(a.Kind)
		if kind == nil {
			continue
		}
		members, err := s.store.Participants(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Name)
		}
		out = append(out, Overview{Activity: a, Kind: *kind, Participants: names})
	}
	return out, nil
}
