package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/accountsec/store"
)

// InvitationStore holds invitations keyed by ID with a token-hash index.
// Nested locks are taken token hash, then ID.
type InvitationStore struct {
	byID   *shards[store.Invitation]
	byHash *shards[string]
}

var _ store.InvitationStore = (*InvitationStore)(nil)

func NewInvitationStore() *InvitationStore {
	return &InvitationStore{
		byID:   newShards[store.Invitation](),
		byHash: newShards[string](),
	}
}

func cloneInvitation(inv store.Invitation) store.Invitation {
	inv.SentAt = cloneTime(inv.SentAt)
	inv.AcceptedAt = cloneTime(inv.AcceptedAt)
	return inv
}

func (s *InvitationStore) Create(_ context.Context, inv store.Invitation) error {
	var err error
	s.byHash.with(tokenKey(inv.TokenHash), func(cur string, exists bool) (string, bool) {
		if exists {
			err = store.ErrDuplicate
			return cur, true
		}
		s.byID.with(inv.ID, func(prev store.Invitation, taken bool) (store.Invitation, bool) {
			if taken {
				err = store.ErrDuplicate
				return prev, true
			}
			return cloneInvitation(inv), true
		})
		if err != nil {
			return cur, false
		}
		return inv.ID, true
	})
	return err
}

func (s *InvitationStore) Get(_ context.Context, id string) (store.Invitation, bool, error) {
	var (
		out   store.Invitation
		found bool
	)
	s.byID.with(id, func(cur store.Invitation, ok bool) (store.Invitation, bool) {
		out, found = cloneInvitation(cur), ok
		return cur, ok
	})
	return out, found, nil
}

func applyTransition(inv store.Invitation, next store.InvitationStatus, now time.Time) (store.Invitation, error) {
	if !inv.Status.CanTransitionTo(next) {
		return inv, store.ErrInvalidTransition
	}
	at := now
	switch next {
	case store.InvitationSent:
		inv.SentAt = &at
	case store.InvitationAccepted:
		inv.AcceptedAt = &at
	}
	inv.Status = next
	return inv, nil
}

// update runs fn on the invitation under its shard lock; fn's error leaves
// the record unchanged.
func (s *InvitationStore) update(id string, fn func(store.Invitation) (store.Invitation, error)) (store.Invitation, error) {
	var (
		out store.Invitation
		err error
	)
	s.byID.with(id, func(cur store.Invitation, ok bool) (store.Invitation, bool) {
		if !ok {
			err = store.ErrNotFound
			return cur, false
		}
		next, ferr := fn(cur)
		if ferr != nil {
			out, err = cloneInvitation(cur), ferr
			return cur, true
		}
		out = cloneInvitation(next)
		return next, true
	})
	return out, err
}

func (s *InvitationStore) Transition(_ context.Context, id string, next store.InvitationStatus, now time.Time) (store.Invitation, error) {
	return s.update(id, func(inv store.Invitation) (store.Invitation, error) {
		return applyTransition(inv, next, now)
	})
}

func (s *InvitationStore) Resend(_ context.Context, id string, now time.Time) (store.Invitation, error) {
	return s.update(id, func(inv store.Invitation) (store.Invitation, error) {
		if inv.Status.Terminal() {
			return inv, store.ErrInvalidTransition
		}
		at := now
		inv.SentAt = &at
		inv.ResendCount++
		return inv, nil
	})
}

func (s *InvitationStore) Accept(_ context.Context, hash store.TokenHash, now time.Time) (store.Invitation, store.RedeemOutcome, error) {
	var (
		id    string
		found bool
	)
	s.byHash.with(tokenKey(hash), func(cur string, ok bool) (string, bool) {
		id, found = cur, ok
		return cur, ok
	})
	if !found {
		return store.Invitation{}, store.RedeemNotFound, nil
	}

	outcome := store.RedeemNotFound
	inv, err := s.update(id, func(inv store.Invitation) (store.Invitation, error) {
		switch {
		case inv.Status == store.InvitationAccepted:
			outcome = store.RedeemAlreadyUsed
			return inv, store.ErrInvalidTransition
		case inv.Status == store.InvitationExpired, !now.Before(inv.ExpiresAt):
			outcome = store.RedeemExpired
			return inv, store.ErrInvalidTransition
		}
		next, err := applyTransition(inv, store.InvitationAccepted, now)
		if err != nil {
			outcome = store.RedeemAlreadyUsed
			return inv, err
		}
		outcome = store.RedeemOK
		return next, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Invitation{}, store.RedeemNotFound, nil
	}
	return inv, outcome, nil
}

// FindExpired lists non-terminal invitations with ExpiresAt <= now, the
// instant from which Accept reports them expired.
func (s *InvitationStore) FindExpired(_ context.Context, now time.Time) ([]store.Invitation, error) {
	var out []store.Invitation
	s.byID.each(func(_ string, inv store.Invitation) (store.Invitation, bool) {
		if !inv.Status.Terminal() && !now.Before(inv.ExpiresAt) {
			out = append(out, cloneInvitation(inv))
		}
		return inv, true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}
