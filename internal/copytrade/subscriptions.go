package copytrade

import (
	"context"
	"fmt"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// WatchMirror is the live monitor surface subscription mutations must
// reach. ReloadTargets recomputes the tracked set as the union of all
// active subscription targets.
type WatchMirror interface {
	ReloadTargets(ctx context.Context) error
}

// Subscriptions applies subscription lifecycle mutations: every write
// goes to storage first, then the live watch set is remirrored so the
// monitor never streams a wallet nobody follows, and never misses one
// somebody does. A failed remirror surfaces to the caller; the next
// reconcile heals it either way.
type Subscriptions struct {
	store  storage.CopyTradeStore
	mirror WatchMirror
}

// NewSubscriptions creates the lifecycle service. mirror may be nil
// when no live monitor runs in this process.
func NewSubscriptions(store storage.CopyTradeStore, mirror WatchMirror) *Subscriptions {
	return &Subscriptions{store: store, mirror: mirror}
}

// Create validates and persists a new subscription, then mirrors the
// watch set when the subscription starts out active.
func (s *Subscriptions) Create(ctx context.Context, ct *domain.CopyTrade) error {
	if err := s.store.Create(ctx, ct); err != nil {
		return err
	}
	if !ct.Active {
		return nil
	}
	return s.remirror(ctx)
}

// Update persists edited settings. The target wallet or active flag
// may have changed, so the watch set is always remirrored.
func (s *Subscriptions) Update(ctx context.Context, ct *domain.CopyTrade) error {
	if err := s.store.Update(ctx, ct); err != nil {
		return err
	}
	return s.remirror(ctx)
}

// SetActive toggles a subscription and remirrors. Other followers of
// the same target keep it watched, so removal is union-based.
func (s *Subscriptions) SetActive(ctx context.Context, id int64, active bool) error {
	if _, err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	return s.remirror(ctx)
}

// Delete removes a subscription and remirrors.
func (s *Subscriptions) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.remirror(ctx)
}

// GetByID retrieves a subscription.
func (s *Subscriptions) GetByID(ctx context.Context, id int64) (*domain.CopyTrade, error) {
	return s.store.GetByID(ctx, id)
}

// ListByOwner retrieves all subscriptions of a follower.
func (s *Subscriptions) ListByOwner(ctx context.Context, owner string) ([]*domain.CopyTrade, error) {
	return s.store.ListByOwner(ctx, owner)
}

func (s *Subscriptions) remirror(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	if err := s.mirror.ReloadTargets(ctx); err != nil {
		return fmt.Errorf("mirror watch set: %w", err)
	}
	return nil
}
