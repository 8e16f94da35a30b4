package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// CopyTradeStore is an in-memory implementation of storage.CopyTradeStore.
type CopyTradeStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.CopyTrade
}

// NewCopyTradeStore creates a new in-memory copy trade store.
func NewCopyTradeStore() *CopyTradeStore {
	return &CopyTradeStore{
		nextID: 1,
		data:   make(map[int64]*domain.CopyTrade),
	}
}

var _ storage.CopyTradeStore = (*CopyTradeStore)(nil)

// Create validates and inserts a subscription, filling in its generated ID.
func (s *CopyTradeStore) Create(_ context.Context, ct *domain.CopyTrade) error {
	if ct == nil {
		return storage.ErrInvalidInput
	}
	if err := ct.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.Owner == ct.Owner && existing.TargetWallet == ct.TargetWallet {
			return storage.ErrDuplicateKey
		}
	}

	now := time.Now().UnixMilli()
	if ct.CreatedAt == 0 {
		ct.CreatedAt = now
	}
	ct.UpdatedAt = now
	ct.ID = s.nextID
	s.nextID++

	copy := *ct
	s.data[ct.ID] = &copy
	return nil
}

// GetByID retrieves a subscription.
func (s *CopyTradeStore) GetByID(_ context.Context, id int64) (*domain.CopyTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ct, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	copy := *ct
	return &copy, nil
}

// ListByOwner retrieves all subscriptions of a follower.
func (s *CopyTradeStore) ListByOwner(_ context.Context, owner string) ([]*domain.CopyTrade, error) {
	return s.list(func(ct *domain.CopyTrade) bool {
		return ct.Owner == owner
	}), nil
}

// ListActive retrieves all active subscriptions.
func (s *CopyTradeStore) ListActive(_ context.Context) ([]*domain.CopyTrade, error) {
	return s.list(func(ct *domain.CopyTrade) bool {
		return ct.Active
	}), nil
}

// ListActiveByTarget retrieves active subscriptions following a wallet.
func (s *CopyTradeStore) ListActiveByTarget(_ context.Context, targetWallet string) ([]*domain.CopyTrade, error) {
	return s.list(func(ct *domain.CopyTrade) bool {
		return ct.Active && ct.TargetWallet == targetWallet
	}), nil
}

// Update persists changed settings.
func (s *CopyTradeStore) Update(_ context.Context, ct *domain.CopyTrade) error {
	if ct == nil {
		return storage.ErrInvalidInput
	}
	if err := ct.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[ct.ID]; !ok {
		return storage.ErrNotFound
	}

	ct.UpdatedAt = time.Now().UnixMilli()
	copy := *ct
	s.data[ct.ID] = &copy
	return nil
}

// SetActive toggles a subscription and returns its updated state.
func (s *CopyTradeStore) SetActive(_ context.Context, id int64, active bool) (*domain.CopyTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ct, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	ct.Active = active
	ct.UpdatedAt = time.Now().UnixMilli()

	copy := *ct
	return &copy, nil
}

// Delete removes a subscription.
func (s *CopyTradeStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

func (s *CopyTradeStore) list(match func(*domain.CopyTrade) bool) []*domain.CopyTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CopyTrade
	for _, ct := range s.data {
		if match(ct) {
			copy := *ct
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
