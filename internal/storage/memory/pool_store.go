package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PoolRef // keyed by pool address
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		data: make(map[string]*domain.PoolRef),
	}
}

var _ storage.PoolStore = (*PoolStore)(nil)

// Put records a resolved pool. Re-inserting an address is a no-op.
func (s *PoolStore) Put(_ context.Context, p *domain.PoolRef) error {
	if p == nil || p.Address == "" || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.Address]; exists {
		return nil
	}

	copy := *p
	if copy.CreatedAt == 0 {
		copy.CreatedAt = time.Now().UnixMilli()
	}
	s.data[p.Address] = &copy
	return nil
}

// GetByMint retrieves all known pools for a mint, oldest first.
func (s *PoolStore) GetByMint(_ context.Context, mint string) ([]*domain.PoolRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PoolRef
	for _, p := range s.data {
		if p.Mint == mint {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// GetByAddress retrieves a pool by its account address.
func (s *PoolStore) GetByAddress(_ context.Context, address string) (*domain.PoolRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}

	copy := *p
	return &copy, nil
}
