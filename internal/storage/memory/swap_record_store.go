package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// SwapRecordStore is an in-memory implementation of storage.SwapRecordStore.
type SwapRecordStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.SwapRecord
	bySig  map[string]int64
}

// NewSwapRecordStore creates a new in-memory swap record store.
func NewSwapRecordStore() *SwapRecordStore {
	return &SwapRecordStore{
		nextID: 1,
		data:   make(map[int64]*domain.SwapRecord),
		bySig:  make(map[string]int64),
	}
}

var _ storage.SwapRecordStore = (*SwapRecordStore)(nil)

// Insert adds a new record and fills in its generated ID.
// Returns ErrDuplicateKey if the signature was already recorded.
func (s *SwapRecordStore) Insert(_ context.Context, r *domain.SwapRecord) error {
	if r == nil || r.UserPubkey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Signature != nil {
		if _, exists := s.bySig[*r.Signature]; exists {
			return storage.ErrDuplicateKey
		}
	}

	r.ID = s.nextID
	s.nextID++

	copy := *r
	s.data[r.ID] = &copy
	if r.Signature != nil {
		s.bySig[*r.Signature] = r.ID
	}
	return nil
}

// GetBySignature retrieves a record by transaction signature.
func (s *SwapRecordStore) GetBySignature(_ context.Context, signature string) (*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySig[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}

	copy := *s.data[id]
	return &copy, nil
}

// ListByUser retrieves the most recent records for a user, newest first.
func (s *SwapRecordStore) ListByUser(_ context.Context, userPubkey string, limit int) ([]*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapRecord
	for _, r := range s.data {
		if r.UserPubkey == userPubkey {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
