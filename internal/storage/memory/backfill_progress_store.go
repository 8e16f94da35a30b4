package memory

import (
	"context"
	"sync"
	"time"

	"solana-copytrader/internal/storage"
)

// BackfillProgressStore is an in-memory implementation of
// storage.BackfillProgressStore.
type BackfillProgressStore struct {
	mu   sync.RWMutex
	data map[string]*storage.BackfillProgress // keyed by wallet
}

// NewBackfillProgressStore creates a new in-memory progress store.
func NewBackfillProgressStore() *BackfillProgressStore {
	return &BackfillProgressStore{
		data: make(map[string]*storage.BackfillProgress),
	}
}

var _ storage.BackfillProgressStore = (*BackfillProgressStore)(nil)

// GetProgress returns the saved position for a wallet.
func (s *BackfillProgressStore) GetProgress(_ context.Context, wallet string) (*storage.BackfillProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}

	copy := *p
	return &copy, nil
}

// SetProgress saves the position for a wallet, replacing any earlier one.
func (s *BackfillProgressStore) SetProgress(_ context.Context, progress *storage.BackfillProgress) error {
	if progress == nil || progress.Wallet == "" || progress.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *progress
	if copy.UpdatedAt == 0 {
		copy.UpdatedAt = time.Now().UnixMilli()
	}
	s.data[copy.Wallet] = &copy
	return nil
}
