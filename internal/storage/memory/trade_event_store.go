package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// TradeEventStore is an in-memory implementation of storage.TradeEventStore.
type TradeEventStore struct {
	mu     sync.RWMutex
	events []*domain.TradeEvent
}

// NewTradeEventStore creates a new in-memory trade event store.
func NewTradeEventStore() *TradeEventStore {
	return &TradeEventStore{}
}

var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// InsertBulk appends a batch of events.
func (s *TradeEventStore) InsertBulk(_ context.Context, events []*domain.TradeEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == nil {
			return storage.ErrInvalidInput
		}
		copy := *e
		s.events = append(s.events, &copy)
	}
	return nil
}

// HasSignature reports whether an event with the signature exists.
func (s *TradeEventStore) HasSignature(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.Signature == signature {
			return true, nil
		}
	}
	return false, nil
}

// GetByWallet retrieves events for a wallet within [start, end] (inclusive),
// ordered by timestamp ASC.
func (s *TradeEventStore) GetByWallet(_ context.Context, wallet string, start, end int64) ([]*domain.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeEvent
	for _, e := range s.events {
		if e.Who == wallet && e.Timestamp >= start && e.Timestamp <= end {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Signature < result[j].Signature
	})
	return result, nil
}
