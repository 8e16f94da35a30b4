package storage

import (
	"context"

	"solana-copytrader/internal/domain"
)

// SwapRecordStore provides access to swap_records storage. Records are
// insert-only: settlement writes exactly one per swap attempt.
type SwapRecordStore interface {
	// Insert adds a new record and fills in its generated ID. Returns
	// ErrDuplicateKey when the signature was already recorded.
	Insert(ctx context.Context, r *domain.SwapRecord) error

	// GetBySignature retrieves a record by transaction signature.
	// Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.SwapRecord, error)

	// ListByUser retrieves the most recent records for a user, newest
	// first, up to limit.
	ListByUser(ctx context.Context, userPubkey string, limit int) ([]*domain.SwapRecord, error)
}

// CopyTradeStore provides access to copy_trades storage.
type CopyTradeStore interface {
	// Create validates and inserts a subscription, filling in its
	// generated ID. Returns ErrDuplicateKey when the owner already
	// follows the target wallet.
	Create(ctx context.Context, ct *domain.CopyTrade) error

	// GetByID retrieves a subscription. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.CopyTrade, error)

	// ListByOwner retrieves all subscriptions of a follower.
	ListByOwner(ctx context.Context, owner string) ([]*domain.CopyTrade, error)

	// ListActive retrieves all active subscriptions. The live monitor
	// set is rebuilt from this on startup and after mutations.
	ListActive(ctx context.Context) ([]*domain.CopyTrade, error)

	// ListActiveByTarget retrieves active subscriptions following a wallet.
	ListActiveByTarget(ctx context.Context, targetWallet string) ([]*domain.CopyTrade, error)

	// Update persists changed settings. Returns ErrNotFound if not exists.
	Update(ctx context.Context, ct *domain.CopyTrade) error

	// SetActive toggles a subscription and returns its updated state.
	// Returns ErrNotFound if not exists.
	SetActive(ctx context.Context, id int64, active bool) (*domain.CopyTrade, error)

	// Delete removes a subscription. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id int64) error
}

// PoolStore provides access to the pools registry.
type PoolStore interface {
	// Put records a resolved pool. Idempotent: re-inserting the same
	// address is a no-op, never an error.
	Put(ctx context.Context, p *domain.PoolRef) error

	// GetByMint retrieves all known pools for a mint.
	GetByMint(ctx context.Context, mint string) ([]*domain.PoolRef, error)

	// GetByAddress retrieves a pool by its account address.
	// Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.PoolRef, error)
}

// TradeEventStore is the analytics sink for classified trade events.
type TradeEventStore interface {
	// InsertBulk appends a batch of events.
	InsertBulk(ctx context.Context, events []*domain.TradeEvent) error

	// GetByWallet retrieves events for a source wallet within
	// [start, end] (inclusive, unix seconds), ordered by timestamp ASC.
	GetByWallet(ctx context.Context, wallet string, start, end int64) ([]*domain.TradeEvent, error)

	// HasSignature reports whether an event with the signature was
	// already recorded. Ingestion uses it to dedupe across restarts.
	HasSignature(ctx context.Context, signature string) (bool, error)
}
