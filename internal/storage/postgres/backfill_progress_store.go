package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-copytrader/internal/storage"
)

// BackfillProgressStore implements storage.BackfillProgressStore using
// PostgreSQL.
type BackfillProgressStore struct {
	pool *Pool
}

// NewBackfillProgressStore creates a new BackfillProgressStore.
func NewBackfillProgressStore(pool *Pool) *BackfillProgressStore {
	return &BackfillProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BackfillProgressStore = (*BackfillProgressStore)(nil)

// GetProgress returns the saved position for a wallet.
func (s *BackfillProgressStore) GetProgress(ctx context.Context, wallet string) (*storage.BackfillProgress, error) {
	query := `
		SELECT wallet, signature, slot, updated_at
		FROM backfill_progress
		WHERE wallet = $1
	`

	var p storage.BackfillProgress
	err := s.pool.QueryRow(ctx, query, wallet).Scan(&p.Wallet, &p.Signature, &p.Slot, &p.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backfill progress: %w", err)
	}
	return &p, nil
}

// SetProgress saves the position for a wallet, replacing any earlier one.
func (s *BackfillProgressStore) SetProgress(ctx context.Context, progress *storage.BackfillProgress) error {
	if progress == nil || progress.Wallet == "" || progress.Signature == "" {
		return fmt.Errorf("%w: wallet and signature required", storage.ErrInvalidInput)
	}

	updatedAt := progress.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO backfill_progress (wallet, signature, slot, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet) DO UPDATE
		SET signature = EXCLUDED.signature,
		    slot = EXCLUDED.slot,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, progress.Wallet, progress.Signature, progress.Slot, updatedAt)
	if err != nil {
		return fmt.Errorf("set backfill progress: %w", err)
	}
	return nil
}
