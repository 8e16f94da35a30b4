package storage

import "context"

// BackfillProgress marks how far a wallet's history walk has reached.
type BackfillProgress struct {
	Wallet    string
	Signature string // newest signature already processed
	Slot      uint64
	UpdatedAt int64 // unix ms
}

// BackfillProgressStore persists backfill resume state so a restarted
// walk continues from where the last one stopped instead of re-walking
// the whole history window.
type BackfillProgressStore interface {
	// GetProgress returns the saved position for a wallet.
	// Returns ErrNotFound when the wallet was never backfilled.
	GetProgress(ctx context.Context, wallet string) (*BackfillProgress, error)

	// SetProgress saves the position for a wallet, replacing any
	// earlier one.
	SetProgress(ctx context.Context, progress *BackfillProgress) error
}
