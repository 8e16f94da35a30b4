package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"

	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/storage"
)

// Backfill walks the recent transaction history of a wallet and runs
// each signature through the same dedupe/classify/publish path as live
// notifications. Returns the number of events published. Failed
// transactions are skipped up front; already-seen signatures are
// deduped inside Process. With a progress store configured the walk
// stops at the last position saved for the wallet and records the new
// one, so restarts never re-walk history.
func (m *Monitor) Backfill(ctx context.Context, wallet string, limit int) (int, error) {
	if len(m.fetchers) == 0 {
		return 0, ErrNoFetchers
	}

	opts := &solana.SignaturesOpts{}
	if limit > 0 {
		opts.Limit = limit
	}
	if m.progress != nil {
		saved, err := m.progress.GetProgress(ctx, wallet)
		switch {
		case err == nil:
			opts.Until = saved.Signature
		case !errors.Is(err, storage.ErrNotFound):
			return 0, fmt.Errorf("backfill progress for %s: %w", wallet, err)
		}
	}

	sigs, err := m.fetchers[0].GetSignaturesForAddress(ctx, wallet, opts)
	if err != nil {
		return 0, fmt.Errorf("signatures for %s: %w", wallet, err)
	}
	if limit > 0 && limit < len(sigs) {
		sigs = sigs[:limit]
	}

	published := 0
	for _, info := range sigs {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		if info.Err != nil {
			continue
		}
		if m.Process(ctx, info.Signature) {
			published++
		}
	}

	// Signatures come newest first; the head is the next walk's stop.
	if m.progress != nil && len(sigs) > 0 {
		err := m.progress.SetProgress(ctx, &storage.BackfillProgress{
			Wallet:    wallet,
			Signature: sigs[0].Signature,
			Slot:      uint64(sigs[0].Slot),
		})
		if err != nil {
			log.Printf("[ingestion] save backfill progress for %s: %v", wallet, err)
		}
	}
	return published, nil
}
