package ingestion

import (
	"context"
	"log"

	"solana-copytrader/internal/solana"
)

// fetchRace resolves a signature by racing every fetcher; the first
// non-nil transaction wins and the rest are cancelled. A fetcher that
// errors, returns nil, or panics is a non-result, not a failure.
// Returns nil when no fetcher produced the transaction.
func fetchRace(ctx context.Context, fetchers []solana.RPCClient, signature string) *solana.Transaction {
	if len(fetchers) == 0 {
		return nil
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *solana.Transaction, len(fetchers))
	for _, f := range fetchers {
		go func(rpc solana.RPCClient) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[ingestion] fetcher panic for %s: %v", signature, r)
					results <- nil
				}
			}()

			tx, err := rpc.GetTransaction(raceCtx, signature)
			if err != nil {
				results <- nil
				return
			}
			results <- tx
		}(f)
	}

	for range fetchers {
		select {
		case tx := <-results:
			if tx != nil {
				return tx
			}
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
