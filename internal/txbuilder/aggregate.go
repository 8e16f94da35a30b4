package txbuilder

import (
	"context"
	"log"
	"time"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/observability"
)

// AggregateBuilder races its venue builders and takes the first
// transaction that builds, cancelling the rest. When every venue
// fails, the reasons aggregate into one BuildError.
type AggregateBuilder struct {
	builders []Builder
}

// NewAggregateBuilder creates an aggregate over the given builders.
func NewAggregateBuilder(builders ...Builder) *AggregateBuilder {
	return &AggregateBuilder{builders: builders}
}

func (a *AggregateBuilder) Venue() domain.Venue { return "aggregate" }

var _ Builder = (*AggregateBuilder)(nil)

func (a *AggregateBuilder) Build(ctx context.Context, wallet *Wallet, swap *domain.SwapEvent) (*BuiltTx, error) {
	if len(a.builders) == 0 {
		return nil, &BuildError{Reasons: map[domain.Venue]error{}}
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		venue domain.Venue
		tx    *BuiltTx
		err   error
	}
	results := make(chan result, len(a.builders))

	for _, b := range a.builders {
		go func(b Builder) {
			start := time.Now()
			tx, err := b.Build(raceCtx, wallet, swap)
			status := "ok"
			if err != nil {
				status = "error"
			}
			observability.RecordBuild(string(b.Venue()), status, time.Since(start).Seconds())
			results <- result{venue: b.Venue(), tx: tx, err: err}
		}(b)
	}

	reasons := make(map[domain.Venue]error, len(a.builders))
	for range a.builders {
		select {
		case r := <-results:
			if r.err == nil {
				return r.tx, nil
			}
			log.Printf("[txbuilder] %s build failed: %v", r.venue, r.err)
			reasons[r.venue] = r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, &BuildError{Reasons: reasons}
}
