// Package settlement submits built transactions, waits for their
// on-chain outcome and persists exactly one record per attempt.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/observability"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/storage"
	"solana-copytrader/internal/txbuilder"
)

// Poll budget for confirmation. Past it the attempt settles EXPIRED.
const (
	DefaultPollAttempts = 60
	DefaultPollInterval = time.Second
)

// Publisher is the bus surface the processor needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// Options configures a Processor.
type Options struct {
	RPC       solana.RPCClient
	Records   storage.SwapRecordStore
	Publisher Publisher

	PollAttempts int
	PollInterval time.Duration
}

// Processor drives a built transaction to a terminal state: submit,
// poll, fetch the confirmed transaction, persist, publish the result.
type Processor struct {
	rpc       solana.RPCClient
	records   storage.SwapRecordStore
	publisher Publisher
	opts      Options
}

// New creates a Processor. Zero option fields take the defaults.
func New(opts Options) *Processor {
	if opts.PollAttempts == 0 {
		opts.PollAttempts = DefaultPollAttempts
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Processor{
		rpc:       opts.RPC,
		records:   opts.Records,
		publisher: opts.Publisher,
		opts:      opts,
	}
}

// Settle submits the built transaction and follows it to a terminal
// record. Exactly one record is persisted and one result published,
// whatever the outcome.
func (p *Processor) Settle(ctx context.Context, swap *domain.SwapEvent, built *txbuilder.BuiltTx) (*domain.SwapResult, error) {
	sig, err := p.rpc.SendTransaction(ctx, built.Base64)
	if err != nil {
		log.Printf("[settlement] submit for %s: %v", swap.UserPubkey, err)
		return p.finish(ctx, swap, minimalRecord(swap, built, nil, domain.SwapStatusFailed))
	}

	status, err := p.awaitConfirmation(ctx, sig)
	if err != nil {
		return nil, err
	}

	switch {
	case status == nil:
		// Never confirmed within the budget; the blockhash has expired.
		return p.finish(ctx, swap, minimalRecord(swap, built, &sig, domain.SwapStatusExpired))
	case status.Err != nil:
		return p.finish(ctx, swap, minimalRecord(swap, built, &sig, domain.SwapStatusFailed))
	}

	record := minimalRecord(swap, built, &sig, domain.SwapStatusSuccess)
	if tx, err := p.rpc.GetTransaction(ctx, sig); err != nil {
		log.Printf("[settlement] fetch confirmed %s: %v", sig, err)
	} else if tx != nil {
		enrich(record, swap, tx)
	}
	return p.finish(ctx, swap, record)
}

// SettleBuildFailure records an attempt that never produced a
// transaction. The record has no signature, which keeps it
// distinguishable from an on-chain failure.
func (p *Processor) SettleBuildFailure(ctx context.Context, swap *domain.SwapEvent, buildErr error) (*domain.SwapResult, error) {
	log.Printf("[settlement] build failed for %s: %v", swap.UserPubkey, buildErr)
	record := &domain.SwapRecord{
		Status:     domain.SwapStatusFailed,
		UserPubkey: swap.UserPubkey,
		SwapMode:   swap.SwapMode,
		InputMint:  swap.InputMint,
		OutputMint: swap.OutputMint,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if swap.SwapMode == domain.SwapModeExactIn {
		record.InputAmount = swap.Amount
	} else {
		record.OutputAmount = swap.Amount
	}
	return p.finish(ctx, swap, record)
}

// awaitConfirmation polls signature status until the transaction
// confirms, fails, or the budget runs out (nil status).
func (p *Processor) awaitConfirmation(ctx context.Context, sig string) (*solana.SignatureStatus, error) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < p.opts.PollAttempts; attempt++ {
		statuses, err := p.rpc.GetSignatureStatuses(ctx, []string{sig})
		if err != nil {
			log.Printf("[settlement] status poll %s: %v", sig, err)
		} else if len(statuses) == 1 && statuses[0] != nil {
			s := statuses[0]
			if s.Err != nil || s.Confirmed() {
				return s, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, nil
}

func (p *Processor) finish(ctx context.Context, swap *domain.SwapEvent, record *domain.SwapRecord) (*domain.SwapResult, error) {
	if err := p.records.Insert(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// The attempt settled concurrently; keep the stored row.
			if record.Signature != nil {
				if existing, getErr := p.records.GetBySignature(ctx, *record.Signature); getErr == nil {
					record = existing
				}
			}
		} else {
			return nil, fmt.Errorf("persist swap record: %w", err)
		}
	}

	observability.RecordSettlement(string(record.Status), time.Now().Unix())

	result := &domain.SwapResult{Record: record, Event: swap}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode swap result: %w", err)
	}
	if err := p.publisher.Publish(ctx, bus.TopicSwapResult, data); err != nil {
		log.Printf("[settlement] publish result for %s: %v", swap.UserPubkey, err)
	}
	return result, nil
}

// minimalRecord carries what is known before (or without) the
// confirmed transaction.
func minimalRecord(swap *domain.SwapEvent, built *txbuilder.BuiltTx, sig *string, status domain.SwapStatus) *domain.SwapRecord {
	record := &domain.SwapRecord{
		Signature:  sig,
		Status:     status,
		UserPubkey: swap.UserPubkey,
		SwapMode:   swap.SwapMode,
		InputMint:  swap.InputMint,
		OutputMint: swap.OutputMint,
		CreatedAt:  time.Now().UnixMilli(),
	}
	record.InputAmount = built.Quote.InAmount
	record.OutputAmount = built.Quote.ExpectedOut
	return record
}

// enrich fills the record from the confirmed transaction: fee, slot,
// actual amounts and the SOL delta breakdown.
func enrich(record *domain.SwapRecord, swap *domain.SwapEvent, tx *solana.Transaction) {
	if tx.Meta == nil || tx.Message == nil || len(tx.Message.AccountKeys) == 0 {
		return
	}
	meta := tx.Meta

	fee := meta.Fee
	record.Fee = &fee
	slot := tx.Slot
	record.Slot = &slot
	blockTime := tx.BlockTime
	record.Timestamp = &blockTime

	signer := tx.Message.AccountKeys[0]
	if len(meta.PreBalances) > 0 && len(meta.PostBalances) > 0 {
		record.SolChange = int64(meta.PostBalances[0]) - int64(meta.PreBalances[0])
	}

	// Actual token leg from the signer's balance delta.
	mint := swap.OutputMint
	if swap.InputMint != domain.WSOLMint {
		mint = swap.InputMint
	}
	pre, post := uint64(0), uint64(0)
	decimals := 0
	for _, b := range meta.PreTokenBalances {
		if b.Owner == signer && b.Mint == mint {
			pre, decimals = b.Amount, b.Decimals
		}
	}
	for _, b := range meta.PostTokenBalances {
		if b.Owner == signer && b.Mint == mint {
			post, decimals = b.Amount, b.Decimals
		}
	}

	// Split the delta so SolChange = SwapSolChange + OtherSolChange:
	// the swap leg carries the committed spend (buy) or the proceeds
	// (sell); fees, rent and tips land in the remainder.
	if swap.InputMint == domain.WSOLMint {
		record.OutputAmount = post - pre
		record.OutputDecimals = decimals
		record.InputDecimals = 9
		record.SwapSolChange = -int64(record.InputAmount)
	} else {
		record.InputAmount = pre - post
		record.InputDecimals = decimals
		record.OutputDecimals = 9
		record.OutputAmount = uint64(max64(record.SolChange+int64(fee), 0))
		record.SwapSolChange = int64(record.OutputAmount)
	}
	record.OtherSolChange = record.SolChange - record.SwapSolChange
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
