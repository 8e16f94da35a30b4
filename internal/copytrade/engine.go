// Package copytrade fans a classified trade of a tracked wallet out
// into one swap order per active follower.
package copytrade

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/codec"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/observability"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/storage"
)

const (
	// LamportsPerSOL converts UI SOL amounts to base units.
	LamportsPerSOL = 1_000_000_000

	// FeeReserveLamports stays in the follower's wallet for fees and
	// rent; auto-follow buys never touch it.
	FeeReserveLamports = 10_000_000

	// AntiSandwichSlippageBps is the tight bound that makes a sandwich
	// unprofitable. Overrides every other slippage setting.
	AntiSandwichSlippageBps = 50

	// DefaultSlippageBps applies when a subscription sets neither a
	// custom value nor auto slippage.
	DefaultSlippageBps = 500

	// Auto-slippage bounds. The builder derives the working value from
	// price impact and clamps it into this window.
	AutoSlippageMinBps = 100
	AutoSlippageMaxBps = 2500
)

// Publisher is the bus surface the engine needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// Options configures an Engine.
type Options struct {
	Subscriptions storage.CopyTradeStore
	RPC           solana.RPCClient
	Publisher     Publisher
}

// Engine turns one TradeEvent into swap orders for every active
// follower of the source wallet. Each order is published once on the
// swap_event topic; notification rides the same topic through its own
// consumer group.
type Engine struct {
	subs      storage.CopyTradeStore
	rpc       solana.RPCClient
	publisher Publisher
}

// New creates an Engine.
func New(opts Options) *Engine {
	return &Engine{
		subs:      opts.Subscriptions,
		rpc:       opts.RPC,
		publisher: opts.Publisher,
	}
}

// Handler adapts the engine to a bus consumer. The message data is a
// JSON TradeEvent.
func (e *Engine) Handler() bus.Handler {
	return func(ctx context.Context, msg *bus.Message) error {
		var event domain.TradeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return fmt.Errorf("decode trade event: %w", err)
		}
		return e.FanOut(ctx, &event)
	}
}

// FanOut derives and publishes one SwapEvent per active follower of
// event.Who. Followers are processed concurrently; one follower's
// failure never affects the others. The returned error covers only the
// subscription lookup, which fails the whole fan-out.
func (e *Engine) FanOut(ctx context.Context, event *domain.TradeEvent) error {
	if domain.IgnoredMints[event.Mint] {
		return nil
	}

	subs, err := e.subs.ListActiveByTarget(ctx, event.Who)
	if err != nil {
		return fmt.Errorf("subscribers of %s: %w", event.Who, err)
	}
	if len(subs) == 0 {
		return nil
	}

	var (
		wg      sync.WaitGroup
		emitted atomic.Int64
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *domain.CopyTrade) {
			defer wg.Done()
			published, err := e.handleSubscriber(ctx, sub, event)
			if err != nil {
				observability.DefaultMetrics.SubscriberFailures.Inc()
				log.Printf("[copytrade] subscription %d (owner %s, target %s): %v",
					sub.ID, sub.Owner, sub.TargetWallet, err)
				return
			}
			if published {
				emitted.Add(1)
			}
		}(sub)
	}
	wg.Wait()
	observability.RecordFanOut(int(emitted.Load()))
	return nil
}

func (e *Engine) handleSubscriber(ctx context.Context, sub *domain.CopyTrade, event *domain.TradeEvent) (bool, error) {
	var (
		swap *domain.SwapEvent
		err  error
	)
	switch event.Direction {
	case domain.DirectionBuy:
		swap, err = e.buyOrder(ctx, sub, event)
	case domain.DirectionSell:
		swap, err = e.sellOrder(ctx, sub, event)
	}
	if err != nil {
		return false, err
	}
	if swap == nil {
		return false, nil
	}

	data, err := json.Marshal(swap)
	if err != nil {
		return false, fmt.Errorf("encode swap event: %w", err)
	}
	if err := e.publisher.Publish(ctx, bus.TopicSwapEvent, data); err != nil {
		return false, fmt.Errorf("publish swap event: %w", err)
	}
	return true, nil
}

// buyOrder sizes a follower's buy. Fixed-buy uses the configured SOL
// amount; auto-follow mirrors the source's SOL spend, capped by the
// follower's balance minus the fee reserve.
func (e *Engine) buyOrder(ctx context.Context, sub *domain.CopyTrade, event *domain.TradeEvent) (*domain.SwapEvent, error) {
	var lamports uint64
	if sub.IsFixedBuy {
		// Round: 0.29 SOL is 289_999_999.97 lamports in float64.
		lamports = uint64(math.Round(sub.FixedBuyAmount * LamportsPerSOL))
	} else {
		lamports = event.FromAmount

		balance, err := e.rpc.GetBalance(ctx, sub.Owner)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", sub.Owner, err)
		}
		if balance <= FeeReserveLamports {
			log.Printf("[copytrade] subscription %d: balance %d below fee reserve, skipping buy",
				sub.ID, balance)
			return nil, nil
		}
		if spendable := balance - FeeReserveLamports; lamports > spendable {
			lamports = spendable
		}
	}
	if lamports == 0 {
		return nil, nil
	}

	swap := e.newSwapEvent(sub, event)
	swap.InputMint = domain.WSOLMint
	swap.OutputMint = event.Mint
	swap.Amount = lamports
	swap.UIAmount = float64(lamports) / LamportsPerSOL
	return swap, nil
}

// sellOrder mirrors a sell against the follower's own holding.
// Auto-follow subscriptions only; fixed-buy followers exit manually.
func (e *Engine) sellOrder(ctx context.Context, sub *domain.CopyTrade, event *domain.TradeEvent) (*domain.SwapEvent, error) {
	if sub.NoSell || !sub.AutoFollow {
		return nil, nil
	}

	holding, err := e.followerHolding(ctx, sub.Owner, event.Mint)
	if err != nil {
		return nil, err
	}
	if holding == 0 {
		return nil, nil
	}

	amount := holding
	if event.TxType != domain.TxTypeClose {
		amount = uint64(float64(holding) * event.SellFraction())
	}
	if amount == 0 {
		return nil, nil
	}

	swap := e.newSwapEvent(sub, event)
	swap.InputMint = event.Mint
	swap.OutputMint = domain.WSOLMint
	swap.Amount = amount
	swap.UIAmount = uiAmount(amount, event.FromDecimals)
	return swap, nil
}

// followerHolding reads the follower's token balance from their
// associated token account. A missing account is a zero holding.
func (e *Engine) followerHolding(ctx context.Context, owner, mint string) (uint64, error) {
	ata, err := solana.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}

	info, err := e.rpc.GetAccountInfo(ctx, ata)
	if err != nil {
		return 0, fmt.Errorf("token account %s: %w", ata, err)
	}
	if info == nil {
		return 0, nil
	}

	account, err := codec.DecodeTokenAccount(info.Data)
	if err != nil {
		return 0, fmt.Errorf("decode token account %s: %w", ata, err)
	}
	return account.Amount, nil
}

// newSwapEvent fills the fields common to both directions, slippage
// settings included. Precedence: anti-sandwich > auto > custom.
func (e *Engine) newSwapEvent(sub *domain.CopyTrade, event *domain.TradeEvent) *domain.SwapEvent {
	swap := &domain.SwapEvent{
		UserPubkey:  sub.Owner,
		SwapMode:    domain.SwapModeExactIn,
		PriorityFee: sub.PriorityFee,
		Timestamp:   time.Now().Unix(),
		By:          domain.ByCopyTrade,
		Origin:      event,
	}

	switch {
	case sub.AntiSandwich:
		swap.SlippageBps = AntiSandwichSlippageBps
	case sub.AutoSlippage:
		swap.SlippageBps = DefaultSlippageBps
		swap.DynamicSlippage = &domain.DynamicSlippage{
			MinBps: AutoSlippageMinBps,
			MaxBps: AutoSlippageMaxBps,
		}
	case sub.CustomSlippageBps > 0:
		swap.SlippageBps = sub.CustomSlippageBps
	default:
		swap.SlippageBps = DefaultSlippageBps
	}
	return swap
}

func uiAmount(amount uint64, decimals int) float64 {
	div := 1.0
	for i := 0; i < decimals; i++ {
		div *= 10
	}
	return float64(amount) / div
}
