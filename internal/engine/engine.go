// Package engine wires the pipeline together: ingestion feeds
// trade_event, the copy-trade engine fans out to swap_event, execution
// builds and settles onto swap_result, notification rides its own
// consumer groups on trade_event and swap_result.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/copytrade"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/ingestion"
	"solana-copytrader/internal/notify"
	"solana-copytrader/internal/settlement"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/storage"
	"solana-copytrader/internal/txbuilder"
)

// Consumer groups. Notification attaches to the same topics the
// pipeline consumes, so one publish serves both.
const (
	GroupCopyTrade = "copytrade"
	GroupExecution = "execution"
	GroupNotify    = "notify"
	GroupAnalytics = "analytics"
)

// WalletProvider resolves a follower pubkey to their signing wallet.
type WalletProvider interface {
	WalletFor(pubkey string) (*txbuilder.Wallet, error)
}

// StaticWallets is a WalletProvider over a fixed key set.
type StaticWallets map[string]*txbuilder.Wallet

func (s StaticWallets) WalletFor(pubkey string) (*txbuilder.Wallet, error) {
	w, ok := s[pubkey]
	if !ok {
		return nil, fmt.Errorf("no wallet for %s", pubkey)
	}
	return w, nil
}

// Options configures an Engine.
type Options struct {
	Bus        *bus.Bus
	Monitor    *ingestion.Monitor
	CopyTrade  *copytrade.Engine
	Builder    txbuilder.Builder
	Settlement *settlement.Processor
	Notifier   *notify.Router
	Wallets    WalletProvider
	Events     storage.TradeEventStore // optional analytics sink

	// Subscriptions handles lifecycle mutations so active toggles
	// reach the live watch set. Optional; read-only deployments omit it.
	Subscriptions *copytrade.Subscriptions

	ConsumerName string // this instance's name within the groups
}

// Engine owns the consumers and the monitor lifecycle, and exposes the
// synchronous surface on top of the async pipeline.
type Engine struct {
	opts Options

	consumers []*bus.Consumer

	monitorCancel context.CancelFunc
	monitorDone   chan error
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.ConsumerName == "" {
		opts.ConsumerName = "engine-1"
	}
	return &Engine{opts: opts}
}

// Start reconciles the monitor with storage, attaches all consumer
// groups and begins streaming. The monitor runs until Stop or a
// terminal subscribe failure.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.opts.Monitor.ReloadTargets(ctx); err != nil {
		return err
	}

	type binding struct {
		topic   string
		group   string
		handler bus.Handler
	}
	bindings := []binding{
		{bus.TopicTradeEvent, GroupCopyTrade, e.opts.CopyTrade.Handler()},
		{bus.TopicSwapEvent, GroupExecution, e.swapHandler()},
	}
	if e.opts.Notifier != nil {
		bindings = append(bindings,
			binding{bus.TopicTradeEvent, GroupNotify, e.opts.Notifier.TradeEventHandler()},
			binding{bus.TopicSwapResult, GroupNotify, e.opts.Notifier.SwapResultHandler()},
		)
	}
	if e.opts.Events != nil {
		bindings = append(bindings, binding{bus.TopicTradeEvent, GroupAnalytics, e.analyticsHandler()})
	}

	for _, b := range bindings {
		c := bus.NewConsumer(e.opts.Bus, b.topic, b.handler, bus.ConsumerOptions{
			Group: b.group,
			Name:  e.opts.ConsumerName,
		})
		if err := c.Start(ctx); err != nil {
			e.stopConsumers()
			return fmt.Errorf("start %s/%s: %w", b.topic, b.group, err)
		}
		e.consumers = append(e.consumers, c)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	e.monitorCancel = cancel
	e.monitorDone = make(chan error, 1)
	go func() {
		e.monitorDone <- e.opts.Monitor.Run(monitorCtx)
	}()
	return nil
}

// Stop shuts the pipeline down in order: intake first so no new work
// arrives, then the consumers drain their in-flight handlers.
func (e *Engine) Stop() error {
	var runErr error
	if e.monitorCancel != nil {
		e.monitorCancel()
		runErr = <-e.monitorDone
	}
	e.stopConsumers()
	return runErr
}

func (e *Engine) stopConsumers() {
	for _, c := range e.consumers {
		c.Stop()
	}
	e.consumers = nil
}

// Submit runs one swap through build and settlement synchronously and
// returns its terminal result. Build failures settle as records too;
// the error return covers only infrastructure faults.
func (e *Engine) Submit(ctx context.Context, swap *domain.SwapEvent) (*domain.SwapResult, error) {
	return e.execute(ctx, swap)
}

// Ingest resolves one signature through the classification path and
// returns the trade event when one was published.
func (e *Engine) Ingest(ctx context.Context, signature string) (*domain.TradeEvent, bool, error) {
	return e.opts.Monitor.Ingest(ctx, signature)
}

// IngestTransaction runs a pushed full transaction payload through
// the same dedupe/classify/publish path, with no fetch round-trip.
func (e *Engine) IngestTransaction(ctx context.Context, tx *solana.Transaction) (*domain.TradeEvent, bool, error) {
	return e.opts.Monitor.IngestTransaction(ctx, tx)
}

// Subscriptions exposes the lifecycle service wired at construction,
// or nil when this process does not accept mutations.
func (e *Engine) Subscriptions() *copytrade.Subscriptions {
	return e.opts.Subscriptions
}

// swapHandler consumes swap_event: each message is one follower order
// to build and settle.
func (e *Engine) swapHandler() bus.Handler {
	return func(ctx context.Context, msg *bus.Message) error {
		var swap domain.SwapEvent
		if err := json.Unmarshal(msg.Data, &swap); err != nil {
			return fmt.Errorf("decode swap event: %w", err)
		}

		result, err := e.execute(ctx, &swap)
		if err != nil {
			return err
		}
		log.Printf("[engine] swap for %s settled %s", swap.UserPubkey, result.Record.Status)
		return nil
	}
}

// analyticsHandler sinks classified trade events into the timeseries
// store for later analysis.
func (e *Engine) analyticsHandler() bus.Handler {
	return func(ctx context.Context, msg *bus.Message) error {
		var event domain.TradeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return fmt.Errorf("decode trade event: %w", err)
		}
		return e.opts.Events.InsertBulk(ctx, []*domain.TradeEvent{&event})
	}
}

func (e *Engine) execute(ctx context.Context, swap *domain.SwapEvent) (*domain.SwapResult, error) {
	wallet, err := e.opts.Wallets.WalletFor(swap.UserPubkey)
	if err != nil {
		return e.opts.Settlement.SettleBuildFailure(ctx, swap, err)
	}

	built, err := e.opts.Builder.Build(ctx, wallet, swap)
	if err != nil {
		return e.opts.Settlement.SettleBuildFailure(ctx, swap, err)
	}
	return e.opts.Settlement.Settle(ctx, swap, built)
}
