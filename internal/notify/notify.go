// Package notify resolves which chats hear about trade events and swap
// results. Rendering and delivery live behind the Sink; the router only
// decides recipients.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// Kind labels what a notification is about.
type Kind string

const (
	// KindTradeAlert tells a follower their target wallet traded.
	KindTradeAlert Kind = "trade_alert"
	// KindSwapResult tells an owner how their own swap settled.
	KindSwapResult Kind = "swap_result"
)

// Notification is one resolved message for one chat.
type Notification struct {
	ChatID      int64
	Kind        Kind
	WalletAlias string // follower's alias for the source wallet, trade alerts only

	Trade  *domain.TradeEvent
	Result *domain.SwapResult
}

// Sink delivers notifications. Implementations render and transport.
type Sink interface {
	Send(ctx context.Context, n *Notification) error
}

// LogSink writes notifications to the process log. Stands in where no
// delivery channel is configured.
type LogSink struct{}

func (LogSink) Send(_ context.Context, n *Notification) error {
	log.Printf("[notify] chat %d: %s", n.ChatID, n.Kind)
	return nil
}

// Router maps pipeline output to recipient chats.
type Router struct {
	subs storage.CopyTradeStore
	sink Sink
}

// NewRouter creates a router over the subscription store.
func NewRouter(subs storage.CopyTradeStore, sink Sink) *Router {
	return &Router{subs: subs, sink: sink}
}

// RouteTradeEvent alerts every follower of the source wallet, one
// notification per distinct chat. Delivery is best effort: a failing
// chat is logged and the rest still hear.
func (r *Router) RouteTradeEvent(ctx context.Context, event *domain.TradeEvent) error {
	subs, err := r.subs.ListActiveByTarget(ctx, event.Who)
	if err != nil {
		return fmt.Errorf("list followers of %s: %w", event.Who, err)
	}

	seen := make(map[int64]bool, len(subs))
	for _, sub := range subs {
		if sub.ChatID == 0 || seen[sub.ChatID] {
			continue
		}
		seen[sub.ChatID] = true

		n := &Notification{
			ChatID:      sub.ChatID,
			Kind:        KindTradeAlert,
			WalletAlias: sub.WalletAlias,
			Trade:       event,
		}
		if err := r.sink.Send(ctx, n); err != nil {
			log.Printf("[notify] trade alert to chat %d: %v", sub.ChatID, err)
		}
	}
	return nil
}

// RouteSwapResult tells the swap's owner how it settled. An owner with
// no subscriptions has no chat and is skipped. The single send is not
// swallowed: a sink failure surfaces so the message can be retried.
func (r *Router) RouteSwapResult(ctx context.Context, result *domain.SwapResult) error {
	owner := result.Record.UserPubkey
	subs, err := r.subs.ListByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("list subscriptions of %s: %w", owner, err)
	}
	if len(subs) == 0 {
		log.Printf("[notify] no chat for owner %s, dropping result", owner)
		return nil
	}

	// Prefer the subscription that produced the swap so its alias
	// carries through; fall back to the owner's first chat.
	chosen := subs[0]
	if result.Event != nil && result.Event.Origin != nil {
		for _, sub := range subs {
			if sub.TargetWallet == result.Event.Origin.Who {
				chosen = sub
				break
			}
		}
	}
	if chosen.ChatID == 0 {
		log.Printf("[notify] owner %s has no chat id, dropping result", owner)
		return nil
	}

	return r.sink.Send(ctx, &Notification{
		ChatID:      chosen.ChatID,
		Kind:        KindSwapResult,
		WalletAlias: chosen.WalletAlias,
		Result:      result,
	})
}

// TradeEventHandler adapts the router to a trade_event consumer group.
func (r *Router) TradeEventHandler() bus.Handler {
	return func(ctx context.Context, msg *bus.Message) error {
		var event domain.TradeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return fmt.Errorf("decode trade event: %w", err)
		}
		return r.RouteTradeEvent(ctx, &event)
	}
}

// SwapResultHandler adapts the router to a swap_result consumer group.
func (r *Router) SwapResultHandler() bus.Handler {
	return func(ctx context.Context, msg *bus.Message) error {
		var result domain.SwapResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			return fmt.Errorf("decode swap result: %w", err)
		}
		return r.RouteSwapResult(ctx, &result)
	}
}
