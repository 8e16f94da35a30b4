package stub

import (
	"context"
	"sync"

	"solana-copytrader/internal/solana"
)

// WSClient implements solana.WSClient for testing. Emit pushes a
// notification to every live subscription.
type WSClient struct {
	mu   sync.Mutex
	subs map[*solana.LogSubscription]subState

	// SubscribeErr, when set, fails the next SubscribeLogs call once.
	SubscribeErr error

	// Filters records the filter of every successful subscription.
	Filters []solana.LogsFilter
}

type subState struct {
	ch     chan solana.LogNotification
	filter solana.LogsFilter
}

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{subs: make(map[*solana.LogSubscription]subState)}
}

var _ solana.WSClient = (*WSClient)(nil)

func (c *WSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (*solana.LogSubscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SubscribeErr != nil {
		err := c.SubscribeErr
		c.SubscribeErr = nil
		return nil, err
	}

	ch := make(chan solana.LogNotification, 64)
	sub := solana.NewLogSubscription(ch)
	c.subs[sub] = subState{ch: ch, filter: filter}
	c.Filters = append(c.Filters, filter)
	return sub, nil
}

func (c *WSClient) UnsubscribeLogs(_ context.Context, sub *solana.LogSubscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.subs[sub]; ok {
		close(state.ch)
		delete(c.subs, sub)
	}
	return nil
}

func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub, state := range c.subs {
		close(state.ch)
		delete(c.subs, sub)
	}
	return nil
}

// Emit delivers a notification to all live subscriptions.
func (c *WSClient) Emit(notif solana.LogNotification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, state := range c.subs {
		state.ch <- notif
	}
}

// ActiveSubscriptions returns the number of live subscriptions.
func (c *WSClient) ActiveSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// LastFilter returns the filter of the most recent subscription.
func (c *WSClient) LastFilter() solana.LogsFilter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.Filters) == 0 {
		return solana.LogsFilter{}
	}
	return c.Filters[len(c.Filters)-1]
}
