// Package ingestion turns chain notifications about tracked wallets
// into classified trade events on the bus. One Monitor owns one
// websocket subscription covering the union of all tracked wallets.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/observability"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/storage"
)

// ConnState is the monitor's connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateError
	StateTerminated
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateStreaming:
		return "STREAMING"
	case StateError:
		return "ERROR"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Publisher is the bus surface the monitor needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
	PushFailed(ctx context.Context, topic string, data []byte) error
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	WS            solana.WSClient
	Fetchers      []solana.RPCClient            // redundant transaction fetchers, raced
	Subscriptions storage.CopyTradeStore
	Events        storage.TradeEventStore       // optional, dedupe across restarts
	Progress      storage.BackfillProgressStore // optional, backfill resume state
	Publisher     Publisher

	MaxRetries   int           // subscribe attempts before terminal (default 5)
	BaseBackoff  time.Duration // first retry delay, doubled per attempt (default 1s)
	SeenCapacity int           // in-memory dedupe window (default 10000)
}

// Monitor subscribes to logs mentioning tracked wallets, resolves
// signatures to full transactions, classifies them and publishes
// trade events.
type Monitor struct {
	ws        solana.WSClient
	fetchers  []solana.RPCClient
	subsStore storage.CopyTradeStore
	events    storage.TradeEventStore
	progress  storage.BackfillProgressStore
	publisher Publisher
	opts      MonitorOptions

	state atomic.Int32

	mu      sync.Mutex
	tracked map[string]struct{}

	seen      map[string]struct{}
	seenOrder []string

	// resub wakes the stream loop when the tracked set changes.
	resub chan struct{}
}

// NewMonitor creates a Monitor. Zero option fields take the defaults.
func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.SeenCapacity == 0 {
		opts.SeenCapacity = 10_000
	}

	return &Monitor{
		ws:        opts.WS,
		fetchers:  opts.Fetchers,
		subsStore: opts.Subscriptions,
		events:    opts.Events,
		progress:  opts.Progress,
		publisher: opts.Publisher,
		opts:      opts,
		tracked:   make(map[string]struct{}),
		seen:      make(map[string]struct{}),
		resub:     make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (m *Monitor) State() ConnState {
	return ConnState(m.state.Load())
}

func (m *Monitor) setState(s ConnState) {
	old := ConnState(m.state.Swap(int32(s)))
	if old != s {
		log.Printf("[ingestion] %s -> %s", old, s)
	}
}

// Watch adds a wallet to the live subscription set.
func (m *Monitor) Watch(wallet string) {
	m.mu.Lock()
	_, exists := m.tracked[wallet]
	m.tracked[wallet] = struct{}{}
	m.mu.Unlock()

	if !exists {
		m.signalResub()
	}
}

// Unwatch removes a wallet from the live subscription set.
func (m *Monitor) Unwatch(wallet string) {
	m.mu.Lock()
	_, exists := m.tracked[wallet]
	delete(m.tracked, wallet)
	m.mu.Unlock()

	if exists {
		m.signalResub()
	}
}

// ReloadTargets replaces the tracked set with the target wallets of
// all active subscriptions. Called on startup and after mutations so
// the live set mirrors storage.
func (m *Monitor) ReloadTargets(ctx context.Context) error {
	subs, err := m.subsStore.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("load active subscriptions: %w", err)
	}

	next := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		next[s.TargetWallet] = struct{}{}
	}

	m.mu.Lock()
	changed := len(next) != len(m.tracked)
	if !changed {
		for w := range next {
			if _, ok := m.tracked[w]; !ok {
				changed = true
				break
			}
		}
	}
	m.tracked = next
	m.mu.Unlock()

	if changed {
		m.signalResub()
	}
	return nil
}

func (m *Monitor) signalResub() {
	select {
	case m.resub <- struct{}{}:
	default:
	}
}

func (m *Monitor) trackedWallets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallets := make([]string, 0, len(m.tracked))
	for w := range m.tracked {
		wallets = append(wallets, w)
	}
	return wallets
}

func (m *Monitor) isTracked(wallet string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracked[wallet]
	return ok
}

// Run drives the connection state machine until the context ends or
// the subscribe retry budget is exhausted.
func (m *Monitor) Run(ctx context.Context) error {
	retries := 0
	for {
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return nil
		}

		// Drop a pending resub signal: the snapshot below already sees
		// the mutation that raised it.
		select {
		case <-m.resub:
		default:
		}

		wallets := m.trackedWallets()
		if len(wallets) == 0 {
			// Nothing to watch; wait for the first Watch/Reload.
			m.setState(StateDisconnected)
			select {
			case <-ctx.Done():
				return nil
			case <-m.resub:
				continue
			}
		}

		m.setState(StateConnecting)
		sub, err := m.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: wallets})
		if err != nil {
			m.setState(StateError)
			observability.RecordIngestionError("subscribe")
			retries++
			if retries >= m.opts.MaxRetries {
				m.setState(StateTerminated)
				return fmt.Errorf("subscribe failed %d times: %w", retries, err)
			}

			delay := m.opts.BaseBackoff << (retries - 1)
			log.Printf("[ingestion] subscribe failed (attempt %d/%d), retrying in %v: %v",
				retries, m.opts.MaxRetries, delay, err)
			select {
			case <-ctx.Done():
				m.setState(StateDisconnected)
				return nil
			case <-time.After(delay):
			}
			continue
		}
		retries = 0
		m.setState(StateSubscribed)
		observability.UpdateTrackedWallets(len(wallets))

		reason := m.stream(ctx, sub)
		_ = m.ws.UnsubscribeLogs(context.Background(), sub)

		switch reason {
		case streamDone:
			m.setState(StateDisconnected)
			return nil
		case streamResub:
			// Tracked set changed; resubscribe with the new union.
		case streamClosed:
			m.setState(StateError)
		}
	}
}

type streamExit int

const (
	streamDone streamExit = iota
	streamResub
	streamClosed
)

func (m *Monitor) stream(ctx context.Context, sub *solana.LogSubscription) streamExit {
	for {
		select {
		case <-ctx.Done():
			return streamDone
		case <-m.resub:
			return streamResub
		case notif, ok := <-sub.C:
			if !ok {
				return streamClosed
			}
			m.setState(StateStreaming)
			m.handleNotification(ctx, notif)
		}
	}
}

func (m *Monitor) handleNotification(ctx context.Context, notif solana.LogNotification) {
	if notif.Err != nil {
		return
	}
	m.Process(ctx, notif.Signature)
}

// Process resolves a signature and publishes the classified event.
// Reports whether an event was published. Safe to call directly with
// full payloads or backfilled signatures; the dedupe applies either way.
func (m *Monitor) Process(ctx context.Context, signature string) bool {
	_, published, err := m.Ingest(ctx, signature)
	if err != nil {
		log.Printf("[ingestion] %v", err)
	}
	return published
}

// Ingest runs one signature through the dedupe/resolve/classify/publish
// path and returns the classified event when one was published. A
// signature no fetcher can resolve is an error; everything else that
// produces no event (duplicate, untracked signer, not a swap) is a
// quiet false.
func (m *Monitor) Ingest(ctx context.Context, signature string) (*domain.TradeEvent, bool, error) {
	if signature == "" || !m.admit(ctx, signature) {
		return nil, false, nil
	}

	tx := fetchRace(ctx, m.fetchers, signature)
	if tx == nil {
		return nil, false, fmt.Errorf("no fetcher resolved %s", signature)
	}
	return m.classifyAndPublish(ctx, tx, signature)
}

// IngestTransaction handles a feed that pushes full transaction detail
// instead of a bare signature: same dedupe and classification, no
// fetch round-trip.
func (m *Monitor) IngestTransaction(ctx context.Context, tx *solana.Transaction) (*domain.TradeEvent, bool, error) {
	if tx == nil || tx.Signature == "" {
		return nil, false, fmt.Errorf("transaction payload without signature")
	}
	if !m.admit(ctx, tx.Signature) {
		return nil, false, nil
	}
	return m.classifyAndPublish(ctx, tx, tx.Signature)
}

// admit passes a signature through both dedupe layers: the in-memory
// seen window and, when configured, the durable event store.
func (m *Monitor) admit(ctx context.Context, signature string) bool {
	if !m.markSeen(signature) {
		return false
	}

	if m.events != nil {
		recorded, err := m.events.HasSignature(ctx, signature)
		if err != nil {
			log.Printf("[ingestion] dedupe check %s: %v", signature, err)
		} else if recorded {
			return false
		}
	}
	return true
}

func (m *Monitor) classifyAndPublish(ctx context.Context, tx *solana.Transaction, signature string) (*domain.TradeEvent, bool, error) {
	wallet := ""
	if tx.Message != nil && len(tx.Message.AccountKeys) > 0 {
		wallet = tx.Message.AccountKeys[0]
	}
	if !m.isTracked(wallet) {
		return nil, false, nil
	}

	c := Classify(tx, wallet)
	switch c.Kind {
	case KindClassified:
		observability.RecordEventClassified(c.Event.Timestamp)
		return c.Event, m.publish(ctx, c), nil
	case KindAmbiguous:
		observability.RecordEventAmbiguous()
		log.Printf("[ingestion] ambiguous tx %s: %s", signature, c.Reason)
	default:
		// NotASwap is the common case for tracked wallets; stay quiet.
	}
	return nil, false, nil
}

func (m *Monitor) publish(ctx context.Context, c Classification) bool {
	data, err := json.Marshal(c.Event)
	if err != nil {
		log.Printf("[ingestion] marshal event %s: %v", c.Event.Signature, err)
		return false
	}

	if err := m.publisher.Publish(ctx, bus.TopicTradeEvent, data); err != nil {
		// Never drop a classified event: stash it for replay.
		observability.RecordIngestionError("publish")
		log.Printf("[ingestion] publish %s: %v", c.Event.Signature, err)
		if pushErr := m.publisher.PushFailed(ctx, bus.TopicTradeEvent, data); pushErr != nil {
			log.Printf("[ingestion] stash %s: %v", c.Event.Signature, pushErr)
		}
		return false
	}
	return true
}

// markSeen records a signature in the bounded dedupe window. Returns
// false when the signature was already seen.
func (m *Monitor) markSeen(signature string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[signature]; ok {
		return false
	}
	m.seen[signature] = struct{}{}
	m.seenOrder = append(m.seenOrder, signature)
	if len(m.seenOrder) > m.opts.SeenCapacity {
		oldest := m.seenOrder[0]
		m.seenOrder = m.seenOrder[1:]
		delete(m.seen, oldest)
	}
	return true
}

// ErrNoFetchers is returned by Backfill when the monitor has no RPC fetchers.
var ErrNoFetchers = errors.New("no rpc fetchers configured")
