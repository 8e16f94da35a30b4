package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/solana/stub"
	"solana-copytrader/internal/storage/memory"
)

type fakePublisher struct {
	mu         sync.Mutex
	PublishErr error
	published  [][]byte
	failed     [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, topic string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PublishErr != nil {
		return p.PublishErr
	}
	if topic != bus.TopicTradeEvent {
		return errors.New("unexpected topic " + topic)
	}
	p.published = append(p.published, data)
	return nil
}

func (p *fakePublisher) PushFailed(_ context.Context, _ string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, data)
	return nil
}

func (p *fakePublisher) publishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *fakePublisher) failedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failed)
}

func buyTx(signature string) *solana.Transaction {
	tx := swapTx(testWallet, 5000,
		[2]uint64{10_000_000_000, 8_994_995_000},
		nil,
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 59023574727001, Decimals: 6},
		},
		[]string{"Program " + solana.PumpFunProgramID + " invoke [1]"},
	)
	tx.Signature = signature
	return tx
}

func newTestMonitor(ws *stub.WSClient, rpc *stub.RPCClient, pub Publisher) *Monitor {
	return NewMonitor(MonitorOptions{
		WS:            ws,
		Fetchers:      []solana.RPCClient{rpc},
		Subscriptions: memory.NewCopyTradeStore(),
		Events:        memory.NewTradeEventStore(),
		Publisher:     pub,
		BaseBackoff:   time.Millisecond,
	})
}

func runMonitor(t *testing.T, m *Monitor) (cancel func()) {
	t.Helper()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	return func() {
		stop()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("monitor did not stop")
		}
	}
}

func TestMonitor_PublishesClassifiedEventOnce(t *testing.T) {
	ws := stub.NewWSClient()
	rpc := stub.NewRPCClient()
	pub := &fakePublisher{}

	rpc.AddTransaction(buyTx("sig-1"))

	m := newTestMonitor(ws, rpc, pub)
	m.Watch(testWallet)
	stop := runMonitor(t, m)
	defer stop()

	require.Eventually(t, func() bool {
		return ws.ActiveSubscriptions() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ws.Emit(solana.LogNotification{Signature: "sig-1", Slot: 100})
	ws.Emit(solana.LogNotification{Signature: "sig-1", Slot: 100})

	require.Eventually(t, func() bool {
		return pub.publishedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Still one after the duplicate had time to sneak through.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, pub.publishedCount())

	var event domain.TradeEvent
	require.NoError(t, json.Unmarshal(pub.published[0], &event))
	assert.Equal(t, "sig-1", event.Signature)
	assert.Equal(t, testWallet, event.Who)
	assert.Equal(t, domain.TxTypeOpen, event.TxType)
	assert.Equal(t, solana.PumpFunProgramID, event.ProgramID)
}

func TestMonitor_SkipsFailedAndRecordedSignatures(t *testing.T) {
	ws := stub.NewWSClient()
	rpc := stub.NewRPCClient()
	pub := &fakePublisher{}

	rpc.AddTransaction(buyTx("sig-failed"))
	rpc.AddTransaction(buyTx("sig-recorded"))

	m := newTestMonitor(ws, rpc, pub)
	require.NoError(t, m.events.InsertBulk(context.Background(), []*domain.TradeEvent{
		{Signature: "sig-recorded", Who: testWallet, Mint: testMint, Timestamp: 1},
	}))

	m.Watch(testWallet)
	stop := runMonitor(t, m)
	defer stop()

	require.Eventually(t, func() bool {
		return ws.ActiveSubscriptions() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ws.Emit(solana.LogNotification{Signature: "sig-failed", Err: "InstructionError"})
	ws.Emit(solana.LogNotification{Signature: "sig-recorded"})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, pub.publishedCount())
}

func TestMonitor_ResubscribesWhenTrackedSetChanges(t *testing.T) {
	ws := stub.NewWSClient()
	rpc := stub.NewRPCClient()
	pub := &fakePublisher{}

	m := newTestMonitor(ws, rpc, pub)
	m.Watch(testWallet)
	stop := runMonitor(t, m)
	defer stop()

	require.Eventually(t, func() bool {
		return ws.ActiveSubscriptions() == 1
	}, 2*time.Second, 10*time.Millisecond)

	second := "2vjdsKyvHmzaTAGzfCZvupdg7EGo3X7UNNnGrhvzGAsS"
	m.Watch(second)

	require.Eventually(t, func() bool {
		f := ws.LastFilter()
		return len(f.Mentions) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, ws.LastFilter().Mentions, testWallet)
	assert.Contains(t, ws.LastFilter().Mentions, second)

	m.Unwatch(second)
	require.Eventually(t, func() bool {
		return len(ws.LastFilter().Mentions) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMonitor_PublishFailureStashesEvent(t *testing.T) {
	ws := stub.NewWSClient()
	rpc := stub.NewRPCClient()
	pub := &fakePublisher{PublishErr: errors.New("redis gone")}

	rpc.AddTransaction(buyTx("sig-stash"))

	m := newTestMonitor(ws, rpc, pub)
	m.Watch(testWallet)
	stop := runMonitor(t, m)
	defer stop()

	require.Eventually(t, func() bool {
		return ws.ActiveSubscriptions() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ws.Emit(solana.LogNotification{Signature: "sig-stash"})

	require.Eventually(t, func() bool {
		return pub.failedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, pub.publishedCount())

	var event domain.TradeEvent
	require.NoError(t, json.Unmarshal(pub.failed[0], &event))
	assert.Equal(t, "sig-stash", event.Signature)
}

func TestMonitor_TerminatesAfterSubscribeRetries(t *testing.T) {
	ws := stub.NewWSClient()
	ws.SubscribeErr = errors.New("ws refused")

	m := NewMonitor(MonitorOptions{
		WS:            ws,
		Fetchers:      []solana.RPCClient{stub.NewRPCClient()},
		Subscriptions: memory.NewCopyTradeStore(),
		Publisher:     &fakePublisher{},
		MaxRetries:    1,
		BaseBackoff:   time.Millisecond,
	})
	m.Watch(testWallet)

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe failed")
}

func TestMonitor_ReloadTargetsFollowsStorage(t *testing.T) {
	ws := stub.NewWSClient()
	rpc := stub.NewRPCClient()
	pub := &fakePublisher{}

	subs := memory.NewCopyTradeStore()
	require.NoError(t, subs.Create(context.Background(), &domain.CopyTrade{
		Owner:          "follower-1",
		ChatID:         42,
		TargetWallet:   testWallet,
		IsFixedBuy:     true,
		FixedBuyAmount: 0.05,
		Active:         true,
	}))

	m := NewMonitor(MonitorOptions{
		WS:            ws,
		Fetchers:      []solana.RPCClient{rpc},
		Subscriptions: subs,
		Publisher:     pub,
		BaseBackoff:   time.Millisecond,
	})

	require.NoError(t, m.ReloadTargets(context.Background()))
	assert.True(t, m.isTracked(testWallet))

	stop := runMonitor(t, m)
	defer stop()

	require.Eventually(t, func() bool {
		f := ws.LastFilter()
		return len(f.Mentions) == 1 && f.Mentions[0] == testWallet
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMonitor_Backfill(t *testing.T) {
	ws := stub.NewWSClient()
	rpc := stub.NewRPCClient()
	pub := &fakePublisher{}

	rpc.AddTransaction(buyTx("sig-a"))
	rpc.Signatures[testWallet] = []solana.SignatureInfo{
		{Signature: "sig-a", Slot: 100},
		{Signature: "sig-b", Slot: 99, Err: "InstructionError"},
		{Signature: "sig-unknown", Slot: 98},
	}

	m := newTestMonitor(ws, rpc, pub)
	m.Watch(testWallet)

	count, err := m.Backfill(context.Background(), testWallet, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, pub.publishedCount())

	// A second pass republishes nothing.
	count, err = m.Backfill(context.Background(), testWallet, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMonitor_BackfillResumesFromProgress(t *testing.T) {
	rpc := stub.NewRPCClient()
	progress := memory.NewBackfillProgressStore()

	rpc.AddTransaction(buyTx("sig-old"))
	rpc.Signatures[testWallet] = []solana.SignatureInfo{
		{Signature: "sig-old", Slot: 100},
	}

	newMonitor := func(pub Publisher) *Monitor {
		m := NewMonitor(MonitorOptions{
			Fetchers:      []solana.RPCClient{rpc},
			Subscriptions: memory.NewCopyTradeStore(),
			Progress:      progress,
			Publisher:     pub,
			BaseBackoff:   time.Millisecond,
		})
		m.Watch(testWallet)
		return m
	}

	pub := &fakePublisher{}
	count, err := newMonitor(pub).Backfill(context.Background(), testWallet, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	saved, err := progress.GetProgress(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "sig-old", saved.Signature)
	assert.Equal(t, uint64(100), saved.Slot)

	// New history lands on top; a fresh process walks only past the
	// saved position instead of the whole window.
	rpc.AddTransaction(buyTx("sig-new"))
	rpc.Signatures[testWallet] = []solana.SignatureInfo{
		{Signature: "sig-new", Slot: 101},
		{Signature: "sig-old", Slot: 100},
	}

	restarted := &fakePublisher{}
	count, err = newMonitor(restarted).Backfill(context.Background(), testWallet, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, restarted.publishedCount())

	saved, err = progress.GetProgress(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "sig-new", saved.Signature)
}

func TestMonitor_IngestTransactionSkipsFetch(t *testing.T) {
	pub := &fakePublisher{}

	// No fetchers configured: a pushed full payload must classify and
	// publish without a resolve round-trip.
	m := NewMonitor(MonitorOptions{
		Subscriptions: memory.NewCopyTradeStore(),
		Publisher:     pub,
	})
	m.Watch(testWallet)

	event, published, err := m.IngestTransaction(context.Background(), buyTx("sig-push"))
	require.NoError(t, err)
	assert.True(t, published)
	require.NotNil(t, event)
	assert.Equal(t, "sig-push", event.Signature)
	assert.Equal(t, 1, pub.publishedCount())

	// The same payload again is deduped.
	_, published, err = m.IngestTransaction(context.Background(), buyTx("sig-push"))
	require.NoError(t, err)
	assert.False(t, published)
	assert.Equal(t, 1, pub.publishedCount())

	// A payload without a signature is rejected.
	_, _, err = m.IngestTransaction(context.Background(), &solana.Transaction{})
	require.Error(t, err)
}

func TestFetchRace_PanickingFetcherIsNotAResult(t *testing.T) {
	good := stub.NewRPCClient()
	good.AddTransaction(buyTx("sig-race"))

	tx := fetchRace(context.Background(),
		[]solana.RPCClient{panicClient{}, good}, "sig-race")
	require.NotNil(t, tx)
	assert.Equal(t, "sig-race", tx.Signature)

	tx = fetchRace(context.Background(), []solana.RPCClient{panicClient{}}, "sig-race")
	assert.Nil(t, tx)
}

type panicClient struct{}

func (panicClient) GetTransaction(context.Context, string) (*solana.Transaction, error) {
	panic("fetcher down")
}
func (panicClient) GetSignaturesForAddress(context.Context, string, *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	return nil, nil
}
func (panicClient) GetAccountInfo(context.Context, string) (*solana.AccountInfo, error) {
	return nil, nil
}
func (panicClient) GetMultipleAccounts(context.Context, []string) ([]*solana.AccountInfo, error) {
	return nil, nil
}
func (panicClient) GetBalance(context.Context, string) (uint64, error) { return 0, nil }
func (panicClient) GetLatestBlockhash(context.Context) (*solana.Blockhash, error) {
	return nil, nil
}
func (panicClient) SendTransaction(context.Context, string) (string, error) { return "", nil }
func (panicClient) GetSignatureStatuses(context.Context, []string) ([]*solana.SignatureStatus, error) {
	return nil, nil
}
