package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/ingestion"
	"solana-copytrader/internal/settlement"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/solana/stub"
	"solana-copytrader/internal/storage/memory"
	"solana-copytrader/internal/txbuilder"
)

const tradedMint = "9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"

type fakeBuilder struct {
	tx  *txbuilder.BuiltTx
	err error
}

func (f *fakeBuilder) Venue() domain.Venue { return domain.VenuePumpFun }

func (f *fakeBuilder) Build(_ context.Context, _ *txbuilder.Wallet, _ *domain.SwapEvent) (*txbuilder.BuiltTx, error) {
	return f.tx, f.err
}

type capturePublisher struct {
	topics []string
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ []byte) error {
	p.topics = append(p.topics, topic)
	return nil
}

func (p *capturePublisher) PushFailed(_ context.Context, _ string, _ []byte) error {
	return nil
}

func testSwap(owner string) *domain.SwapEvent {
	return &domain.SwapEvent{
		UserPubkey:  owner,
		SwapMode:    domain.SwapModeExactIn,
		InputMint:   domain.WSOLMint,
		OutputMint:  tradedMint,
		Amount:      50_000_000,
		SlippageBps: 500,
		By:          domain.ByCopyTrade,
	}
}

func newTestEngine(rpc *stub.RPCClient, builder txbuilder.Builder) (*Engine, *memory.SwapRecordStore, *capturePublisher, *txbuilder.Wallet) {
	records := memory.NewSwapRecordStore()
	pub := &capturePublisher{}
	proc := settlement.New(settlement.Options{
		RPC:          rpc,
		Records:      records,
		Publisher:    pub,
		PollAttempts: 2,
		PollInterval: time.Millisecond,
	})

	wallet := txbuilder.NewWalletFromKey(solanago.NewWallet().PrivateKey)
	e := New(Options{
		Builder:    builder,
		Settlement: proc,
		Wallets:    StaticWallets{wallet.PublicKey(): wallet},
	})
	return e, records, pub, wallet
}

func TestStaticWallets(t *testing.T) {
	wallet := txbuilder.NewWalletFromKey(solanago.NewWallet().PrivateKey)
	provider := StaticWallets{wallet.PublicKey(): wallet}

	got, err := provider.WalletFor(wallet.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, wallet, got)

	_, err = provider.WalletFor("unknown")
	require.Error(t, err)
}

func TestSubmit_SuccessfulSwap(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.NextSignature = "sig-ok"
	rpc.SetStatus("sig-ok", &solana.SignatureStatus{Slot: 10, ConfirmationStatus: "finalized"})

	builder := &fakeBuilder{tx: &txbuilder.BuiltTx{
		Base64: "dHg=",
		Quote:  txbuilder.Quote{InAmount: 50_000_000, ExpectedOut: 1_000_000},
	}}
	e, records, pub, wallet := newTestEngine(rpc, builder)

	result, err := e.Submit(context.Background(), testSwap(wallet.PublicKey()))
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusSuccess, result.Record.Status)

	stored, err := records.GetBySignature(context.Background(), "sig-ok")
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000_000), stored.InputAmount)
	assert.Equal(t, []string{bus.TopicSwapResult}, pub.topics)
}

func TestSubmit_BuildFailureSettlesAsRecord(t *testing.T) {
	builder := &fakeBuilder{err: errors.New("all venues failed")}
	e, records, pub, wallet := newTestEngine(stub.NewRPCClient(), builder)

	result, err := e.Submit(context.Background(), testSwap(wallet.PublicKey()))
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusFailed, result.Record.Status)
	assert.Nil(t, result.Record.Signature)

	rows, err := records.ListByUser(context.Background(), wallet.PublicKey(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Len(t, pub.topics, 1)
}

func TestSubmit_UnknownWalletSettlesAsBuildFailure(t *testing.T) {
	builder := &fakeBuilder{tx: &txbuilder.BuiltTx{Base64: "dHg="}}
	e, _, _, _ := newTestEngine(stub.NewRPCClient(), builder)

	result, err := e.Submit(context.Background(), testSwap("5oNDL3swdJJF1g9DzJiZ4ynHXgszjAEpUkxVYejchzrY"))
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusFailed, result.Record.Status)
	assert.Nil(t, result.Record.Signature)
}

func TestIngestTransaction_RoutesThroughMonitor(t *testing.T) {
	const sourceWallet = "2vjdsKyvHmzaTAGzfCZvupdg7EGo3X7UNNnGrhvzGAsS"

	pub := &capturePublisher{}
	monitor := ingestion.NewMonitor(ingestion.MonitorOptions{
		Subscriptions: memory.NewCopyTradeStore(),
		Publisher:     pub,
	})
	monitor.Watch(sourceWallet)

	e := New(Options{Monitor: monitor})

	tx := &solana.Transaction{
		Slot:      500,
		Signature: "sig-pushed",
		BlockTime: 1700000200,
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			LogMessages:  []string{"Program " + solana.PumpFunProgramID + " invoke [1]"},
			PreBalances:  []uint64{2_000_000_000},
			PostBalances: []uint64{1_494_995_000},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: tradedMint, Owner: sourceWallet, Amount: 1_000_000_000, Decimals: 6},
			},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{sourceWallet, tradedMint}},
	}

	event, published, err := e.IngestTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, published)
	require.NotNil(t, event)
	assert.Equal(t, "sig-pushed", event.Signature)
	assert.Equal(t, []string{bus.TopicTradeEvent}, pub.topics)
}

func TestSwapHandler_DecodesAndExecutes(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.NextSignature = "sig-handled"
	rpc.SetStatus("sig-handled", &solana.SignatureStatus{Slot: 11, ConfirmationStatus: "confirmed"})

	builder := &fakeBuilder{tx: &txbuilder.BuiltTx{Base64: "dHg="}}
	e, records, _, wallet := newTestEngine(rpc, builder)

	data, err := json.Marshal(testSwap(wallet.PublicKey()))
	require.NoError(t, err)
	require.NoError(t, e.swapHandler()(context.Background(), &bus.Message{Data: data}))

	_, err = records.GetBySignature(context.Background(), "sig-handled")
	require.NoError(t, err)

	err = e.swapHandler()(context.Background(), &bus.Message{Data: []byte("{bad")})
	require.Error(t, err)
}
