package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/solana"
)

const (
	testWallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testMint   = "9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"
)

func swapTx(wallet string, fee uint64, lamports [2]uint64, pre, post []solana.TokenBalance, logs []string) *solana.Transaction {
	return &solana.Transaction{
		Slot:      123456,
		Signature: "sig-test",
		BlockTime: 1700000000,
		Meta: &solana.TransactionMeta{
			Fee:               fee,
			LogMessages:       logs,
			PreBalances:       []uint64{lamports[0]},
			PostBalances:      []uint64{lamports[1]},
			PreTokenBalances:  pre,
			PostTokenBalances: post,
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []string{wallet, testMint},
		},
	}
}

func TestClassify_BuyOpensPosition(t *testing.T) {
	tx := swapTx(testWallet, 5000,
		[2]uint64{10_000_000_000, 8_994_995_000},
		nil,
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 59023574727001, Decimals: 6},
		},
		[]string{"Program " + solana.PumpFunProgramID + " invoke [1]"},
	)

	c := Classify(tx, testWallet)
	require.Equal(t, KindClassified, c.Kind, c.Reason)

	e := c.Event
	assert.Equal(t, "sig-test", e.Signature)
	assert.Equal(t, testWallet, e.Who)
	assert.Equal(t, testMint, e.Mint)
	assert.Equal(t, domain.TxTypeOpen, e.TxType)
	assert.Equal(t, domain.DirectionBuy, e.Direction)
	assert.Equal(t, uint64(1_005_000_000), e.FromAmount)
	assert.Equal(t, 9, e.FromDecimals)
	assert.Equal(t, uint64(59023574727001), e.ToAmount)
	assert.Equal(t, 6, e.ToDecimals)
	assert.Equal(t, uint64(0), e.PreTokenAmount)
	assert.Equal(t, uint64(59023574727001), e.PostTokenAmount)
	assert.Equal(t, solana.PumpFunProgramID, e.ProgramID)
	assert.Equal(t, int64(1700000000), e.Timestamp)
}

func TestClassify_SellReducesPosition(t *testing.T) {
	tx := swapTx(testWallet, 5000,
		[2]uint64{1_000_000_000, 1_499_995_000},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 1_000_000_000, Decimals: 6},
		},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 250_000_000, Decimals: 6},
		},
		[]string{"Program " + solana.PumpSwapProgramID + " invoke [1]"},
	)

	c := Classify(tx, testWallet)
	require.Equal(t, KindClassified, c.Kind, c.Reason)

	e := c.Event
	assert.Equal(t, domain.TxTypeReduce, e.TxType)
	assert.Equal(t, domain.DirectionSell, e.Direction)
	assert.Equal(t, uint64(750_000_000), e.FromAmount)
	assert.Equal(t, 6, e.FromDecimals)
	assert.Equal(t, uint64(500_000_000), e.ToAmount)
	assert.Equal(t, 9, e.ToDecimals)
	assert.Equal(t, solana.PumpSwapProgramID, e.ProgramID)
}

func TestClassify_SellClosesPosition(t *testing.T) {
	tx := swapTx(testWallet, 5000,
		[2]uint64{1_000_000_000, 1_800_000_000},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 1_000_000_000, Decimals: 6},
		},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 0, Decimals: 6},
		},
		nil,
	)

	c := Classify(tx, testWallet)
	require.Equal(t, KindClassified, c.Kind, c.Reason)
	assert.Equal(t, domain.TxTypeClose, c.Event.TxType)
	assert.Equal(t, domain.DirectionSell, c.Event.Direction)
	assert.Equal(t, "", c.Event.ProgramID)
}

func TestClassify_DustResidualIsClose(t *testing.T) {
	// 500 raw units at 6 decimals is 0.0005 UI, below the close epsilon.
	tx := swapTx(testWallet, 5000,
		[2]uint64{1_000_000_000, 1_200_000_000},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 1_000_000_000, Decimals: 6},
		},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 500, Decimals: 6},
		},
		nil,
	)

	c := Classify(tx, testWallet)
	require.Equal(t, KindClassified, c.Kind, c.Reason)
	assert.Equal(t, domain.TxTypeClose, c.Event.TxType)
}

func TestClassify_FailedTransaction(t *testing.T) {
	tx := swapTx(testWallet, 5000, [2]uint64{1_000_000_000, 999_995_000}, nil, nil, nil)
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{}}

	c := Classify(tx, testWallet)
	assert.Equal(t, KindNotASwap, c.Kind)
}

func TestClassify_WalletNotTheSigner(t *testing.T) {
	tx := swapTx("SomeOtherSigner1111111111111111111111111111", 5000,
		[2]uint64{1_000_000_000, 999_995_000},
		nil,
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 100, Decimals: 6},
		},
		nil,
	)

	c := Classify(tx, testWallet)
	assert.Equal(t, KindNotASwap, c.Kind)
}

func TestClassify_QuoteMintChangeIsNotATrade(t *testing.T) {
	// Only the wallet's WSOL balance moved; wrapping SOL is not a position change.
	tx := swapTx(testWallet, 5000,
		[2]uint64{2_000_000_000, 999_995_000},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: domain.WSOLMint, Owner: testWallet, Amount: 0, Decimals: 9},
		},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: domain.WSOLMint, Owner: testWallet, Amount: 1_000_000_000, Decimals: 9},
		},
		nil,
	)

	c := Classify(tx, testWallet)
	assert.Equal(t, KindNotASwap, c.Kind)
}

func TestClassify_MultipleMintsAmbiguous(t *testing.T) {
	otherMint := "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
	tx := swapTx(testWallet, 5000,
		[2]uint64{1_000_000_000, 999_995_000},
		nil,
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 100, Decimals: 6},
			{AccountIndex: 2, Mint: otherMint, Owner: testWallet, Amount: 200, Decimals: 6},
		},
		nil,
	)

	c := Classify(tx, testWallet)
	assert.Equal(t, KindAmbiguous, c.Kind)
}

func TestClassify_OtherOwnersIgnored(t *testing.T) {
	// A counterparty's balance change in the same mint must not count.
	tx := swapTx(testWallet, 5000,
		[2]uint64{10_000_000_000, 8_999_995_000},
		[]solana.TokenBalance{
			{AccountIndex: 2, Mint: testMint, Owner: "PoolVault111111111111111111111111111111111", Amount: 500, Decimals: 6},
		},
		[]solana.TokenBalance{
			{AccountIndex: 1, Mint: testMint, Owner: testWallet, Amount: 1_000_000, Decimals: 6},
			{AccountIndex: 2, Mint: testMint, Owner: "PoolVault111111111111111111111111111111111", Amount: 400, Decimals: 6},
		},
		nil,
	)

	c := Classify(tx, testWallet)
	require.Equal(t, KindClassified, c.Kind, c.Reason)
	assert.Equal(t, domain.TxTypeOpen, c.Event.TxType)
	assert.Equal(t, uint64(1_000_000), c.Event.PostTokenAmount)
}

func TestClassify_MissingMeta(t *testing.T) {
	c := Classify(&solana.Transaction{Signature: "x"}, testWallet)
	assert.Equal(t, KindAmbiguous, c.Kind)

	c = Classify(nil, testWallet)
	assert.Equal(t, KindAmbiguous, c.Kind)
}
