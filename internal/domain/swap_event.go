package domain

// SwapMode states which side of the swap carries the fixed amount.
type SwapMode string

const (
	SwapModeExactIn  SwapMode = "ExactIn"
	SwapModeExactOut SwapMode = "ExactOut"
)

// Initiator records who asked for a swap.
type Initiator string

const (
	ByUser      Initiator = "user"
	ByCopyTrade Initiator = "copytrade"
)

// DynamicSlippage bounds an auto-computed slippage value.
type DynamicSlippage struct {
	MinBps uint32
	MaxBps uint32
}

// SwapEvent is one desired trade, user-initiated or derived by the
// copy-trade engine. Never mutated after creation; derived fields
// (computed slippage) are written to copies.
//
// Invariant: SwapMode == ExactIn means Amount denominates InputMint,
// ExactOut means it denominates OutputMint.
type SwapEvent struct {
	UserPubkey  string
	SwapMode    SwapMode
	InputMint   string
	OutputMint  string
	Amount      uint64  // base units of the specified side
	UIAmount    float64 // human-readable amount of the specified side
	SlippageBps uint32
	PriorityFee uint64 // total priority fee budget, microlamports
	Timestamp   int64  // unix seconds

	DynamicSlippage *DynamicSlippage // optional bounds for auto slippage

	By     Initiator
	Origin *TradeEvent // set when By == ByCopyTrade
}
