package domain

import "math"

// TxType describes the position transition implied by a classified swap.
type TxType string

const (
	TxTypeOpen   TxType = "OPEN_POSITION"
	TxTypeAdd    TxType = "ADD_POSITION"
	TxTypeReduce TxType = "REDUCE_POSITION"
	TxTypeClose  TxType = "CLOSE_POSITION"
)

// Direction is the trade direction from the signer's point of view.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// closeEpsilonUI is the residual balance (in UI units) below which a
// position is considered fully closed. Absorbs dust left by rounding.
const closeEpsilonUI = 0.001

// TradeEvent is one classified on-chain swap by a tracked wallet.
// Immutable once created; produced by ingestion, consumed by the
// copy-trade engine and notification routing.
type TradeEvent struct {
	Signature       string // transaction signature, unique per event
	Who             string // source wallet (signer)
	Mint            string // traded token mint
	FromAmount      uint64 // base units spent
	FromDecimals    int
	ToAmount        uint64 // base units received
	ToDecimals      int
	PreTokenAmount  uint64 // signer's token balance before, base units
	PostTokenAmount uint64 // signer's token balance after, base units
	TxType          TxType
	Direction       Direction
	Timestamp       int64  // unix seconds
	ProgramID       string // venue program that executed the swap
}

// ClassifyTxType derives the position transition from the signer's
// pre/post token balance. Pure function of its inputs: the type is never
// taken from an external source. Returns false when the transition is
// not a trade (no balance change).
func ClassifyTxType(pre, post uint64, decimals int) (TxType, bool) {
	if pre == post {
		return "", false
	}

	if pre == 0 {
		return TxTypeOpen, true
	}

	if post > pre {
		return TxTypeAdd, true
	}

	// Decrease: distinguish CLOSE (dust-level remainder) from REDUCE.
	postUI := float64(post) / math.Pow(10, float64(decimals))
	if postUI < closeEpsilonUI {
		return TxTypeClose, true
	}
	return TxTypeReduce, true
}

// DirectionFor maps a position transition to the trade direction.
func DirectionFor(t TxType) Direction {
	switch t {
	case TxTypeOpen, TxTypeAdd:
		return DirectionBuy
	default:
		return DirectionSell
	}
}

// SellFraction is the fraction of the position the source wallet sold,
// clamped to [0, 1]. A CLOSE forces 1 regardless of rounding.
func (e *TradeEvent) SellFraction() float64 {
	if e.TxType == TxTypeClose {
		return 1
	}
	if e.PreTokenAmount == 0 {
		return 0
	}
	f := float64(e.PreTokenAmount-e.PostTokenAmount) / float64(e.PreTokenAmount)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
