package curve

import (
	"math"
	"sort"

	"solana-copytrader/internal/codec"
)

// BaseFeeBps derives the pair's base fee in basis points from its fee
// parameters.
func BaseFeeBps(baseFactor, binStep uint16) uint32 {
	return uint32(uint64(baseFactor) * uint64(binStep) / 100_000)
}

// binPrice is the price of token X in token Y at a given bin id:
// (1 + binStep/10000)^id.
func binPrice(binID int32, binStep uint16) float64 {
	return math.Pow(1+float64(binStep)/bpsDenominator, float64(binID))
}

// ReferralShareBps is the referrer's cut of the protocol fee, in
// basis points.
const ReferralShareBps = 2_000

// BinWalkResult describes a fill across one or more bins.
type BinWalkResult struct {
	AmountOut   uint64
	FeeAmount   uint64 // total fee, taken from the input side
	ProtocolFee uint64 // carved out of FeeAmount
	ReferralFee uint64 // referrer's sub-split of ProtocolFee
	EndBinID    int32  // active id after the fill
	BinsCrossed int
}

// WalkBins fills amountIn against the pair's bins starting at the
// active bin. swapForY sells X into Y and walks the ids downward;
// otherwise Y buys X walking upward. Arrays may arrive in any order
// and must collectively cover the bins the fill crosses, else
// ErrInsufficientLiquidity.
func WalkBins(pair *codec.LbPair, arrays []*codec.BinArray, amountIn uint64, swapForY bool) (*BinWalkResult, error) {
	if amountIn == 0 {
		return nil, ErrZeroAmount
	}

	feeBps := BaseFeeBps(pair.BaseFactor, pair.BinStep)
	fee := amountIn - applyFeeFloor(amountIn, feeBps)
	remaining := amountIn - fee

	sorted := make([]*codec.BinArray, len(arrays))
	copy(sorted, arrays)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	bins := make(map[int32]codec.Bin, len(sorted)*codec.BinsPerArray)
	for _, ba := range sorted {
		lower := ba.LowerBinID()
		for i, b := range ba.Bins {
			bins[lower+int32(i)] = b
		}
	}

	res := &BinWalkResult{EndBinID: pair.ActiveID}
	id := pair.ActiveID
	for remaining > 0 {
		bin, ok := bins[id]
		if !ok {
			return nil, ErrInsufficientLiquidity
		}
		price := binPrice(id, pair.BinStep)

		if swapForY {
			// Selling X: bin can absorb AmountY/price of X.
			capacity := uint64(float64(bin.AmountY) / price)
			take := remaining
			if take > capacity {
				take = capacity
			}
			res.AmountOut += uint64(float64(take) * price)
			remaining -= take
			if remaining > 0 {
				id--
				res.BinsCrossed++
			}
		} else {
			// Buying X with Y: bin holds AmountX, costing AmountX*price of Y.
			cost := uint64(float64(bin.AmountX) * price)
			take := remaining
			if take > cost {
				take = cost
			}
			res.AmountOut += uint64(float64(take) / price)
			remaining -= take
			if remaining > 0 {
				id++
				res.BinsCrossed++
			}
		}
	}

	res.EndBinID = id
	res.FeeAmount = fee
	res.ProtocolFee = fee * uint64(pair.ProtocolShare) / bpsDenominator
	res.ReferralFee = res.ProtocolFee * ReferralShareBps / bpsDenominator
	return res, nil
}
