package curve

// MinAmountOut converts an exact-in quote into the worst acceptable
// output. Rounds down: the tolerance can only widen, never shrink.
func MinAmountOut(quoted uint64, slippageBps uint32) uint64 {
	if slippageBps >= bpsDenominator {
		return 0
	}
	return applyFeeFloor(quoted, slippageBps)
}

// MaxAmountIn converts an exact-out quote into the worst acceptable
// input. Rounds up for the same reason.
func MaxAmountIn(quoted uint64, slippageBps uint32) uint64 {
	hi := quoted / bpsDenominator * uint64(bpsDenominator+slippageBps)
	rem := quoted % bpsDenominator * uint64(bpsDenominator+slippageBps)
	hi += rem / bpsDenominator
	if rem%bpsDenominator != 0 {
		hi++
	}
	return hi
}
