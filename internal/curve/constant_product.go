// Package curve prices swaps against the three venue families: the
// bonding curve, the constant-product AMM and the bin liquidity pairs.
// All quote math is integer-exact; outputs round down and inputs round
// up so a quote is never more optimistic than the program will be.
package curve

import (
	"errors"
	"math/big"
)

var (
	// ErrInsufficientLiquidity is returned when the requested output
	// exceeds what the pool holds.
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")

	// ErrZeroAmount is returned for zero-amount quotes.
	ErrZeroAmount = errors.New("zero swap amount")
)

const bpsDenominator = 10_000

// ConstantProductOut quotes an exact-in swap against x*y=k reserves.
// The fee is taken from the input side. Output rounds down.
func ConstantProductOut(inReserve, outReserve, amountIn uint64, feeBps uint32) (uint64, error) {
	if amountIn == 0 {
		return 0, ErrZeroAmount
	}
	if inReserve == 0 || outReserve == 0 {
		return 0, ErrInsufficientLiquidity
	}

	netIn := applyFeeFloor(amountIn, feeBps)

	// out = outReserve * netIn / (inReserve + netIn)
	num := new(big.Int).Mul(big.NewInt(0).SetUint64(outReserve), big.NewInt(0).SetUint64(netIn))
	den := new(big.Int).Add(big.NewInt(0).SetUint64(inReserve), big.NewInt(0).SetUint64(netIn))
	out := num.Div(num, den)
	return out.Uint64(), nil
}

// ConstantProductIn quotes an exact-out swap: the input required to
// receive amountOut. Input rounds up at both the invariant and the fee
// step, so feeding the result back through ConstantProductOut yields
// at least amountOut.
func ConstantProductIn(inReserve, outReserve, amountOut uint64, feeBps uint32) (uint64, error) {
	if amountOut == 0 {
		return 0, ErrZeroAmount
	}
	if amountOut >= outReserve {
		return 0, ErrInsufficientLiquidity
	}

	// netIn = ceil(inReserve * amountOut / (outReserve - amountOut))
	num := new(big.Int).Mul(big.NewInt(0).SetUint64(inReserve), big.NewInt(0).SetUint64(amountOut))
	den := new(big.Int).SetUint64(outReserve - amountOut)
	netIn := ceilDiv(num, den)

	// gross up the fee: in = ceil(netIn * 10000 / (10000 - feeBps))
	gross := new(big.Int).Mul(netIn, big.NewInt(bpsDenominator))
	in := ceilDiv(gross, big.NewInt(int64(bpsDenominator-feeBps)))
	if !in.IsUint64() {
		return 0, ErrInsufficientLiquidity
	}
	return in.Uint64(), nil
}

// PriceImpactBps measures how far the realized price of a fill sits
// below the spot price, in basis points.
func PriceImpactBps(inReserve, outReserve, amountIn, amountOut uint64) uint32 {
	if amountIn == 0 || outReserve == 0 || inReserve == 0 {
		return 0
	}
	spot := float64(outReserve) / float64(inReserve)
	realized := float64(amountOut) / float64(amountIn)
	if realized >= spot {
		return 0
	}
	return uint32((1 - realized/spot) * bpsDenominator)
}

// applyFeeFloor deducts feeBps from amount, rounding the kept part
// down.
func applyFeeFloor(amount uint64, feeBps uint32) uint64 {
	n := new(big.Int).Mul(big.NewInt(0).SetUint64(amount), big.NewInt(int64(bpsDenominator-feeBps)))
	n.Div(n, big.NewInt(bpsDenominator))
	return n.Uint64()
}

func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
