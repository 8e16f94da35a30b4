package curve

import (
	"math/big"

	"solana-copytrader/internal/codec"
)

// BondingCurveFeeBps is the flat fee the bonding curve program takes
// on the SOL side of every trade.
const BondingCurveFeeBps = 100

// BondingBuyQuote prices tokens out for lamports in against the
// virtual reserves. The fill is capped by the real token reserves:
// buying past the cap completes the curve.
func BondingBuyQuote(bc *codec.BondingCurve, lamportsIn uint64) (uint64, error) {
	if lamportsIn == 0 {
		return 0, ErrZeroAmount
	}
	if bc.Complete || bc.RealTokenReserves == 0 {
		return 0, ErrInsufficientLiquidity
	}

	netIn := applyFeeFloor(lamportsIn, BondingCurveFeeBps)

	// tokensOut = vTok - k/(vSol + netIn), with k = vSol * vTok
	k := new(big.Int).Mul(
		big.NewInt(0).SetUint64(bc.VirtualSolReserves),
		big.NewInt(0).SetUint64(bc.VirtualTokenReserves),
	)
	newSol := new(big.Int).Add(big.NewInt(0).SetUint64(bc.VirtualSolReserves), big.NewInt(0).SetUint64(netIn))
	newTok := k.Div(k, newSol)
	out := new(big.Int).Sub(big.NewInt(0).SetUint64(bc.VirtualTokenReserves), newTok)

	tokensOut := out.Uint64()
	if tokensOut > bc.RealTokenReserves {
		tokensOut = bc.RealTokenReserves
	}
	return tokensOut, nil
}

// BondingSellQuote prices lamports out for tokens in. The fee comes
// off the SOL proceeds.
func BondingSellQuote(bc *codec.BondingCurve, tokensIn uint64) (uint64, error) {
	if tokensIn == 0 {
		return 0, ErrZeroAmount
	}
	if bc.Complete {
		return 0, ErrInsufficientLiquidity
	}

	// lamportsOut = vSol - k/(vTok + tokensIn)
	k := new(big.Int).Mul(
		big.NewInt(0).SetUint64(bc.VirtualSolReserves),
		big.NewInt(0).SetUint64(bc.VirtualTokenReserves),
	)
	newTok := new(big.Int).Add(big.NewInt(0).SetUint64(bc.VirtualTokenReserves), big.NewInt(0).SetUint64(tokensIn))
	newSol := k.Div(k, newTok)
	out := new(big.Int).Sub(big.NewInt(0).SetUint64(bc.VirtualSolReserves), newSol)

	gross := out.Uint64()
	if gross > bc.RealSolReserves {
		return 0, ErrInsufficientLiquidity
	}
	return applyFeeFloor(gross, BondingCurveFeeBps), nil
}

// BondingSpotPriceLamports returns the marginal price of one whole
// token in lamports, given the token's decimals.
func BondingSpotPriceLamports(bc *codec.BondingCurve, decimals int) float64 {
	if bc.VirtualTokenReserves == 0 {
		return 0
	}
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return float64(bc.VirtualSolReserves) / float64(bc.VirtualTokenReserves) * scale
}
