package txbuilder

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-copytrader/internal/codec"
	"solana-copytrader/internal/curve"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/solana"
)

// pump.fun protocol accounts.
var (
	pumpFunProgram        = solanago.MustPublicKeyFromBase58(solana.PumpFunProgramID)
	pumpFunGlobal         = solanago.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	pumpFunFeeRecipient   = solanago.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")
	pumpFunEventAuthority = solanago.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7Xxwp9qx")
)

// PumpFunBuilder trades against the pre-migration bonding curve.
type PumpFunBuilder struct {
	rpc solana.RPCClient
}

// NewPumpFunBuilder creates a bonding curve builder.
func NewPumpFunBuilder(rpc solana.RPCClient) *PumpFunBuilder {
	return &PumpFunBuilder{rpc: rpc}
}

var _ Builder = (*PumpFunBuilder)(nil)

func (b *PumpFunBuilder) Venue() domain.Venue { return domain.VenuePumpFun }

func (b *PumpFunBuilder) Build(ctx context.Context, wallet *Wallet, swap *domain.SwapEvent) (*BuiltTx, error) {
	mint := tradedMint(swap)

	curveAddr, err := solana.BondingCurveAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("derive bonding curve: %w", err)
	}
	info, err := b.rpc.GetAccountInfo(ctx, curveAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch bonding curve: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("no bonding curve for mint %s", mint)
	}
	bc, err := codec.DecodeBondingCurve(info.Data)
	if err != nil {
		return nil, err
	}
	if bc.Complete {
		return nil, fmt.Errorf("bonding curve for %s has migrated", mint)
	}

	owner := wallet.owner()
	mintKey, err := pk(mint)
	if err != nil {
		return nil, err
	}
	curveKey, err := pk(curveAddr)
	if err != nil {
		return nil, err
	}
	curveATA, err := ata(curveAddr, mint)
	if err != nil {
		return nil, fmt.Errorf("curve token account: %w", err)
	}
	userATA, err := ata(wallet.PublicKey(), mint)
	if err != nil {
		return nil, fmt.Errorf("user token account: %w", err)
	}
	creatorVault, err := b.creatorVault(bc)
	if err != nil {
		return nil, err
	}

	instrs := feeInstructions(owner, swap.PriorityFee)
	quote := Quote{Venue: domain.VenuePumpFun}

	if isBuy(swap) {
		lamportsIn := swap.Amount
		tokensOut, err := curve.BondingBuyQuote(bc, lamportsIn)
		if err != nil {
			return nil, fmt.Errorf("quote buy: %w", err)
		}

		impact := curve.PriceImpactBps(bc.VirtualSolReserves, bc.VirtualTokenReserves, lamportsIn, tokensOut)
		bps := effectiveSlippageBps(swap, impact)
		maxSolCost := curve.MaxAmountIn(lamportsIn, bps)

		quote.InAmount = lamportsIn
		quote.ExpectedOut = tokensOut
		quote.MinAmountOut = tokensOut
		quote.SlippageBps = bps
		quote.PriceImpactBps = impact

		instrs = append(instrs, createATAInstruction(owner, owner, userATA, mintKey))
		instrs = append(instrs, solanago.NewInstruction(pumpFunProgram,
			b.accounts(mintKey, curveKey, curveATA, userATA, owner, creatorVault),
			codec.EncodeBuy(tokensOut, maxSolCost)))
	} else {
		tokensIn, closeAfter, err := b.resolveSellAmount(ctx, userATA, swap.Amount)
		if err != nil {
			return nil, err
		}

		lamportsOut, err := curve.BondingSellQuote(bc, tokensIn)
		if err != nil {
			return nil, fmt.Errorf("quote sell: %w", err)
		}
		impact := curve.PriceImpactBps(bc.VirtualTokenReserves, bc.VirtualSolReserves, tokensIn, lamportsOut)
		bps := effectiveSlippageBps(swap, impact)
		minSolOutput := curve.MinAmountOut(lamportsOut, bps)

		quote.InAmount = tokensIn
		quote.ExpectedOut = lamportsOut
		quote.MinAmountOut = minSolOutput
		quote.SlippageBps = bps
		quote.PriceImpactBps = impact

		instrs = append(instrs, solanago.NewInstruction(pumpFunProgram,
			b.accounts(mintKey, curveKey, curveATA, userATA, owner, creatorVault),
			codec.EncodeSell(tokensIn, minSolOutput)))
		if closeAfter {
			instrs = append(instrs, closeAccountInstruction(userATA, owner))
		}
	}

	tx, b64, err := assembleAndSign(ctx, b.rpc, wallet, instrs)
	if err != nil {
		return nil, err
	}
	return &BuiltTx{Tx: tx, Base64: b64, Quote: quote}, nil
}

// resolveSellAmount caps the requested amount at the live balance.
// Selling the whole balance closes the emptied account afterwards to
// reclaim its rent.
func (b *PumpFunBuilder) resolveSellAmount(ctx context.Context, userATA solanago.PublicKey, requested uint64) (uint64, bool, error) {
	info, err := b.rpc.GetAccountInfo(ctx, userATA.String())
	if err != nil {
		return 0, false, fmt.Errorf("fetch token account: %w", err)
	}
	if info == nil {
		return 0, false, fmt.Errorf("no token account %s to sell from", userATA)
	}
	account, err := codec.DecodeTokenAccount(info.Data)
	if err != nil {
		return 0, false, err
	}
	if account.Amount == 0 {
		return 0, false, fmt.Errorf("token account %s is empty", userATA)
	}

	if requested >= account.Amount {
		return account.Amount, true, nil
	}
	return requested, false, nil
}

// creatorVault derives the creator fee vault. Pre-creator-fee curves
// fall back to the protocol fee recipient.
func (b *PumpFunBuilder) creatorVault(bc *codec.BondingCurve) (solanago.PublicKey, error) {
	if bc.Creator == "" {
		return pumpFunFeeRecipient, nil
	}
	creatorBytes, err := pk(bc.Creator)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("curve creator: %w", err)
	}
	addr, _, err := solana.DerivePDA([][]byte{[]byte("creator-vault"), creatorBytes.Bytes()}, solana.PumpFunProgramID)
	if err != nil {
		return solanago.PublicKey{}, err
	}
	return pk(addr)
}

// accounts is the buy/sell account list. Both instructions share the
// same order.
func (b *PumpFunBuilder) accounts(mint, bondingCurve, curveATA, userATA, user, creatorVault solanago.PublicKey) solanago.AccountMetaSlice {
	return solanago.AccountMetaSlice{
		solanago.NewAccountMeta(pumpFunGlobal, false, false),
		solanago.NewAccountMeta(pumpFunFeeRecipient, true, false),
		solanago.NewAccountMeta(mint, false, false),
		solanago.NewAccountMeta(bondingCurve, true, false),
		solanago.NewAccountMeta(curveATA, true, false),
		solanago.NewAccountMeta(userATA, true, false),
		solanago.NewAccountMeta(user, true, true),
		solanago.NewAccountMeta(systemProgram, false, false),
		solanago.NewAccountMeta(tokenProgram, false, false),
		solanago.NewAccountMeta(creatorVault, true, false),
		solanago.NewAccountMeta(pumpFunEventAuthority, false, false),
		solanago.NewAccountMeta(pumpFunProgram, false, false),
	}
}
