package txbuilder

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-copytrader/internal/codec"
	"solana-copytrader/internal/curve"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/pools"
	"solana-copytrader/internal/solana"
)

// Constant-product pool fee, basis points of the input.
const pumpSwapFeeBps = 25

var (
	pumpSwapProgram        = solanago.MustPublicKeyFromBase58(solana.PumpSwapProgramID)
	pumpSwapGlobalConfig   = solanago.MustPublicKeyFromBase58("ADyA8hdefvWN2dbGGWFotbzWxrAvLW83WG6QCVXvJKqw")
	pumpSwapFeeRecipient   = solanago.MustPublicKeyFromBase58("62qc2CNXwrYqQScmEdiZFFAnJR262PxWEuNQtxfafNgV")
	pumpSwapEventAuthority = solanago.MustPublicKeyFromBase58("GS4CU59F31iL7aR2Q8zVS8DRrcRnXX1yjQ66TqNVQnaR")
)

// PumpSwapBuilder trades against the post-migration constant-product
// pool.
type PumpSwapBuilder struct {
	rpc      solana.RPCClient
	resolver *pools.Resolver
}

// NewPumpSwapBuilder creates a constant-product pool builder.
func NewPumpSwapBuilder(rpc solana.RPCClient, resolver *pools.Resolver) *PumpSwapBuilder {
	return &PumpSwapBuilder{rpc: rpc, resolver: resolver}
}

var _ Builder = (*PumpSwapBuilder)(nil)

func (b *PumpSwapBuilder) Venue() domain.Venue { return domain.VenuePumpSwap }

func (b *PumpSwapBuilder) Build(ctx context.Context, wallet *Wallet, swap *domain.SwapEvent) (*BuiltTx, error) {
	mint := tradedMint(swap)

	pool, err := b.resolver.GetPreferredPool(ctx, mint)
	if err != nil {
		return nil, err
	}
	if pool.Venue != domain.VenuePumpSwap {
		return nil, fmt.Errorf("preferred pool for %s is %s, not a constant-product pool", mint, pool.Venue)
	}

	baseReserve, quoteReserve, err := b.vaultReserves(ctx, pool)
	if err != nil {
		return nil, err
	}

	owner := wallet.owner()
	keys, err := b.poolKeys(pool, wallet.PublicKey())
	if err != nil {
		return nil, err
	}

	instrs := feeInstructions(owner, swap.PriorityFee)
	// Both legs ride ATAs; creation is idempotent.
	instrs = append(instrs,
		createATAInstruction(owner, owner, keys.userBase, keys.baseMint),
		createATAInstruction(owner, owner, keys.userQuote, keys.quoteMint),
	)

	quote := Quote{Venue: domain.VenuePumpSwap}

	if isBuy(swap) {
		lamportsIn := swap.Amount
		baseOut, err := curve.ConstantProductOut(quoteReserve, baseReserve, lamportsIn, pumpSwapFeeBps)
		if err != nil {
			return nil, fmt.Errorf("quote buy: %w", err)
		}

		impact := curve.PriceImpactBps(quoteReserve, baseReserve, lamportsIn, baseOut)
		bps := effectiveSlippageBps(swap, impact)
		maxQuoteIn := curve.MaxAmountIn(lamportsIn, bps)

		quote.InAmount = lamportsIn
		quote.ExpectedOut = baseOut
		quote.MinAmountOut = baseOut
		quote.SlippageBps = bps
		quote.PriceImpactBps = impact

		// Wrap the spend: fund the WSOL account up to the slippage
		// bound, then reconcile its token amount.
		instrs = append(instrs,
			transferInstruction(owner, keys.userQuote, maxQuoteIn),
			syncNativeInstruction(keys.userQuote),
			solanago.NewInstruction(pumpSwapProgram, keys.metas(owner),
				codec.EncodeBuy(baseOut, maxQuoteIn)),
			closeAccountInstruction(keys.userQuote, owner),
		)
	} else {
		baseIn, closeAfter, err := b.resolveSellAmount(ctx, keys.userBase, swap.Amount)
		if err != nil {
			return nil, err
		}

		quoteOut, err := curve.ConstantProductOut(baseReserve, quoteReserve, baseIn, pumpSwapFeeBps)
		if err != nil {
			return nil, fmt.Errorf("quote sell: %w", err)
		}
		impact := curve.PriceImpactBps(baseReserve, quoteReserve, baseIn, quoteOut)
		bps := effectiveSlippageBps(swap, impact)
		minQuoteOut := curve.MinAmountOut(quoteOut, bps)

		quote.InAmount = baseIn
		quote.ExpectedOut = quoteOut
		quote.MinAmountOut = minQuoteOut
		quote.SlippageBps = bps
		quote.PriceImpactBps = impact

		instrs = append(instrs,
			solanago.NewInstruction(pumpSwapProgram, keys.metas(owner),
				codec.EncodeSell(baseIn, minQuoteOut)),
			// Unwrap the proceeds.
			closeAccountInstruction(keys.userQuote, owner),
		)
		if closeAfter {
			instrs = append(instrs, closeAccountInstruction(keys.userBase, owner))
		}
	}

	tx, b64, err := assembleAndSign(ctx, b.rpc, wallet, instrs)
	if err != nil {
		return nil, err
	}
	return &BuiltTx{Tx: tx, Base64: b64, Quote: quote}, nil
}

// vaultReserves reads the pool's two vault balances in one call.
func (b *PumpSwapBuilder) vaultReserves(ctx context.Context, pool *domain.PoolRef) (base, quoteAmt uint64, err error) {
	infos, err := b.rpc.GetMultipleAccounts(ctx, []string{pool.BaseVault, pool.QuoteVault})
	if err != nil {
		return 0, 0, fmt.Errorf("fetch pool vaults: %w", err)
	}
	if len(infos) != 2 || infos[0] == nil || infos[1] == nil {
		return 0, 0, fmt.Errorf("pool %s vaults missing on chain", pool.Address)
	}

	baseAccount, err := codec.DecodeTokenAccount(infos[0].Data)
	if err != nil {
		return 0, 0, fmt.Errorf("base vault: %w", err)
	}
	quoteAccount, err := codec.DecodeTokenAccount(infos[1].Data)
	if err != nil {
		return 0, 0, fmt.Errorf("quote vault: %w", err)
	}
	return baseAccount.Amount, quoteAccount.Amount, nil
}

func (b *PumpSwapBuilder) resolveSellAmount(ctx context.Context, userBase solanago.PublicKey, requested uint64) (uint64, bool, error) {
	info, err := b.rpc.GetAccountInfo(ctx, userBase.String())
	if err != nil {
		return 0, false, fmt.Errorf("fetch token account: %w", err)
	}
	if info == nil {
		return 0, false, fmt.Errorf("no token account %s to sell from", userBase)
	}
	account, err := codec.DecodeTokenAccount(info.Data)
	if err != nil {
		return 0, false, err
	}
	if account.Amount == 0 {
		return 0, false, fmt.Errorf("token account %s is empty", userBase)
	}
	if requested >= account.Amount {
		return account.Amount, true, nil
	}
	return requested, false, nil
}

type pumpSwapKeys struct {
	pool        solanago.PublicKey
	baseMint    solanago.PublicKey
	quoteMint   solanago.PublicKey
	userBase    solanago.PublicKey
	userQuote   solanago.PublicKey
	baseVault   solanago.PublicKey
	quoteVault  solanago.PublicKey
	feeRecipATA solanago.PublicKey
}

func (b *PumpSwapBuilder) poolKeys(pool *domain.PoolRef, user string) (*pumpSwapKeys, error) {
	keys := &pumpSwapKeys{}
	var err error
	if keys.pool, err = pk(pool.Address); err != nil {
		return nil, err
	}
	if keys.baseMint, err = pk(pool.Mint); err != nil {
		return nil, err
	}
	if keys.quoteMint, err = pk(pool.QuoteMint); err != nil {
		return nil, err
	}
	if keys.baseVault, err = pk(pool.BaseVault); err != nil {
		return nil, err
	}
	if keys.quoteVault, err = pk(pool.QuoteVault); err != nil {
		return nil, err
	}
	if keys.userBase, err = ata(user, pool.Mint); err != nil {
		return nil, err
	}
	if keys.userQuote, err = ata(user, pool.QuoteMint); err != nil {
		return nil, err
	}
	if keys.feeRecipATA, err = ata(pumpSwapFeeRecipient.String(), pool.QuoteMint); err != nil {
		return nil, err
	}
	return keys, nil
}

func (k *pumpSwapKeys) metas(user solanago.PublicKey) solanago.AccountMetaSlice {
	return solanago.AccountMetaSlice{
		solanago.NewAccountMeta(k.pool, false, false),
		solanago.NewAccountMeta(user, true, true),
		solanago.NewAccountMeta(pumpSwapGlobalConfig, false, false),
		solanago.NewAccountMeta(k.baseMint, false, false),
		solanago.NewAccountMeta(k.quoteMint, false, false),
		solanago.NewAccountMeta(k.userBase, true, false),
		solanago.NewAccountMeta(k.userQuote, true, false),
		solanago.NewAccountMeta(k.baseVault, true, false),
		solanago.NewAccountMeta(k.quoteVault, true, false),
		solanago.NewAccountMeta(pumpSwapFeeRecipient, false, false),
		solanago.NewAccountMeta(k.feeRecipATA, true, false),
		solanago.NewAccountMeta(tokenProgram, false, false),
		solanago.NewAccountMeta(tokenProgram, false, false),
		solanago.NewAccountMeta(systemProgram, false, false),
		solanago.NewAccountMeta(ataProgram, false, false),
		solanago.NewAccountMeta(pumpSwapEventAuthority, false, false),
		solanago.NewAccountMeta(pumpSwapProgram, false, false),
	}
}
