package txbuilder

import (
	"context"
	"encoding/binary"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-copytrader/internal/codec"
	"solana-copytrader/internal/curve"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/pools"
	"solana-copytrader/internal/solana"
)

var meteoraProgram = solanago.MustPublicKeyFromBase58(solana.MeteoraProgramID)

// MeteoraBuilder trades against a dynamic bin liquidity pair.
type MeteoraBuilder struct {
	rpc      solana.RPCClient
	resolver *pools.Resolver
}

// NewMeteoraBuilder creates a bin liquidity builder.
func NewMeteoraBuilder(rpc solana.RPCClient, resolver *pools.Resolver) *MeteoraBuilder {
	return &MeteoraBuilder{rpc: rpc, resolver: resolver}
}

var _ Builder = (*MeteoraBuilder)(nil)

func (b *MeteoraBuilder) Venue() domain.Venue { return domain.VenueMeteora }

func (b *MeteoraBuilder) Build(ctx context.Context, wallet *Wallet, swap *domain.SwapEvent) (*BuiltTx, error) {
	mint := tradedMint(swap)

	pool, err := b.resolver.GetPreferredPool(ctx, mint)
	if err != nil {
		return nil, err
	}
	if pool.Venue != domain.VenueMeteora {
		return nil, fmt.Errorf("preferred pool for %s is %s, not a bin liquidity pair", mint, pool.Venue)
	}

	info, err := b.rpc.GetAccountInfo(ctx, pool.Address)
	if err != nil {
		return nil, fmt.Errorf("fetch pair: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("pair %s missing on chain", pool.Address)
	}
	pair, err := codec.DecodeLbPair(info.Data)
	if err != nil {
		return nil, err
	}

	// Selling X yields Y. A buy spends SOL, so it swaps for Y exactly
	// when SOL is the X side.
	swapForY := isBuy(swap) == (pair.TokenXMint == domain.WSOLMint)

	arrays, arrayKeys, err := b.binArrays(ctx, pool.Address, pair.ActiveID)
	if err != nil {
		return nil, err
	}

	amountIn := swap.Amount
	walk, err := curve.WalkBins(pair, arrays, amountIn, swapForY)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	// Impact from bins crossed: each crossing moves the price one step.
	impact := uint32(walk.BinsCrossed) * uint32(pair.BinStep)
	bps := effectiveSlippageBps(swap, impact)
	minOut := curve.MinAmountOut(walk.AmountOut, bps)

	keys, err := b.pairKeys(pool, pair, wallet.PublicKey(), swapForY)
	if err != nil {
		return nil, err
	}

	owner := wallet.owner()
	instrs := feeInstructions(owner, swap.PriorityFee)
	instrs = append(instrs,
		createATAInstruction(owner, owner, keys.userIn, keys.inMint),
		createATAInstruction(owner, owner, keys.userOut, keys.outMint),
	)
	if isBuy(swap) {
		// Wrap the SOL spend before the swap, unwrap leftovers after.
		instrs = append(instrs,
			transferInstruction(owner, keys.userIn, amountIn),
			syncNativeInstruction(keys.userIn),
		)
	}
	instrs = append(instrs, solanago.NewInstruction(meteoraProgram,
		keys.metas(owner, arrayKeys),
		codec.EncodeDlmmSwap(amountIn, minOut)))
	if isBuy(swap) {
		instrs = append(instrs, closeAccountInstruction(keys.userIn, owner))
	} else {
		instrs = append(instrs, closeAccountInstruction(keys.userOut, owner))
	}

	tx, b64, err := assembleAndSign(ctx, b.rpc, wallet, instrs)
	if err != nil {
		return nil, err
	}
	return &BuiltTx{
		Tx:     tx,
		Base64: b64,
		Quote: Quote{
			Venue:          domain.VenueMeteora,
			InAmount:       amountIn,
			ExpectedOut:    walk.AmountOut,
			MinAmountOut:   minOut,
			SlippageBps:    bps,
			PriceImpactBps: impact,
		},
	}, nil
}

// binArrays fetches the array holding the active bin and its two
// neighbors; a fill rarely crosses further.
func (b *MeteoraBuilder) binArrays(ctx context.Context, pairAddr string, activeID int32) ([]*codec.BinArray, []solanago.PublicKey, error) {
	center := int64(activeID) / codec.BinsPerArray
	if activeID < 0 && int64(activeID)%codec.BinsPerArray != 0 {
		center--
	}

	addrs := make([]string, 0, 3)
	for _, idx := range []int64{center - 1, center, center + 1} {
		addr, err := binArrayAddress(pairAddr, idx)
		if err != nil {
			return nil, nil, err
		}
		addrs = append(addrs, addr)
	}

	infos, err := b.rpc.GetMultipleAccounts(ctx, addrs)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch bin arrays: %w", err)
	}

	var (
		arrays []*codec.BinArray
		keys   []solanago.PublicKey
	)
	for i, info := range infos {
		if info == nil {
			continue
		}
		ba, err := codec.DecodeBinArray(info.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("bin array %s: %w", addrs[i], err)
		}
		key, err := pk(addrs[i])
		if err != nil {
			return nil, nil, err
		}
		arrays = append(arrays, ba)
		keys = append(keys, key)
	}
	if len(arrays) == 0 {
		return nil, nil, fmt.Errorf("no bin arrays on chain for pair %s", pairAddr)
	}
	return arrays, keys, nil
}

// binArrayAddress derives the array account. Seeds:
// ["bin_array", pair, index i64 LE].
func binArrayAddress(pairAddr string, index int64) (string, error) {
	pairKey, err := pk(pairAddr)
	if err != nil {
		return "", err
	}
	idx := make([]byte, 8)
	binary.LittleEndian.PutUint64(idx, uint64(index))

	addr, _, err := solana.DerivePDA([][]byte{[]byte("bin_array"), pairKey.Bytes(), idx}, solana.MeteoraProgramID)
	return addr, err
}

type meteoraKeys struct {
	pair     solanago.PublicKey
	reserveX solanago.PublicKey
	reserveY solanago.PublicKey
	mintX    solanago.PublicKey
	mintY    solanago.PublicKey
	inMint   solanago.PublicKey
	outMint  solanago.PublicKey
	userIn   solanago.PublicKey
	userOut  solanago.PublicKey
	oracle   solanago.PublicKey
	eventAu  solanago.PublicKey
}

func (b *MeteoraBuilder) pairKeys(pool *domain.PoolRef, pair *codec.LbPair, user string, swapForY bool) (*meteoraKeys, error) {
	keys := &meteoraKeys{}
	var err error
	if keys.pair, err = pk(pool.Address); err != nil {
		return nil, err
	}
	if keys.reserveX, err = pk(pair.ReserveX); err != nil {
		return nil, err
	}
	if keys.reserveY, err = pk(pair.ReserveY); err != nil {
		return nil, err
	}
	if keys.mintX, err = pk(pair.TokenXMint); err != nil {
		return nil, err
	}
	if keys.mintY, err = pk(pair.TokenYMint); err != nil {
		return nil, err
	}

	inMint, outMint := pair.TokenXMint, pair.TokenYMint
	keys.inMint, keys.outMint = keys.mintX, keys.mintY
	if !swapForY {
		inMint, outMint = outMint, inMint
		keys.inMint, keys.outMint = keys.outMint, keys.inMint
	}
	if keys.userIn, err = ata(user, inMint); err != nil {
		return nil, err
	}
	if keys.userOut, err = ata(user, outMint); err != nil {
		return nil, err
	}

	oracleAddr, _, err := solana.DerivePDA([][]byte{[]byte("oracle"), keys.pair.Bytes()}, solana.MeteoraProgramID)
	if err != nil {
		return nil, err
	}
	if keys.oracle, err = pk(oracleAddr); err != nil {
		return nil, err
	}

	eventAddr, _, err := solana.DerivePDA([][]byte{[]byte("__event_authority")}, solana.MeteoraProgramID)
	if err != nil {
		return nil, err
	}
	if keys.eventAu, err = pk(eventAddr); err != nil {
		return nil, err
	}
	return keys, nil
}

func (k *meteoraKeys) metas(user solanago.PublicKey, binArrays []solanago.PublicKey) solanago.AccountMetaSlice {
	metas := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(k.pair, true, false),
		solanago.NewAccountMeta(meteoraProgram, false, false), // no bitmap extension
		solanago.NewAccountMeta(k.reserveX, true, false),
		solanago.NewAccountMeta(k.reserveY, true, false),
		solanago.NewAccountMeta(k.userIn, true, false),
		solanago.NewAccountMeta(k.userOut, true, false),
		solanago.NewAccountMeta(k.mintX, false, false),
		solanago.NewAccountMeta(k.mintY, false, false),
		solanago.NewAccountMeta(k.oracle, true, false),
		solanago.NewAccountMeta(meteoraProgram, false, false), // no host fee
		solanago.NewAccountMeta(user, true, true),
		solanago.NewAccountMeta(tokenProgram, false, false),
		solanago.NewAccountMeta(tokenProgram, false, false),
		solanago.NewAccountMeta(k.eventAu, false, false),
		solanago.NewAccountMeta(meteoraProgram, false, false),
	}
	for _, ba := range binArrays {
		metas = append(metas, solanago.NewAccountMeta(ba, true, false))
	}
	return metas
}
