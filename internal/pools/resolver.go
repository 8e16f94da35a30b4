// Package pools resolves the preferred liquidity venue for a mint.
// Resolution is layered: in-process ranked cache, then the durable
// pool registry, then on-chain and index discovery. Every layer that
// misses is populated on the way back up.
package pools

import (
	"context"
	"errors"
	"fmt"
	"log"

	"solana-copytrader/internal/codec"
	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/storage"
)

// ErrVenueNotFound is returned when no source knows a pool for the mint.
var ErrVenueNotFound = errors.New("no venue found for mint")

// Resolver finds and caches the preferred pool per mint.
type Resolver struct {
	cache     *rankedCache
	store     storage.PoolStore
	rpc       solana.RPCClient
	discovery Discovery
}

// NewResolver creates a Resolver. discovery may be nil, restricting
// cold-miss resolution to the on-chain bonding curve probe.
func NewResolver(store storage.PoolStore, rpc solana.RPCClient, discovery Discovery) *Resolver {
	return &Resolver{
		cache:     newRankedCache(),
		store:     store,
		rpc:       rpc,
		discovery: discovery,
	}
}

// GetPreferredPool returns the highest-ranked pool for a mint,
// resolving and populating the cache and registry on a miss.
// Concurrent cold misses may each do the round trip; the registry
// deduplicates on insert and rank updates are atomic either way.
func (r *Resolver) GetPreferredPool(ctx context.Context, mint string) (*domain.PoolRef, error) {
	if p := r.cache.preferred(mint); p != nil {
		return p, nil
	}

	// Durable registry
	known, err := r.store.GetByMint(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("pool registry lookup: %w", err)
	}
	if len(known) > 0 {
		for _, p := range known {
			r.cache.put(p)
		}
		// Rows come oldest first; a migrated pool supersedes the curve.
		return known[len(known)-1], nil
	}

	found, err := r.discover(ctx, mint)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVenueNotFound, mint)
	}

	for _, p := range found {
		if err := r.store.Put(ctx, p); err != nil {
			// Cache still serves the pool; registry catches up next miss.
			log.Printf("[pools] persist %s: %v", p.Address, err)
		}
		r.cache.put(p)
	}
	return found[len(found)-1], nil
}

// discover probes the chain and the external index for pools.
func (r *Resolver) discover(ctx context.Context, mint string) ([]*domain.PoolRef, error) {
	var found []*domain.PoolRef

	curve, err := r.probeBondingCurve(ctx, mint)
	if err != nil {
		return nil, err
	}
	migrated := false
	if curve != nil {
		if curve.live {
			found = append(found, curve.ref)
		} else {
			migrated = true
		}
	}

	// A live bonding curve is the only venue pre-migration; skip the
	// index unless the curve is absent or completed.
	if r.discovery != nil && (curve == nil || migrated) {
		indexed, err := r.discovery.FindPools(ctx, mint)
		if err != nil {
			return nil, fmt.Errorf("pool discovery: %w", err)
		}
		for _, ref := range indexed {
			if err := r.fillVaults(ctx, ref); err != nil {
				log.Printf("[pools] decode %s (%s): %v", ref.Address, ref.Venue, err)
				continue
			}
			found = append(found, ref)
		}
	}

	return found, nil
}

type curveProbe struct {
	ref  *domain.PoolRef
	live bool // false once the curve completed (liquidity migrated)
}

// probeBondingCurve derives the pump.fun curve address for the mint
// and checks whether it exists on chain. Returns nil when the mint was
// never a pump.fun token.
func (r *Resolver) probeBondingCurve(ctx context.Context, mint string) (*curveProbe, error) {
	addr, err := solana.BondingCurveAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("derive bonding curve: %w", err)
	}

	info, err := r.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch bonding curve %s: %w", addr, err)
	}
	if info == nil || len(info.Data) == 0 {
		return nil, nil
	}

	curve, err := codec.DecodeBondingCurve(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode bonding curve %s: %w", addr, err)
	}

	return &curveProbe{
		ref: &domain.PoolRef{
			Address:   addr,
			Venue:     domain.VenuePumpFun,
			Mint:      mint,
			QuoteMint: domain.WSOLMint,
		},
		live: !curve.Complete,
	}, nil
}

// fillVaults fetches the pool account and fills in the vault addresses
// the builders need, validating the account against its venue layout.
func (r *Resolver) fillVaults(ctx context.Context, ref *domain.PoolRef) error {
	info, err := r.rpc.GetAccountInfo(ctx, ref.Address)
	if err != nil {
		return err
	}
	if info == nil || len(info.Data) == 0 {
		return fmt.Errorf("account %s not found", ref.Address)
	}

	switch ref.Venue {
	case domain.VenuePumpSwap:
		pool, err := codec.DecodeAmmPool(info.Data)
		if err != nil {
			return err
		}
		ref.BaseVault = pool.BaseVault
		ref.QuoteVault = pool.QuoteVault
		if ref.QuoteMint == "" {
			ref.QuoteMint = pool.QuoteMint
		}
	case domain.VenueMeteora:
		pair, err := codec.DecodeLbPair(info.Data)
		if err != nil {
			return err
		}
		ref.BaseVault = pair.ReserveX
		ref.QuoteVault = pair.ReserveY
		if ref.QuoteMint == "" {
			ref.QuoteMint = pair.TokenYMint
		}
	default:
		return fmt.Errorf("unsupported venue %q", ref.Venue)
	}
	return nil
}
