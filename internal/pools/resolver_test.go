package pools

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/solana/stub"
	"solana-copytrader/internal/storage/memory"
)

func bondingCurveData(complete bool) []byte {
	data := make([]byte, 49)
	copy(data[:8], []byte{0x17, 0xb7, 0xf8, 0x37, 0x60, 0xd8, 0xac, 0x60})
	binary.LittleEndian.PutUint64(data[8:], 1_073_000_000_000_000)
	binary.LittleEndian.PutUint64(data[16:], 30_000_000_000)
	binary.LittleEndian.PutUint64(data[24:], 793_100_000_000_000)
	binary.LittleEndian.PutUint64(data[32:], 0)
	binary.LittleEndian.PutUint64(data[40:], 1_000_000_000_000_000)
	if complete {
		data[48] = 1
	}
	return data
}

func ammPoolData(baseVault, quoteVault byte) []byte {
	data := make([]byte, 211)
	copy(data[:8], []byte{0xf1, 0x9a, 0x6d, 0x04, 0x11, 0xb1, 0x6d, 0xbc})
	data[8] = 254
	for i := 0; i < 32; i++ {
		data[11+4*32+i] = baseVault
		data[11+5*32+i] = quoteVault
	}
	binary.LittleEndian.PutUint64(data[203:], 1)
	return data
}

func pubkeyFromByte(b byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	return base58.Encode(raw)
}

func TestRankedCache_PreferredCountsHits(t *testing.T) {
	c := newRankedCache()

	a := &domain.PoolRef{Address: "a", Mint: "m"}
	b := &domain.PoolRef{Address: "b", Mint: "m"}
	c.put(a)
	c.put(b)

	// First preferred pick gets the hit, making it sticky
	first := c.preferred("m")
	require.NotNil(t, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Address, c.preferred("m").Address)
	}

	assert.Nil(t, c.preferred("unknown"))
}

func TestRankedCache_TieBreaksOnRecency(t *testing.T) {
	c := newRankedCache()

	// Registry rows populate oldest first; with no hits yet the newer
	// pool must still win.
	c.put(&domain.PoolRef{Address: "old", Mint: "m", CreatedAt: 100})
	c.put(&domain.PoolRef{Address: "new", Mint: "m", CreatedAt: 200})

	assert.Equal(t, "new", c.preferred("m").Address)
	assert.Equal(t, "new", c.preferred("m").Address)
}

func TestRankedCache_EvictsLowestRank(t *testing.T) {
	c := newRankedCache()

	for i := 0; i < maxPoolsPerMint; i++ {
		c.put(&domain.PoolRef{Address: fmt.Sprintf("p-%d", i), Mint: "m"})
	}
	// Rank p-0 up so it survives eviction
	hot := c.preferred("m")
	require.Equal(t, "p-0", hot.Address)

	c.put(&domain.PoolRef{Address: "p-new", Mint: "m"})

	assert.NotNil(t, c.get("m", "p-new"))
	assert.NotNil(t, c.get("m", "p-0"))
	assert.Len(t, c.entries["m"], maxPoolsPerMint)
}

func TestResolver_RegistryHitPrefersNewest(t *testing.T) {
	store := memory.NewPoolStore()
	rpc := stub.NewRPCClient()
	resolver := NewResolver(store, rpc, nil)
	ctx := context.Background()

	curve := &domain.PoolRef{Address: "curve-addr", Venue: domain.VenuePumpFun, Mint: "mint-1", CreatedAt: 100}
	amm := &domain.PoolRef{Address: "amm-addr", Venue: domain.VenuePumpSwap, Mint: "mint-1", CreatedAt: 200}
	require.NoError(t, store.Put(ctx, curve))
	require.NoError(t, store.Put(ctx, amm))

	got, err := resolver.GetPreferredPool(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, "amm-addr", got.Address)

	// Second call is served by the cache
	got, err = resolver.GetPreferredPool(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, "amm-addr", got.Address)
}

func TestResolver_DiscoversLiveBondingCurve(t *testing.T) {
	store := memory.NewPoolStore()
	rpc := stub.NewRPCClient()
	resolver := NewResolver(store, rpc, nil)
	ctx := context.Background()

	mint := domain.WSOLMint
	curveAddr, err := solana.BondingCurveAddress(mint)
	require.NoError(t, err)
	rpc.SetAccount(curveAddr, &solana.AccountInfo{Data: bondingCurveData(false)})

	got, err := resolver.GetPreferredPool(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, curveAddr, got.Address)
	assert.Equal(t, domain.VenuePumpFun, got.Venue)
	assert.Equal(t, domain.WSOLMint, got.QuoteMint)

	// Resolution populated the durable registry
	persisted, err := store.GetByAddress(ctx, curveAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.VenuePumpFun, persisted.Venue)
}

func TestResolver_MigratedCurveFallsThroughToIndex(t *testing.T) {
	store := memory.NewPoolStore()
	rpc := stub.NewRPCClient()
	ctx := context.Background()

	mint := domain.WSOLMint
	curveAddr, err := solana.BondingCurveAddress(mint)
	require.NoError(t, err)
	rpc.SetAccount(curveAddr, &solana.AccountInfo{Data: bondingCurveData(true)})

	poolAddr := pubkeyFromByte(7)
	rpc.SetAccount(poolAddr, &solana.AccountInfo{Data: ammPoolData(3, 4)})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, mint, r.URL.Query().Get("mint"))
		json.NewEncoder(w).Encode([]discoveredPool{
			{Address: poolAddr, Venue: "pumpswap", BaseMint: mint, QuoteMint: domain.WSOLMint},
		})
	}))
	defer srv.Close()

	resolver := NewResolver(store, rpc, NewHTTPDiscovery(srv.URL))

	got, err := resolver.GetPreferredPool(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, poolAddr, got.Address)
	assert.Equal(t, domain.VenuePumpSwap, got.Venue)
	assert.Equal(t, pubkeyFromByte(3), got.BaseVault)
	assert.Equal(t, pubkeyFromByte(4), got.QuoteVault)
}

func TestResolver_VenueNotFound(t *testing.T) {
	store := memory.NewPoolStore()
	rpc := stub.NewRPCClient()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resolver := NewResolver(store, rpc, NewHTTPDiscovery(srv.URL))

	_, err := resolver.GetPreferredPool(context.Background(), domain.WSOLMint)
	assert.ErrorIs(t, err, ErrVenueNotFound)
}
