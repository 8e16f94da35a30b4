package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

func createTestPool(address, mint string, venue domain.Venue) *domain.PoolRef {
	return &domain.PoolRef{
		Address:    address,
		Venue:      venue,
		Mint:       mint,
		QuoteMint:  domain.WSOLMint,
		BaseVault:  "baseVault111",
		QuoteVault: "quoteVault111",
	}
}

func TestPoolStore_PutAndGetByAddress(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolStore(pool)

	p := createTestPool("pool-addr-1", "mint-1", domain.VenuePumpSwap)

	err := store.Put(ctx, p)
	require.NoError(t, err)

	retrieved, err := store.GetByAddress(ctx, "pool-addr-1")
	require.NoError(t, err)

	assert.Equal(t, "pool-addr-1", retrieved.Address)
	assert.Equal(t, domain.VenuePumpSwap, retrieved.Venue)
	assert.Equal(t, "mint-1", retrieved.Mint)
	assert.Equal(t, domain.WSOLMint, retrieved.QuoteMint)
	assert.Equal(t, "baseVault111", retrieved.BaseVault)
	assert.NotZero(t, retrieved.CreatedAt)
}

func TestPoolStore_PutIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolStore(pool)

	p := createTestPool("pool-idem", "mint-idem", domain.VenueMeteora)
	require.NoError(t, store.Put(ctx, p))

	// Racing resolvers re-insert the same address; first write wins.
	again := createTestPool("pool-idem", "mint-idem", domain.VenueMeteora)
	again.BaseVault = "differentVault"
	require.NoError(t, store.Put(ctx, again))

	retrieved, err := store.GetByAddress(ctx, "pool-idem")
	require.NoError(t, err)
	assert.Equal(t, "baseVault111", retrieved.BaseVault)
}

func TestPoolStore_PutInvalid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPoolStore(pool)

	err := store.Put(context.Background(), &domain.PoolRef{Address: "no-mint"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPoolStore_GetByMint(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolStore(pool)

	// A mint can have a bonding curve and a migrated AMM pool
	curve := createTestPool("curve-addr", "multi-mint", domain.VenuePumpFun)
	curve.CreatedAt = 1000
	require.NoError(t, store.Put(ctx, curve))

	amm := createTestPool("amm-addr", "multi-mint", domain.VenuePumpSwap)
	amm.CreatedAt = 2000
	require.NoError(t, store.Put(ctx, amm))

	require.NoError(t, store.Put(ctx, createTestPool("other-addr", "other-mint", domain.VenueMeteora)))

	pools, err := store.GetByMint(ctx, "multi-mint")
	require.NoError(t, err)
	require.Len(t, pools, 2)

	// Oldest first
	assert.Equal(t, "curve-addr", pools[0].Address)
	assert.Equal(t, "amm-addr", pools[1].Address)

	empty, err := store.GetByMint(ctx, "unknown-mint")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPoolStore_GetByAddressNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPoolStore(pool)

	_, err := store.GetByAddress(context.Background(), "missing-addr")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
