package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Put records a resolved pool. Concurrent resolvers race to insert the
// same address; ON CONFLICT DO NOTHING keeps the first write and makes
// the rest no-ops.
func (s *PoolStore) Put(ctx context.Context, p *domain.PoolRef) error {
	if p.Address == "" || p.Mint == "" {
		return fmt.Errorf("%w: pool address and mint required", storage.ErrInvalidInput)
	}

	createdAt := p.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO pools (address, venue, mint, quote_mint, base_vault, quote_vault, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		p.Address,
		p.Venue,
		p.Mint,
		p.QuoteMint,
		p.BaseVault,
		p.QuoteVault,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

// GetByMint retrieves all known pools for a mint, oldest first.
func (s *PoolStore) GetByMint(ctx context.Context, mint string) ([]*domain.PoolRef, error) {
	query := `
		SELECT address, venue, mint, quote_mint, base_vault, quote_vault, created_at
		FROM pools
		WHERE mint = $1
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get pools by mint: %w", err)
	}
	defer rows.Close()

	var pools []*domain.PoolRef
	for rows.Next() {
		p, err := scanPoolRef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool row: %w", err)
		}
		pools = append(pools, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool rows: %w", err)
	}
	return pools, nil
}

// GetByAddress retrieves a pool by its account address.
func (s *PoolStore) GetByAddress(ctx context.Context, address string) (*domain.PoolRef, error) {
	query := `
		SELECT address, venue, mint, quote_mint, base_vault, quote_vault, created_at
		FROM pools
		WHERE address = $1
	`

	p, err := scanPoolRef(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool by address: %w", err)
	}
	return p, nil
}

func scanPoolRef(row pgx.Row) (*domain.PoolRef, error) {
	var p domain.PoolRef
	err := row.Scan(
		&p.Address,
		&p.Venue,
		&p.Mint,
		&p.QuoteMint,
		&p.BaseVault,
		&p.QuoteVault,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
