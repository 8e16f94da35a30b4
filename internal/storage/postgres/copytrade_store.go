package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// CopyTradeStore implements storage.CopyTradeStore using PostgreSQL.
type CopyTradeStore struct {
	pool *Pool
}

// NewCopyTradeStore creates a new CopyTradeStore.
func NewCopyTradeStore(pool *Pool) *CopyTradeStore {
	return &CopyTradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CopyTradeStore = (*CopyTradeStore)(nil)

const copyTradeColumns = `
	id, owner, chat_id, target_wallet, wallet_alias,
	is_fixed_buy, fixed_buy_amount, auto_follow,
	no_sell, anti_sandwich, auto_slippage, custom_slippage_bps,
	priority_fee, active, created_at, updated_at
`

// Create validates and inserts a subscription, filling in its generated ID.
func (s *CopyTradeStore) Create(ctx context.Context, ct *domain.CopyTrade) error {
	if err := ct.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now().UnixMilli()
	if ct.CreatedAt == 0 {
		ct.CreatedAt = now
	}
	ct.UpdatedAt = now

	query := `
		INSERT INTO copy_trades (
			owner, chat_id, target_wallet, wallet_alias,
			is_fixed_buy, fixed_buy_amount, auto_follow,
			no_sell, anti_sandwich, auto_slippage, custom_slippage_bps,
			priority_fee, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		ct.Owner,
		ct.ChatID,
		ct.TargetWallet,
		ct.WalletAlias,
		ct.IsFixedBuy,
		ct.FixedBuyAmount,
		ct.AutoFollow,
		ct.NoSell,
		ct.AntiSandwich,
		ct.AutoSlippage,
		int64(ct.CustomSlippageBps),
		int64(ct.PriorityFee),
		ct.Active,
		ct.CreatedAt,
		ct.UpdatedAt,
	).Scan(&ct.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert copy trade: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription.
func (s *CopyTradeStore) GetByID(ctx context.Context, id int64) (*domain.CopyTrade, error) {
	query := `SELECT ` + copyTradeColumns + ` FROM copy_trades WHERE id = $1`

	ct, err := scanCopyTrade(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get copy trade by id: %w", err)
	}
	return ct, nil
}

// ListByOwner retrieves all subscriptions of a follower.
func (s *CopyTradeStore) ListByOwner(ctx context.Context, owner string) ([]*domain.CopyTrade, error) {
	query := `SELECT ` + copyTradeColumns + ` FROM copy_trades WHERE owner = $1 ORDER BY id ASC`
	return s.list(ctx, query, owner)
}

// ListActive retrieves all active subscriptions.
func (s *CopyTradeStore) ListActive(ctx context.Context) ([]*domain.CopyTrade, error) {
	query := `SELECT ` + copyTradeColumns + ` FROM copy_trades WHERE active ORDER BY id ASC`
	return s.list(ctx, query)
}

// ListActiveByTarget retrieves active subscriptions following a wallet.
func (s *CopyTradeStore) ListActiveByTarget(ctx context.Context, targetWallet string) ([]*domain.CopyTrade, error) {
	query := `SELECT ` + copyTradeColumns + ` FROM copy_trades WHERE active AND target_wallet = $1 ORDER BY id ASC`
	return s.list(ctx, query, targetWallet)
}

// Update persists changed settings.
func (s *CopyTradeStore) Update(ctx context.Context, ct *domain.CopyTrade) error {
	if err := ct.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	ct.UpdatedAt = time.Now().UnixMilli()

	query := `
		UPDATE copy_trades SET
			wallet_alias = $2,
			is_fixed_buy = $3, fixed_buy_amount = $4, auto_follow = $5,
			no_sell = $6, anti_sandwich = $7,
			auto_slippage = $8, custom_slippage_bps = $9,
			priority_fee = $10, active = $11, updated_at = $12
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		ct.ID,
		ct.WalletAlias,
		ct.IsFixedBuy,
		ct.FixedBuyAmount,
		ct.AutoFollow,
		ct.NoSell,
		ct.AntiSandwich,
		ct.AutoSlippage,
		int64(ct.CustomSlippageBps),
		int64(ct.PriorityFee),
		ct.Active,
		ct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update copy trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetActive toggles a subscription and returns its updated state.
func (s *CopyTradeStore) SetActive(ctx context.Context, id int64, active bool) (*domain.CopyTrade, error) {
	query := `
		UPDATE copy_trades SET active = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + copyTradeColumns

	ct, err := scanCopyTrade(s.pool.QueryRow(ctx, query, id, active, time.Now().UnixMilli()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("set copy trade active: %w", err)
	}
	return ct, nil
}

// Delete removes a subscription.
func (s *CopyTradeStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM copy_trades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete copy trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *CopyTradeStore) list(ctx context.Context, query string, args ...interface{}) ([]*domain.CopyTrade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list copy trades: %w", err)
	}
	defer rows.Close()

	var cts []*domain.CopyTrade
	for rows.Next() {
		ct, err := scanCopyTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan copy trade row: %w", err)
		}
		cts = append(cts, ct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate copy trade rows: %w", err)
	}
	return cts, nil
}

// scanCopyTrade scans one row in copyTradeColumns order.
func scanCopyTrade(row pgx.Row) (*domain.CopyTrade, error) {
	var (
		ct          domain.CopyTrade
		slippageBps int64
		priorityFee int64
	)

	err := row.Scan(
		&ct.ID,
		&ct.Owner,
		&ct.ChatID,
		&ct.TargetWallet,
		&ct.WalletAlias,
		&ct.IsFixedBuy,
		&ct.FixedBuyAmount,
		&ct.AutoFollow,
		&ct.NoSell,
		&ct.AntiSandwich,
		&ct.AutoSlippage,
		&slippageBps,
		&priorityFee,
		&ct.Active,
		&ct.CreatedAt,
		&ct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ct.CustomSlippageBps = uint32(slippageBps)
	ct.PriorityFee = uint64(priorityFee)
	return &ct, nil
}
