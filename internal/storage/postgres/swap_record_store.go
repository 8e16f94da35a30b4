package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// SwapRecordStore implements storage.SwapRecordStore using PostgreSQL.
type SwapRecordStore struct {
	pool *Pool
}

// NewSwapRecordStore creates a new SwapRecordStore.
func NewSwapRecordStore(pool *Pool) *SwapRecordStore {
	return &SwapRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapRecordStore = (*SwapRecordStore)(nil)

const swapRecordColumns = `
	id, signature, status, user_pubkey, swap_mode,
	input_mint, input_decimals, input_amount,
	output_mint, output_decimals, output_amount,
	fee, slot, program_id, block_time,
	sol_change, swap_sol_change, other_sol_change, created_at
`

// Insert adds a new record and fills in its generated ID.
// Returns ErrDuplicateKey when the signature was already recorded.
func (s *SwapRecordStore) Insert(ctx context.Context, r *domain.SwapRecord) error {
	query := `
		INSERT INTO swap_records (
			signature, status, user_pubkey, swap_mode,
			input_mint, input_decimals, input_amount,
			output_mint, output_decimals, output_amount,
			fee, slot, program_id, block_time,
			sol_change, swap_sol_change, other_sol_change, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	var fee *int64
	if r.Fee != nil {
		f := int64(*r.Fee)
		fee = &f
	}

	err := s.pool.QueryRow(ctx, query,
		r.Signature,
		r.Status,
		r.UserPubkey,
		r.SwapMode,
		r.InputMint,
		r.InputDecimals,
		int64(r.InputAmount),
		r.OutputMint,
		r.OutputDecimals,
		int64(r.OutputAmount),
		fee,
		r.Slot,
		r.ProgramID,
		r.Timestamp,
		r.SolChange,
		r.SwapSolChange,
		r.OtherSolChange,
		r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap record: %w", err)
	}
	return nil
}

// GetBySignature retrieves a record by transaction signature.
func (s *SwapRecordStore) GetBySignature(ctx context.Context, signature string) (*domain.SwapRecord, error) {
	query := `SELECT ` + swapRecordColumns + ` FROM swap_records WHERE signature = $1`

	row := s.pool.QueryRow(ctx, query, signature)
	r, err := scanSwapRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap record by signature: %w", err)
	}
	return r, nil
}

// ListByUser retrieves the most recent records for a user, newest first.
func (s *SwapRecordStore) ListByUser(ctx context.Context, userPubkey string, limit int) ([]*domain.SwapRecord, error) {
	query := `
		SELECT ` + swapRecordColumns + `
		FROM swap_records
		WHERE user_pubkey = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, userPubkey, limit)
	if err != nil {
		return nil, fmt.Errorf("list swap records by user: %w", err)
	}
	defer rows.Close()

	var records []*domain.SwapRecord
	for rows.Next() {
		r, err := scanSwapRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap record row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap record rows: %w", err)
	}
	return records, nil
}

// scanSwapRecord scans one row in swapRecordColumns order.
func scanSwapRecord(row pgx.Row) (*domain.SwapRecord, error) {
	var (
		r            domain.SwapRecord
		inputAmount  int64
		outputAmount int64
		fee          *int64
	)

	err := row.Scan(
		&r.ID,
		&r.Signature,
		&r.Status,
		&r.UserPubkey,
		&r.SwapMode,
		&r.InputMint,
		&r.InputDecimals,
		&inputAmount,
		&r.OutputMint,
		&r.OutputDecimals,
		&outputAmount,
		&fee,
		&r.Slot,
		&r.ProgramID,
		&r.Timestamp,
		&r.SolChange,
		&r.SwapSolChange,
		&r.OtherSolChange,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.InputAmount = uint64(inputAmount)
	r.OutputAmount = uint64(outputAmount)
	if fee != nil {
		f := uint64(*fee)
		r.Fee = &f
	}
	return &r, nil
}
