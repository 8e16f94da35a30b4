package clickhouse

import (
	"context"
	"fmt"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// InsertBulk appends a batch of classified events.
func (s *TradeEventStore) InsertBulk(ctx context.Context, events []*domain.TradeEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			signature, wallet, mint,
			from_amount, from_decimals, to_amount, to_decimals,
			pre_token_amount, post_token_amount,
			tx_type, direction, program_id, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.Signature, e.Who, e.Mint,
			e.FromAmount, uint8(e.FromDecimals), e.ToAmount, uint8(e.ToDecimals),
			e.PreTokenAmount, e.PostTokenAmount,
			string(e.TxType), string(e.Direction), e.ProgramID, uint64(e.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByWallet retrieves events for a source wallet within [start, end]
// (inclusive, unix seconds), ordered by timestamp ASC.
func (s *TradeEventStore) GetByWallet(ctx context.Context, wallet string, start, end int64) ([]*domain.TradeEvent, error) {
	query := `
		SELECT signature, wallet, mint,
			from_amount, from_decimals, to_amount, to_decimals,
			pre_token_amount, post_token_amount,
			tx_type, direction, program_id, timestamp
		FROM trade_events
		WHERE wallet = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by wallet: %w", err)
	}
	defer rows.Close()

	return scanTradeEvents(rows)
}

// HasSignature reports whether an event with the signature exists.
func (s *TradeEventStore) HasSignature(ctx context.Context, signature string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM trade_events WHERE signature = ?
	`, signature).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count by signature: %w", err)
	}
	return count > 0, nil
}

// chRows abstracts driver.Rows for scan helpers.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTradeEvents scans multiple rows.
func scanTradeEvents(rows chRows) ([]*domain.TradeEvent, error) {
	var events []*domain.TradeEvent

	for rows.Next() {
		var e domain.TradeEvent
		var fromDecimals, toDecimals uint8
		var txType, direction string
		var timestamp uint64

		err := rows.Scan(
			&e.Signature, &e.Who, &e.Mint,
			&e.FromAmount, &fromDecimals, &e.ToAmount, &toDecimals,
			&e.PreTokenAmount, &e.PostTokenAmount,
			&txType, &direction, &e.ProgramID, &timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade event row: %w", err)
		}

		e.FromDecimals = int(fromDecimals)
		e.ToDecimals = int(toDecimals)
		e.TxType = domain.TxType(txType)
		e.Direction = domain.Direction(direction)
		e.Timestamp = int64(timestamp)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade event rows: %w", err)
	}

	return events, nil
}
