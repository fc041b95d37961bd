package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id::text, instrument, kind, side,
	entry_price::text, price::text, quantity::text, value::text,
	pnl_usd::text, pnl_pct::text, reason, order_id, simulated, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t                        domain.TradeRecord
			kind, side               string
			entry, price, qty, value string
			pnlUSD, pnlPct           *string
		)
		if err := rows.Scan(
			&t.ID, &t.Instrument, &kind, &side,
			&entry, &price, &qty, &value,
			&pnlUSD, &pnlPct, &t.Reason, &t.OrderID, &t.Simulated, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		t.Kind = domain.TradeKind(kind)
		t.Side = domain.OrderSide(side)

		var err error
		if t.EntryPrice, err = parseNumeric("entry_price", entry); err != nil {
			return nil, err
		}
		if t.Price, err = parseNumeric("price", price); err != nil {
			return nil, err
		}
		if t.Quantity, err = parseNumeric("quantity", qty); err != nil {
			return nil, err
		}
		if t.Value, err = parseNumeric("value", value); err != nil {
			return nil, err
		}
		if t.PnLUSD, err = parseNullableNumeric("pnl_usd", pnlUSD); err != nil {
			return nil, err
		}
		if t.PnLPct, err = parseNullableNumeric("pnl_pct", pnlPct); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert appends a trade record. Records without an ID get a fresh UUID;
// re-inserting an existing ID is a no-op.
func (s *TradeStore) Insert(ctx context.Context, t domain.TradeRecord) error {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}

	const query = `
		INSERT INTO trades (
			id, instrument, kind, side,
			entry_price, price, quantity, value,
			pnl_usd, pnl_pct, reason, order_id, simulated, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7::numeric, $8::numeric,
			$9::numeric, $10::numeric, $11, $12, $13, $14
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		id, t.Instrument, string(t.Kind), string(t.Side),
		numericArg(t.EntryPrice), numericArg(t.Price), numericArg(t.Quantity), numericArg(t.Value),
		nullableNumericArg(t.PnLUSD), nullableNumericArg(t.PnLPct),
		t.Reason, t.OrderID, t.Simulated, utc(t.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s %s: %w", t.Instrument, t.Kind, err)
	}
	return nil
}

// List returns trades newest first with pagination and time filtering.
func (s *TradeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listQuery(`SELECT `+tradeSelectCols+` FROM trades WHERE 1=1`, "executed_at", nil, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListByInstrument returns trades for one instrument, newest first.
func (s *TradeStore) ListByInstrument(ctx context.Context, instrument string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listQuery(
		`SELECT `+tradeSelectCols+` FROM trades WHERE instrument = $1`,
		"executed_at", []any{instrument}, opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", instrument, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for %s: %w", instrument, err)
	}
	return trades, nil
}

// ListBefore returns up to limit trades executed before the cutoff, oldest
// first. Used by the archiver.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades
		WHERE executed_at < $1
		ORDER BY executed_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before cutoff: %w", err)
	}
	return trades, nil
}

// DeleteBefore removes trades executed before the cutoff and returns the
// number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM trades WHERE executed_at < $1`
	tag, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
