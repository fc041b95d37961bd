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

// DecisionStore implements domain.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a new DecisionStore backed by the given connection pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// InsertBatch writes one cycle's decisions in a single round trip.
func (s *DecisionStore) InsertBatch(ctx context.Context, decisions []domain.Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO decisions (
			id, instrument, action, price, fraction, reason,
			can_buy, throttle_status, rsi, ema, macd, macd_signal, atr, created_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6,
			$7, $8, $9, $10, $11, $12, $13, $14
		) ON CONFLICT (id) DO NOTHING`

	for _, d := range decisions {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := d.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		batch.Queue(query,
			id, d.Instrument, string(d.Action), numericArg(d.Price), numericArg(d.Fraction), d.Reason,
			d.CanBuy, d.ThrottleStatus,
			d.Indicators.RSI, d.Indicators.EMA, d.Indicators.MACD, d.Indicators.MACDSignal, d.Indicators.ATR,
			utc(createdAt),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range decisions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert decision batch item %d (%s): %w", i, decisions[i].Instrument, err)
		}
	}
	return nil
}

// ListRecent returns the latest decisions, newest first. An empty
// instrument matches every instrument.
func (s *DecisionStore) ListRecent(ctx context.Context, instrument string, limit int) ([]domain.Decision, error) {
	base := `SELECT id::text, instrument, action, price::text, fraction::text, reason,
		can_buy, throttle_status, rsi, ema, macd, macd_signal, atr, created_at
		FROM decisions WHERE 1=1`
	var args []any
	if instrument != "" {
		base += ` AND instrument = $1`
		args = append(args, instrument)
	}
	query, args := listQuery(base, "created_at", args, domain.ListOpts{Limit: limit})

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.Decision
	for rows.Next() {
		var (
			d               domain.Decision
			action          string
			price, fraction string
		)
		if err := rows.Scan(
			&d.ID, &d.Instrument, &action, &price, &fraction, &d.Reason,
			&d.CanBuy, &d.ThrottleStatus,
			&d.Indicators.RSI, &d.Indicators.EMA, &d.Indicators.MACD, &d.Indicators.MACDSignal, &d.Indicators.ATR,
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		d.Action = domain.Action(action)
		if d.Price, err = parseNumeric("price", price); err != nil {
			return nil, err
		}
		if d.Fraction, err = parseNumeric("fraction", fraction); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decisions rows: %w", err)
	}
	return out, nil
}

// DeleteBefore prunes decisions older than the cutoff.
func (s *DecisionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM decisions WHERE created_at < $1`
	tag, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete decisions: %w", err)
	}
	return tag.RowsAffected(), nil
}
