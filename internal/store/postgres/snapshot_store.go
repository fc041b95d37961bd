package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Positions
// are stored as a JSONB array on the snapshot row.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// positionRow is the JSONB shape of a persisted position. Decimals are
// marshalled as strings by shopspring/decimal.
type positionRow struct {
	Instrument        string           `json:"instrument"`
	EntryPrice        decimal.Decimal  `json:"entry_price"`
	TotalQuantity     decimal.Decimal  `json:"total_quantity"`
	RemainingQuantity decimal.Decimal  `json:"remaining_quantity"`
	HighestPrice      decimal.Decimal  `json:"highest_price"`
	Tier1Exited       bool             `json:"tier1_exited"`
	Tier2Exited       bool             `json:"tier2_exited"`
	TrailingActive    bool             `json:"trailing_active"`
	TrailingStopPrice *decimal.Decimal `json:"trailing_stop_price,omitempty"`
	StopLossPrice     *decimal.Decimal `json:"stop_loss_price,omitempty"`
	LastPrice         decimal.Decimal  `json:"last_price"`
	OpenedAt          time.Time        `json:"opened_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func toPositionRows(positions []domain.Position) []positionRow {
	rows := make([]positionRow, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, positionRow{
			Instrument:        p.Instrument,
			EntryPrice:        p.EntryPrice,
			TotalQuantity:     p.TotalQuantity,
			RemainingQuantity: p.RemainingQuantity,
			HighestPrice:      p.HighestPrice,
			Tier1Exited:       p.Tier1Exited,
			Tier2Exited:       p.Tier2Exited,
			TrailingActive:    p.TrailingActive,
			TrailingStopPrice: p.TrailingStopPrice,
			StopLossPrice:     p.StopLossPrice,
			LastPrice:         p.LastPrice,
			OpenedAt:          p.OpenedAt,
			UpdatedAt:         p.UpdatedAt,
		})
	}
	return rows
}

func fromPositionRows(rows []positionRow) []domain.Position {
	positions := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		p := domain.Position{
			Instrument:        r.Instrument,
			EntryPrice:        r.EntryPrice,
			TotalQuantity:     r.TotalQuantity,
			RemainingQuantity: r.RemainingQuantity,
			HighestPrice:      r.HighestPrice,
			Tier1Exited:       r.Tier1Exited,
			Tier2Exited:       r.Tier2Exited,
			TrailingActive:    r.TrailingActive,
			TrailingStopPrice: r.TrailingStopPrice,
			StopLossPrice:     r.StopLossPrice,
			LastPrice:         r.LastPrice,
			OpenedAt:          r.OpenedAt,
			UpdatedAt:         r.UpdatedAt,
		}
		p.UnrealizedPnL = p.MarkPrice().Sub(p.EntryPrice).Mul(p.RemainingQuantity)
		positions = append(positions, p)
	}
	return positions
}

// Save appends a snapshot. Older snapshots are kept for inspection.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.PortfolioSnapshot) error {
	positionsJSON, err := json.Marshal(toPositionRows(snap.Positions))
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot positions: %w", err)
	}

	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	const query = `
		INSERT INTO portfolio_snapshots (starting_balance, cash, realized_pnl, positions, taken_at)
		VALUES ($1::numeric, $2::numeric, $3::numeric, $4, $5)`

	_, err = s.pool.Exec(ctx, query,
		numericArg(snap.StartingBalance), numericArg(snap.Cash), numericArg(snap.RealizedPnL),
		positionsJSON, utc(takenAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: save snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or domain.ErrNotFound when none
// has been saved.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.PortfolioSnapshot, error) {
	const query = `
		SELECT id, starting_balance::text, cash::text, realized_pnl::text, positions, taken_at
		FROM portfolio_snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT 1`

	var (
		snap                     domain.PortfolioSnapshot
		starting, cash, realized string
		positionsJSON            []byte
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&snap.ID, &starting, &cash, &realized, &positionsJSON, &snap.TakenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PortfolioSnapshot{}, fmt.Errorf("postgres: latest snapshot: %w", domain.ErrNotFound)
		}
		return domain.PortfolioSnapshot{}, fmt.Errorf("postgres: latest snapshot: %w", err)
	}

	if snap.StartingBalance, err = parseNumeric("starting_balance", starting); err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	if snap.Cash, err = parseNumeric("cash", cash); err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	if snap.RealizedPnL, err = parseNumeric("realized_pnl", realized); err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	var rows []positionRow
	if len(positionsJSON) > 0 {
		if err := json.Unmarshal(positionsJSON, &rows); err != nil {
			return domain.PortfolioSnapshot{}, fmt.Errorf("postgres: unmarshal snapshot positions: %w", err)
		}
	}
	snap.Positions = fromPositionRows(rows)
	return snap, nil
}
