package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
	"github.com/alanyoungcy/coinbot/internal/strategy"
)

// Dashboard document names, relative to the export prefix.
const (
	PortfolioDoc    = "portfolio.json"
	PositionsDoc    = "positions.json"
	SignalsDoc      = "signals.json"
	TradeHistoryDoc = "trade_history.json"
)

// PortfolioDocument is the portfolio.json payload.
type PortfolioDocument struct {
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Cash            decimal.Decimal `json:"cash"`
	PositionValue   decimal.Decimal `json:"position_value"`
	TotalBalance    decimal.Decimal `json:"total_balance"`
	ReturnPct       decimal.Decimal `json:"return_pct"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	OpenPositions   int             `json:"open_positions"`
	MaxPositions    int             `json:"max_positions"`
	TotalTrades     int             `json:"total_trades"`
	WinningTrades   int             `json:"winning_trades"`
	WinRate         decimal.Decimal `json:"win_rate"`
	Exposure        decimal.Decimal `json:"exposure"`
	Mode            string          `json:"mode"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PositionDocument is one entry of positions.json.
type PositionDocument struct {
	Instrument        string           `json:"instrument"`
	EntryPrice        decimal.Decimal  `json:"entry_price"`
	CurrentPrice      decimal.Decimal  `json:"current_price"`
	TotalQuantity     decimal.Decimal  `json:"total_quantity"`
	RemainingQuantity decimal.Decimal  `json:"remaining_quantity"`
	HighestPrice      decimal.Decimal  `json:"highest_price"`
	UnrealizedPnL     decimal.Decimal  `json:"unrealized_pnl"`
	UnrealizedPct     decimal.Decimal  `json:"unrealized_pct"`
	Tier1Exited       bool             `json:"tier1_exited"`
	Tier2Exited       bool             `json:"tier2_exited"`
	TrailingActive    bool             `json:"trailing_active"`
	TrailingStop      *decimal.Decimal `json:"trailing_stop,omitempty"`
	StopLoss          *decimal.Decimal `json:"stop_loss,omitempty"`
	OpenedAt          time.Time        `json:"opened_at"`
}

// SignalDocument is the per-instrument signal snapshot in signals.json.
type SignalDocument struct {
	Instrument     string          `json:"instrument"`
	Price          decimal.Decimal `json:"price"`
	RSI            *float64        `json:"rsi"`
	EMA            *float64        `json:"ema50"`
	Uptrend        bool            `json:"uptrend"`
	MACD           *float64        `json:"macd"`
	MACDSignal     *float64        `json:"macd_signal"`
	MACDBullish    bool            `json:"macd_bullish"`
	ATR            *float64        `json:"atr"`
	Volatility     *float64        `json:"volatility"`
	Action         string          `json:"action"`
	Reason         string          `json:"reason"`
	CanBuy         bool            `json:"can_buy"`
	ThrottleStatus string          `json:"throttle_status"`
	Timestamp      time.Time       `json:"timestamp"`
}

// TradeDocument is one entry of trade_history.json.
type TradeDocument struct {
	ID         string           `json:"id"`
	Instrument string           `json:"instrument"`
	Kind       string           `json:"kind"`
	Side       string           `json:"side"`
	Price      decimal.Decimal  `json:"price"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Value      decimal.Decimal  `json:"value"`
	PnLUSD     *decimal.Decimal `json:"pnl_usd,omitempty"`
	PnLPct     *decimal.Decimal `json:"pnl_pct,omitempty"`
	Reason     string           `json:"reason"`
	OrderID    string           `json:"order_id,omitempty"`
	Simulated  bool             `json:"simulated"`
	Timestamp  time.Time        `json:"timestamp"`
}

// TradeSource supplies the trades included in trade_history.json.
type TradeSource interface {
	List(ctx context.Context, instrument string, opts domain.ListOpts) ([]domain.TradeRecord, error)
}

// ExportService writes the dashboard documents to every configured blob
// writer after each cycle.
type ExportService struct {
	writers    []domain.BlobWriter
	prefix     string
	mode       string
	positions  *PositionService
	trades     TradeSource
	tradeLimit int
	latest     func() []domain.Decision
	logger     *slog.Logger
}

// NewExportService creates an ExportService. latest returns the most recent
// decision per instrument.
func NewExportService(
	writers []domain.BlobWriter,
	prefix, mode string,
	positions *PositionService,
	trades TradeSource,
	latest func() []domain.Decision,
	logger *slog.Logger,
) *ExportService {
	return &ExportService{
		writers:    writers,
		prefix:     prefix,
		mode:       mode,
		positions:  positions,
		trades:     trades,
		tradeLimit: 100,
		latest:     latest,
		logger:     logger,
	}
}

// OnCycle implements strategy.CycleObserver.
func (s *ExportService) OnCycle(ctx context.Context, _ strategy.CycleReport) {
	if err := s.Export(ctx); err != nil {
		s.logger.WarnContext(ctx, "export_service: export failed",
			slog.String("error", err.Error()),
		)
	}
}

// Export builds and uploads all four documents. It keeps going after a
// failed upload and returns the first error.
func (s *ExportService) Export(ctx context.Context) error {
	if len(s.writers) == 0 {
		return nil
	}
	docs, err := s.Build(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for name, body := range docs {
		key := path.Join(s.prefix, name)
		for _, w := range s.writers {
			if err := w.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("export_service: put %s: %w", key, err)
				}
			}
		}
	}
	return firstErr
}

// Build renders the documents keyed by file name.
func (s *ExportService) Build(ctx context.Context) (map[string][]byte, error) {
	portfolio := PortfolioView(s.positions.Summary(ctx), s.mode)

	positions := make([]PositionDocument, 0)
	for _, p := range s.positions.Positions() {
		positions = append(positions, PositionView(p))
	}

	signals := make([]SignalDocument, 0)
	if s.latest != nil {
		for _, dec := range s.latest() {
			signals = append(signals, SignalSnapshot(dec))
		}
	}

	trades := make([]TradeDocument, 0)
	if s.trades != nil {
		recs, err := s.trades.List(ctx, "", domain.ListOpts{Limit: s.tradeLimit})
		if err != nil {
			return nil, fmt.Errorf("export_service: list trades: %w", err)
		}
		for _, t := range recs {
			trades = append(trades, TradeView(t))
		}
	}

	out := make(map[string][]byte, 4)
	for name, v := range map[string]any{
		PortfolioDoc:    portfolio,
		PositionsDoc:    positions,
		SignalsDoc:      signals,
		TradeHistoryDoc: trades,
	} {
		body, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("export_service: marshal %s: %w", name, err)
		}
		out[name] = body
	}
	return out, nil
}

// PortfolioView renders a summary with money rounded to cents.
func PortfolioView(sum domain.PortfolioSummary, mode string) PortfolioDocument {
	doc := PortfolioDocument{
		StartingBalance: sum.StartingBalance.Round(2),
		Cash:            sum.Cash.Round(2),
		PositionValue:   sum.PositionValue.Round(2),
		TotalBalance:    sum.TotalBalance.Round(2),
		ReturnPct:       sum.ReturnPct.Round(2),
		RealizedPnL:     sum.RealizedPnL.Round(2),
		UnrealizedPnL:   sum.UnrealizedPnL.Round(2),
		OpenPositions:   sum.OpenPositions,
		MaxPositions:    sum.MaxPositions,
		TotalTrades:     sum.TotalTrades,
		WinningTrades:   sum.WinningTrades,
		Exposure:        sum.Exposure.Round(4),
		Mode:            mode,
		UpdatedAt:       sum.UpdatedAt.UTC(),
	}
	if sum.TotalTrades > 0 {
		doc.WinRate = decimal.NewFromInt(int64(sum.WinningTrades)).
			Div(decimal.NewFromInt(int64(sum.TotalTrades))).Mul(decimal.NewFromInt(100)).Round(1)
	}
	return doc
}

// PositionView renders one open position.
func PositionView(p domain.Position) PositionDocument {
	return PositionDocument{
		Instrument:        p.Instrument,
		EntryPrice:        p.EntryPrice,
		CurrentPrice:      p.MarkPrice(),
		TotalQuantity:     p.TotalQuantity,
		RemainingQuantity: p.RemainingQuantity,
		HighestPrice:      p.HighestPrice,
		UnrealizedPnL:     p.UnrealizedPnL.Round(2),
		UnrealizedPct:     p.UnrealizedPct().Round(2),
		Tier1Exited:       p.Tier1Exited,
		Tier2Exited:       p.Tier2Exited,
		TrailingActive:    p.TrailingActive,
		TrailingStop:      p.TrailingStopPrice,
		StopLoss:          p.StopLossPrice,
		OpenedAt:          p.OpenedAt.UTC(),
	}
}

// TradeView renders one trade history entry.
func TradeView(t domain.TradeRecord) TradeDocument {
	return TradeDocument{
		ID:         t.ID,
		Instrument: t.Instrument,
		Kind:       string(t.Kind),
		Side:       string(t.Side),
		Price:      t.Price,
		Quantity:   t.Quantity,
		Value:      t.Value.Round(2),
		PnLUSD:     t.PnLUSD,
		PnLPct:     t.PnLPct,
		Reason:     t.Reason,
		OrderID:    t.OrderID,
		Simulated:  t.Simulated,
		Timestamp:  t.Timestamp.UTC(),
	}
}

// SignalSnapshot derives the dashboard view of a decision.
func SignalSnapshot(dec domain.Decision) SignalDocument {
	ind := dec.Indicators
	doc := SignalDocument{
		Instrument:     dec.Instrument,
		Price:          dec.Price,
		RSI:            ind.RSI,
		EMA:            ind.EMA,
		MACD:           ind.MACD,
		MACDSignal:     ind.MACDSignal,
		ATR:            ind.ATR,
		Action:         string(dec.Action),
		Reason:         dec.Reason,
		CanBuy:         dec.CanBuy,
		ThrottleStatus: dec.ThrottleStatus,
		Timestamp:      dec.CreatedAt.UTC(),
	}
	price := dec.Price.InexactFloat64()
	if ind.EMA != nil {
		doc.Uptrend = price > *ind.EMA
	}
	if ind.MACD != nil && ind.MACDSignal != nil {
		doc.MACDBullish = *ind.MACD > *ind.MACDSignal
	}
	if ind.ATR != nil && price > 0 {
		v := *ind.ATR / price
		doc.Volatility = &v
	}
	return doc
}
