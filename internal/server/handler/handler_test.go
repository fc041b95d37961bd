package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePortfolio struct {
	positions []domain.Position
}

func (f *fakePortfolio) Summary(context.Context) domain.PortfolioSummary {
	return domain.PortfolioSummary{
		StartingBalance: decimal.NewFromInt(1000),
		Cash:            decimal.NewFromInt(750),
		TotalBalance:    decimal.NewFromInt(1010),
		OpenPositions:   len(f.positions),
		TotalTrades:     4,
		WinningTrades:   3,
	}
}

func (f *fakePortfolio) Positions() []domain.Position { return f.positions }

func (f *fakePortfolio) Position(instrument string) (domain.Position, error) {
	for _, p := range f.positions {
		if p.Instrument == instrument {
			return p, nil
		}
	}
	return domain.Position{}, domain.ErrNoPosition
}

type fakeTrades struct {
	gotInstrument string
	gotOpts       domain.ListOpts
	err           error
}

func (f *fakeTrades) List(_ context.Context, instrument string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	f.gotInstrument, f.gotOpts = instrument, opts
	if f.err != nil {
		return nil, f.err
	}
	return []domain.TradeRecord{{
		ID:         "t1",
		Instrument: instrument,
		Kind:       domain.TradeKindBuy,
		Side:       domain.OrderSideBuy,
		Price:      decimal.NewFromInt(100),
		Quantity:   decimal.NewFromInt(2),
		Value:      decimal.NewFromInt(200),
		Timestamp:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}}, nil
}

type fakeFeed struct {
	decisions []domain.Decision
}

func (f *fakeFeed) LatestDecisions() []domain.Decision { return f.decisions }

func (f *fakeFeed) RecentDecisions(limit int) []domain.Decision {
	return f.decisions[:min(limit, len(f.decisions))]
}

type fakeHistory struct{ err error }

func (f fakeHistory) Recent(context.Context, string, int) ([]domain.Decision, error) {
	return nil, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestGetPosition(t *testing.T) {
	h := NewPortfolioHandler(&fakePortfolio{positions: []domain.Position{{
		Instrument:        "BTC-USD",
		EntryPrice:        decimal.NewFromInt(100),
		TotalQuantity:     decimal.NewFromInt(1),
		RemainingQuantity: decimal.NewFromInt(1),
		HighestPrice:      decimal.NewFromInt(100),
	}}}, "paper", discard)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/positions/{instrument}", h.GetPosition)

	tests := []struct {
		path string
		want int
	}{
		{"/api/positions/BTC-USD", http.StatusOK},
		{"/api/positions/ETH-USD", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestListPositionsEmpty(t *testing.T) {
	h := NewPortfolioHandler(&fakePortfolio{}, "paper", discard)
	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	var body struct {
		Positions []json.RawMessage `json:"positions"`
	}
	decodeBody(t, rec, &body)
	if body.Positions == nil || len(body.Positions) != 0 {
		t.Errorf("positions = %v, want empty array", body.Positions)
	}
}

func TestGetPortfolio(t *testing.T) {
	h := NewPortfolioHandler(&fakePortfolio{}, "paper", discard)
	rec := httptest.NewRecorder()
	h.GetPortfolio(rec, httptest.NewRequest(http.MethodGet, "/api/portfolio", nil))

	var body struct {
		Mode    string `json:"mode"`
		WinRate string `json:"win_rate"`
	}
	decodeBody(t, rec, &body)
	if body.Mode != "paper" || body.WinRate != "75" {
		t.Errorf("mode=%q win_rate=%q", body.Mode, body.WinRate)
	}
}

func TestListTrades(t *testing.T) {
	trades := &fakeTrades{}
	h := NewTradeHandler(trades, discard)

	rec := httptest.NewRecorder()
	h.ListTrades(rec, httptest.NewRequest(http.MethodGet,
		"/api/trades?instrument=SOL-USD&limit=10&offset=5&since=2026-03-01T00:00:00Z", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if trades.gotInstrument != "SOL-USD" {
		t.Errorf("instrument = %q", trades.gotInstrument)
	}
	if trades.gotOpts.Limit != 10 || trades.gotOpts.Offset != 5 || trades.gotOpts.Since == nil {
		t.Errorf("opts = %+v", trades.gotOpts)
	}

	var body struct {
		Trades []struct {
			ID string `json:"id"`
		} `json:"trades"`
	}
	decodeBody(t, rec, &body)
	if len(body.Trades) != 1 || body.Trades[0].ID != "t1" {
		t.Errorf("trades = %+v", body.Trades)
	}
}

func TestListTradesErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	NewTradeHandler(&fakeTrades{}, discard).
		ListTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades?since=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewTradeHandler(&fakeTrades{err: errors.New("db down")}, discard).
		ListTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("store error: status = %d", rec.Code)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"limit=10", 10},
		{"limit=-3", 50},
		{"limit=abc", 50},
		{"limit=9999", 500},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		if got := parseLimit(r, 50, 500); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestListRecentFallsBackToFeed(t *testing.T) {
	feed := &fakeFeed{decisions: []domain.Decision{
		{Instrument: "BTC-USD", Action: domain.ActionHold},
		{Instrument: "ETH-USD", Action: domain.ActionBuy},
		{Instrument: "BTC-USD", Action: domain.ActionBuy},
	}}

	tests := []struct {
		name    string
		history DecisionHistory
		query   string
		want    int
		status  int
	}{
		{"no history", nil, "instrument=BTC-USD", 2, http.StatusOK},
		{"history not found", fakeHistory{err: domain.ErrNotFound}, "", 3, http.StatusOK},
		{"limit applies", nil, "limit=1", 1, http.StatusOK},
		{"history error", fakeHistory{err: errors.New("boom")}, "", 0, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSignalHandler(feed, tt.history, discard)
			rec := httptest.NewRecorder()
			h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/signals/recent?"+tt.query, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var body struct {
				Signals []json.RawMessage `json:"signals"`
			}
			decodeBody(t, rec, &body)
			if len(body.Signals) != tt.want {
				t.Errorf("got %d signals, want %d", len(body.Signals), tt.want)
			}
		})
	}
}

func TestListLatestWithoutEngine(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSignalHandler(nil, nil, discard).ListLatest(rec, httptest.NewRequest(http.MethodGet, "/api/signals", nil))
	if got := rec.Body.String(); got != `{"signals":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name string
		deps map[string]Pinger
		want string
	}{
		{"no deps", nil, "ok"},
		{"all up", map[string]Pinger{"redis": fakePinger{}}, "ok"},
		{"one down", map[string]Pinger{"redis": fakePinger{}, "postgres": fakePinger{err: errors.New("refused")}}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.deps, discard).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body struct {
				Status string `json:"status"`
			}
			decodeBody(t, rec, &body)
			if body.Status != tt.want {
				t.Errorf("status = %q, want %q", body.Status, tt.want)
			}
		})
	}
}

type fixedStatus domain.BotStatus

func (f fixedStatus) Status() domain.BotStatus { return domain.BotStatus(f) }

func TestGetStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStatusHandler(fixedStatus{Mode: "live", Exchange: "coinbase", Cycles: 7}).
		GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["mode"] != "live" || body["cycles"] != float64(7) {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["last_cycle_at"]; ok {
		t.Error("last_cycle_at should be omitted before the first cycle")
	}
	if pairs, ok := body["pairs"].([]any); !ok || len(pairs) != 0 {
		t.Errorf("pairs = %v, want []", body["pairs"])
	}
}

type fakeAudit struct {
	event   string
	entries []domain.AuditEntry
}

func (f *fakeAudit) List(_ context.Context, event string, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	f.event = event
	return f.entries, nil
}

func TestListAuditEntries(t *testing.T) {
	audit := &fakeAudit{entries: []domain.AuditEntry{
		{ID: 2, Event: "trade_buy", Instrument: "BTC-USD", CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
	}}
	rec := httptest.NewRecorder()
	NewAuditHandler(audit, discard).ListEntries(rec, httptest.NewRequest(http.MethodGet, "/api/audit?event=trade_", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if audit.event != "trade_" {
		t.Errorf("event filter = %q, want trade_", audit.event)
	}
	var body struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Instrument != "BTC-USD" {
		t.Errorf("entries = %+v", body.Entries)
	}

	rec = httptest.NewRecorder()
	NewAuditHandler(&fakeAudit{}, discard).ListEntries(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	if got := rec.Body.String(); got != `{"entries":[]}` {
		t.Errorf("empty body = %s", got)
	}
}
