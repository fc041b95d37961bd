package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: " postgres://u@h/db ", Host: "ignored"},
			want: "postgres://u@h/db",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{User: "bot", Password: "pw", Database: "coinbot"},
			want: "postgres://bot:pw@localhost:5432/coinbot?sslmode=disable",
		},
		{
			name: "password is escaped",
			cfg:  ClientConfig{Host: "db", Port: 6543, User: "bot", Password: "p@ss/word", Database: "x", SSLMode: "require"},
			want: "postgres://bot:p%40ss%2Fword@db:6543/x?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := listQuery("SELECT * FROM trades WHERE instrument = $1", "executed_at",
		[]any{"BTC-USD"}, domain.ListOpts{Since: &since, Limit: 10, Offset: 5})

	want := "SELECT * FROM trades WHERE instrument = $1 AND executed_at >= $2 ORDER BY executed_at DESC LIMIT $3 OFFSET $4"
	if q != want {
		t.Fatalf("query = %q, want %q", q, want)
	}
	if len(args) != 4 || args[0] != "BTC-USD" || args[2] != 10 || args[3] != 5 {
		t.Fatalf("args = %v", args)
	}

	q, args = listQuery("SELECT 1 WHERE 1=1", "created_at", nil, domain.ListOpts{})
	if !strings.HasSuffix(q, "ORDER BY created_at DESC") || len(args) != 0 {
		t.Fatalf("bare query = %q args %v", q, args)
	}
}

func TestPositionRowsKeepState(t *testing.T) {
	stop := decimal.RequireFromString("98.5")
	in := []domain.Position{{
		Instrument:        "ETH-USD",
		EntryPrice:        decimal.NewFromInt(100),
		TotalQuantity:     decimal.NewFromInt(2),
		RemainingQuantity: decimal.RequireFromString("1.5"),
		HighestPrice:      decimal.NewFromInt(110),
		Tier1Exited:       true,
		TrailingActive:    true,
		TrailingStopPrice: &stop,
		LastPrice:         decimal.NewFromInt(104),
	}}

	out := fromPositionRows(toPositionRows(in))
	if len(out) != 1 {
		t.Fatalf("got %d positions", len(out))
	}
	p := out[0]
	if !p.Tier1Exited || p.Tier2Exited || !p.TrailingActive {
		t.Fatalf("flags lost: %+v", p)
	}
	if p.TrailingStopPrice == nil || !p.TrailingStopPrice.Equal(stop) {
		t.Fatalf("trailing stop = %v", p.TrailingStopPrice)
	}
	if p.StopLossPrice != nil {
		t.Fatalf("stop loss should stay nil")
	}
	// (104 - 100) * 1.5
	if !p.UnrealizedPnL.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("unrealized = %s", p.UnrealizedPnL)
	}
}

func TestNullableNumeric(t *testing.T) {
	if d, err := parseNullableNumeric("pnl", nil); err != nil || d != nil {
		t.Fatalf("nil input: %v %v", d, err)
	}
	s := "-12.5"
	d, err := parseNullableNumeric("pnl", &s)
	if err != nil || !d.Equal(decimal.RequireFromString("-12.5")) {
		t.Fatalf("parse: %v %v", d, err)
	}
	bad := "abc"
	if _, err := parseNullableNumeric("pnl", &bad); err == nil {
		t.Fatal("expected error")
	}
	if nullableNumericArg(nil) != nil {
		t.Fatal("expected nil arg")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames(migrationsFS)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("migrations = %v", names)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"trade_":      `trade\_`,
		"100%":        `100\%`,
		`a\b`:         `a\\b`,
		"portfolio.x": "portfolio.x",
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}
