package portfolio

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestSizerSize(t *testing.T) {
	leveraged := DefaultConfig()
	leveraged.MaxExposure = d("1.5")
	leveraged.MaxPerTrade = d("1")

	tests := []struct {
		name       string
		cfg        Config
		cash       string
		total      string
		open       int
		price      string
		atr        *decimal.Decimal
		wantQty    string
		wantReason string
	}{
		{"fresh portfolio", DefaultConfig(), "1000", "1000", 0, "10", nil, "25", ""},
		{"max positions", DefaultConfig(), "1000", "1000", 4, "10", nil, "0", "max positions"},
		{"exposure exhausted", DefaultConfig(), "260", "1000", 2, "10", nil, "0", "too small"},
		{"clamped to cash", leveraged, "100", "1000", 1, "10", nil, "10", ""},
		{"atr below risk cap", DefaultConfig(), "1000", "1000", 0, "10", dp("0.5"), "25", ""},
		{"atr risk cap", DefaultConfig(), "1000", "1000", 0, "10", dp("1"), "13.33333333", ""},
		{"zero atr ignored", DefaultConfig(), "1000", "1000", 0, "10", dp("0"), "25", ""},
		{"invalid price", DefaultConfig(), "1000", "1000", 0, "0", nil, "0", "invalid price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSizer(tt.cfg)
			qty, reason := s.Size(d(tt.cash), d(tt.total), tt.open, d(tt.price), tt.atr)
			if !qty.Equal(d(tt.wantQty)) {
				t.Errorf("expected qty %s, got %s (%s)", tt.wantQty, qty, reason)
			}
			if reason == "" {
				t.Error("expected a rationale")
			}
			if tt.wantReason != "" && !strings.Contains(reason, tt.wantReason) {
				t.Errorf("expected reason containing %q, got %q", tt.wantReason, reason)
			}
		})
	}
}

func TestSizerBounds(t *testing.T) {
	cfg := DefaultConfig()
	s := NewSizer(cfg)
	total := d("1000")
	epsilon := d("0.00000001")

	for _, cash := range []string{"1000", "900", "750", "600", "400", "251"} {
		for _, price := range []string{"0.0731", "1", "3.3333", "10", "97123.45"} {
			for _, atr := range []*decimal.Decimal{nil, dp("0.001"), dp("0.5"), dp("50")} {
				c := d(cash)
				p := d(price)
				qty, reason := s.Size(c, total, 1, p, atr)
				if qty.IsNegative() {
					t.Fatalf("negative quantity for cash=%s price=%s", cash, price)
				}
				if qty.IsZero() {
					if reason == "" {
						t.Fatalf("zero quantity without reason for cash=%s price=%s", cash, price)
					}
					continue
				}
				value := qty.Mul(p)
				if value.GreaterThan(c) {
					t.Errorf("cash=%s price=%s: value %s exceeds cash", cash, price, value)
				}
				used := total.Sub(c).Add(value)
				if used.GreaterThan(cfg.MaxExposure.Mul(total).Add(epsilon)) {
					t.Errorf("cash=%s price=%s: exposure %s above limit", cash, price, used)
				}
			}
		}
	}
}
