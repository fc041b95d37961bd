package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
	if cfg.Trading.LoopInterval.Duration != time.Minute {
		t.Errorf("loop interval = %v", cfg.Trading.LoopInterval)
	}
	if got := cfg.Exits.PairTargets["XLM-USD"]; got.TP1 != 0.46 || got.TP2 != 0.50 {
		t.Errorf("XLM targets = %+v", got)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "yolo" },
			want:   []string{`unknown mode "yolo"`},
		},
		{
			name: "live without credentials",
			mutate: func(c *Config) {
				c.Mode = "live"
			},
			want: []string{"api_key_name is required", "api_secret or encrypted_key_path"},
		},
		{
			name: "tiers leave no remainder",
			mutate: func(c *Config) {
				c.Exits.Tier1Fraction = 0.5
				c.Exits.Tier2Fraction = 0.5
			},
			want: []string{"must leave a remainder"},
		},
		{
			name: "bad pairs",
			mutate: func(c *Config) {
				c.Trading.Pairs = []string{"BTCUSD", "ETH-USD", "ETH-USD"}
			},
			want: []string{`pair "BTCUSD"`, `duplicate pair "ETH-USD"`},
		},
		{
			name: "archive needs storage",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
			},
			want: []string{"archive: requires both s3 and postgres"},
		},
		{
			name: "backtest needs a start",
			mutate: func(c *Config) {
				c.Mode = "backtest"
			},
			want: []string{"backtest: start"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coinbot.toml")
	data := `
mode = "paper"

[trading]
pairs = ["BTC-USD", "ETH-USD"]
loop_interval = "30s"

[risk]
starting_balance = 5000

[exits.pair_targets.SOL-USD]
tp1 = 200.0
tp2 = 240.0
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("COINBOT_RISK_MAX_POSITIONS", "2")
	t.Setenv("COINBOT_EXCHANGE_API_SECRET", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Trading.Pairs) != 2 || cfg.Trading.LoopInterval.Duration != 30*time.Second {
		t.Errorf("trading = %+v", cfg.Trading)
	}
	if cfg.Risk.StartingBalance != 5000 || cfg.Risk.MaxPositions != 2 {
		t.Errorf("risk = %+v", cfg.Risk)
	}
	if cfg.Risk.MaxExposure != 0.75 {
		t.Errorf("default max_exposure lost: %v", cfg.Risk.MaxExposure)
	}
	if cfg.Exits.PairTargets["SOL-USD"].TP2 != 240 {
		t.Errorf("pair targets = %+v", cfg.Exits.PairTargets)
	}
	if cfg.Exchange.APISecret != "secret" {
		t.Errorf("env override not applied")
	}
}

func TestLoadNormalizesPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coinbot.toml")
	data := `
[trading]
pairs = ["btc-usd", " Sol-Usd "]

[exits.pair_targets.sol-usd]
tp1 = 200.0
tp2 = 240.0
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := []string{"BTC-USD", "SOL-USD"}; !slices.Equal(cfg.Trading.Pairs, want) {
		t.Errorf("pairs = %v, want %v", cfg.Trading.Pairs, want)
	}
	if got, ok := cfg.Exits.PairTargets["SOL-USD"]; !ok || got.TP1 != 200 {
		t.Errorf("pair targets = %+v", cfg.Exits.PairTargets)
	}
	if _, ok := cfg.Exits.PairTargets["sol-usd"]; ok {
		t.Error("lowercase pair target key kept")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[risk]\nmax_postions = 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "risk.max_postions") {
		t.Fatalf("err = %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.APISecret = "ed25519:abc"
	cfg.Postgres.Password = "pw"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	if out.Exchange.APISecret != "***" || out.Postgres.Password != "***" || out.Notify.TelegramToken != "***" {
		t.Fatalf("secrets not redacted: %+v", out.Exchange)
	}
	if out.Redis.Password != "" {
		t.Fatalf("empty secret should stay empty")
	}
	if cfg.Exchange.APISecret != "ed25519:abc" {
		t.Fatal("original mutated")
	}

	out.Trading.Pairs[0] = "X-USD"
	if cfg.Trading.Pairs[0] == "X-USD" {
		t.Fatal("redacted copy aliases original pairs")
	}
}

func TestParseDate(t *testing.T) {
	if d, err := ParseDate("2026-01-02"); err != nil || d.Day() != 2 {
		t.Fatalf("date: %v %v", d, err)
	}
	if _, err := ParseDate("2026-01-02T03:04:05Z"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseDate("yesterday"); err == nil {
		t.Fatal("expected error")
	}
}
