package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"trade_exit", " "}, discardLogger())
	ctx := context.Background()

	if err := n.Notify(ctx, "trade_entry", "entry", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(ctx, "trade_exit", "exit", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.NotifyAll(ctx, "all", ""); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	want := []string{"exit", "all"}
	if strings.Join(s.titles, ",") != strings.Join(want, ",") {
		t.Errorf("delivered %v, want %v", s.titles, want)
	}
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeSender{name: "bad", err: boom}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapping %v", err, boom)
	}
	if len(good.titles) != 1 {
		t.Error("second sender skipped after first failed")
	}
}

func TestTelegramSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL)
	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "42" || got["text"] != "*Title*\nbody" {
		t.Errorf("payload = %v", got)
	}
}

func TestDiscordSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want status 400", err)
	}
}

func TestFormatTrade(t *testing.T) {
	loss := decimal.RequireFromString("-17.5")
	pct := decimal.RequireFromString("-10")
	title, body := FormatTrade(domain.TradeRecord{
		Instrument: "BTC-USD",
		Kind:       domain.TradeKindFullExit,
		Price:      decimal.RequireFromString("9"),
		Quantity:   decimal.RequireFromString("17.5"),
		Value:      decimal.RequireFromString("157.5"),
		PnLUSD:     &loss,
		PnLPct:     &pct,
		Reason:     "STOP-EXIT: stop hit",
		Simulated:  true,
	})
	if title != "[PAPER] Closed BTC-USD at a loss" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{"PnL: $-17.50 (-10.00%)", "Value: $157.50", "Reason: STOP-EXIT"} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q missing %q", body, want)
		}
	}
	if embedColor(title) != colorRed {
		t.Errorf("loss alert colour = %x", embedColor(title))
	}
}
