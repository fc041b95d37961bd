package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

type memBlob struct {
	objects map[string][]byte
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

type memTrades struct {
	trades  []domain.TradeRecord
	deleted time.Time
}

func (m *memTrades) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for _, t := range m.trades {
		if t.Timestamp.Before(before) && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTrades) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.deleted = before
	var n int64
	for _, t := range m.trades {
		if t.Timestamp.Before(before) {
			n++
		}
	}
	return n, nil
}

type memAudit struct {
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveTrades(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pnl := decimal.RequireFromString("-17.5")
	store := &memTrades{trades: []domain.TradeRecord{
		{ID: "a", Instrument: "BTC-USD", Kind: domain.TradeKindBuy, Price: decimal.NewFromInt(10), Timestamp: day.Add(-48 * time.Hour)},
		{ID: "b", Instrument: "BTC-USD", Kind: domain.TradeKindFullExit, Price: decimal.NewFromInt(9), PnLUSD: &pnl, Timestamp: day.Add(-24 * time.Hour)},
		{ID: "c", Instrument: "ETH-USD", Kind: domain.TradeKindBuy, Timestamp: day.Add(time.Hour)},
	}}
	blob := &memBlob{objects: map[string][]byte{}}
	audit := &memAudit{}

	a := NewArchiver(blob, store, audit, "bot", true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := a.ArchiveTrades(context.Background(), day)
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d, want 2", n)
	}

	data, ok := blob.objects["bot/archive/trades/2026-03-01.jsonl"]
	if !ok {
		t.Fatalf("missing archive object, have %v", blob.objects)
	}
	var lines []archiveRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec archiveRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 || lines[1].PnLUSD == nil || *lines[1].PnLUSD != "-17.5" {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[0].PnLUSD != nil {
		t.Fatal("entry record should have no pnl")
	}

	if !store.deleted.Equal(day) {
		t.Fatalf("pruned before %v, want %v", store.deleted, day)
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.trades" {
		t.Fatalf("audit = %v", audit.events)
	}
}

func TestArchiveNothingToDo(t *testing.T) {
	blob := &memBlob{objects: map[string][]byte{}}
	a := NewArchiver(blob, &memTrades{}, nil, "", false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := a.ArchiveTrades(context.Background(), time.Now())
	if err != nil || n != 0 || len(blob.objects) != 0 {
		t.Fatalf("n=%d err=%v objects=%d", n, err, len(blob.objects))
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"e2.idrive.com", true, "https://e2.idrive.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}
