package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// TradeArchiveStore is the slice of the trade store the archiver needs.
type TradeArchiveStore interface {
	// ListBefore returns up to limit trades executed before the cutoff,
	// oldest first.
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// archiveBatch bounds how many trades one archive file holds.
const archiveBatch = 50_000

// Archiver implements domain.Archiver: trades older than the cutoff are
// written as JSONL to the blob store and, when pruning is enabled, removed
// from the primary store once the upload succeeded.
type Archiver struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
	audit  domain.AuditStore
	prefix string
	prune  bool
	logger *slog.Logger
}

// NewArchiver creates a new Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, audit domain.AuditStore, prefix string, prune bool, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		audit:  audit,
		prefix: prefix,
		prune:  prune,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades uploads trades executed before the cutoff and returns how
// many were archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}
	// A full batch means older rows may remain; only archive up to the last
	// timestamp we actually hold so pruning never drops unarchived rows.
	cutoff := before
	if len(trades) == archiveBatch {
		cutoff = trades[len(trades)-1].Timestamp
	}

	buf, err := marshalJSONL(toArchiveRecords(trades))
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	key := archivePath(a.prefix, "trades", before)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}
	count := int64(len(trades))

	var pruned int64
	if a.prune {
		if pruned, err = a.trades.DeleteBefore(ctx, cutoff); err != nil {
			return count, fmt.Errorf("s3blob: archive trades prune: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "archiver: trades archived",
		slog.String("path", key),
		slog.Int64("count", count),
		slog.Int64("pruned", pruned),
	)

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.trades", map[string]any{
			"path":   key,
			"count":  count,
			"pruned": pruned,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
		}
	}
	return count, nil
}

// archiveRecord is the JSONL line written for each trade.
type archiveRecord struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Kind       string    `json:"kind"`
	Side       string    `json:"side"`
	EntryPrice string    `json:"entry_price"`
	Price      string    `json:"price"`
	Quantity   string    `json:"quantity"`
	Value      string    `json:"value"`
	PnLUSD     *string   `json:"pnl_usd,omitempty"`
	PnLPct     *string   `json:"pnl_pct,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	Simulated  bool      `json:"simulated"`
	ExecutedAt time.Time `json:"executed_at"`
}

func toArchiveRecords(trades []domain.TradeRecord) []archiveRecord {
	out := make([]archiveRecord, 0, len(trades))
	for _, t := range trades {
		rec := archiveRecord{
			ID:         t.ID,
			Instrument: t.Instrument,
			Kind:       string(t.Kind),
			Side:       string(t.Side),
			EntryPrice: t.EntryPrice.String(),
			Price:      t.Price.String(),
			Quantity:   t.Quantity.String(),
			Value:      t.Value.String(),
			Reason:     t.Reason,
			OrderID:    t.OrderID,
			Simulated:  t.Simulated,
			ExecutedAt: t.Timestamp.UTC(),
		}
		if t.PnLUSD != nil {
			s := t.PnLUSD.String()
			rec.PnLUSD = &s
		}
		if t.PnLPct != nil {
			s := t.PnLPct.String()
			rec.PnLPct = &s
		}
		out = append(out, rec)
	}
	return out
}

// archivePath builds the object key for an archive file, partitioned by the
// cutoff date:
//
//	<prefix>/archive/trades/2026-01-31.jsonl
func archivePath(prefix, kind string, before time.Time) string {
	return path.Join(prefix, "archive", kind, before.UTC().Format("2006-01-02")+".jsonl")
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
