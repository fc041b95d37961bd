package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists the append-only trade history.
type TradeStore interface {
	Insert(ctx context.Context, trade TradeRecord) error
	List(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	ListByInstrument(ctx context.Context, instrument string, opts ListOpts) ([]TradeRecord, error)
}

// SnapshotStore persists ledger snapshots for restart recovery.
type SnapshotStore interface {
	Save(ctx context.Context, snap PortfolioSnapshot) error
	Latest(ctx context.Context) (PortfolioSnapshot, error)
}

// DecisionStore persists per-cycle decisions and their indicator readings.
type DecisionStore interface {
	InsertBatch(ctx context.Context, decisions []Decision) error
	ListRecent(ctx context.Context, instrument string, limit int) ([]Decision, error)
}

// AuditEntry is a single audit log row. Instrument is empty for events that
// do not concern one pair.
type AuditEntry struct {
	ID         int64          `json:"id"`
	Event      string         `json:"event"`
	Instrument string         `json:"instrument,omitempty"`
	Detail     map[string]any `json:"detail"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries newest first. A non-empty event matches as a
	// prefix, so "trade_" selects every trade event.
	List(ctx context.Context, event string, opts ListOpts) ([]AuditEntry, error)
}
