package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// RevealStore persists the append-only reveal log: the full disclosed order
// fields published alongside the minimal in-engine record.
type RevealStore interface {
	Insert(ctx context.Context, rec RevealRecord) error
	ListByRound(ctx context.Context, marketID string, roundID uint64) ([]RevealRecord, error)
	Count(ctx context.Context, marketID string) (int64, error)
}

// SettlementStore persists per-round settlement summaries, keyed by
// (market id, round id), append-only.
type SettlementStore interface {
	Insert(ctx context.Context, s SettlementSummary) error
	GetByRound(ctx context.Context, marketID string, roundID uint64) (SettlementSummary, error)
	ListRange(ctx context.Context, marketID string, fromRound, toRound uint64, opts ListOpts) ([]SettlementSummary, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of state transitions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
