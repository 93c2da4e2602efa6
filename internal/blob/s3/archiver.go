package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// RoundArchiver implements domain.Archiver by pulling a finalized round's
// reveal log and settlement summary from the primary stores, serializing
// them, and uploading the result to object storage.
//
// Object layout:
//
//	rounds/{marketID}/{roundID}/reveals.jsonl
//	rounds/{marketID}/{roundID}/settlement.json
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here. That is a separate, explicit step executed after the
// archive has been verified.
type RoundArchiver struct {
	writer      domain.BlobWriter
	reveals     domain.RevealStore
	settlements domain.SettlementStore
	audit       domain.AuditStore
}

// NewRoundArchiver creates a RoundArchiver over the given writer and stores.
func NewRoundArchiver(
	writer domain.BlobWriter,
	reveals domain.RevealStore,
	settlements domain.SettlementStore,
	audit domain.AuditStore,
) *RoundArchiver {
	return &RoundArchiver{
		writer:      writer,
		reveals:     reveals,
		settlements: settlements,
		audit:       audit,
	}
}

func roundPrefix(marketID string, roundID uint64) string {
	return fmt.Sprintf("rounds/%s/%d", marketID, roundID)
}

// ArchiveRound writes one round's reveal log and settlement summary to cold
// storage. A round that never settled still archives its reveal log; the
// settlement object is simply skipped. Each completed archive is recorded in
// the audit log.
func (a *RoundArchiver) ArchiveRound(ctx context.Context, marketID string, roundID uint64) error {
	prefix := roundPrefix(marketID, roundID)

	recs, err := a.reveals.ListByRound(ctx, marketID, roundID)
	if err != nil {
		return fmt.Errorf("s3blob: archive round %s/%d reveals query: %w", marketID, roundID, err)
	}

	if len(recs) > 0 {
		buf, err := marshalJSONL(recs)
		if err != nil {
			return fmt.Errorf("s3blob: archive round %s/%d reveals marshal: %w", marketID, roundID, err)
		}
		path := prefix + "/reveals.jsonl"
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return fmt.Errorf("s3blob: archive round %s/%d reveals upload: %w", marketID, roundID, err)
		}
	}

	sum, err := a.settlements.GetByRound(ctx, marketID, roundID)
	switch {
	case err == nil:
		data, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return fmt.Errorf("s3blob: archive round %s/%d settlement marshal: %w", marketID, roundID, err)
		}
		path := prefix + "/settlement.json"
		if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
			return fmt.Errorf("s3blob: archive round %s/%d settlement upload: %w", marketID, roundID, err)
		}
	case errors.Is(err, domain.ErrNotFound):
		// Unsettled round, nothing more to write.
	default:
		return fmt.Errorf("s3blob: archive round %s/%d settlement query: %w", marketID, roundID, err)
	}

	if err := a.audit.Log(ctx, "archive.round", map[string]any{
		"market_id": marketID,
		"round_id":  roundID,
		"reveals":   len(recs),
		"prefix":    prefix,
	}); err != nil {
		return fmt.Errorf("s3blob: archive round %s/%d audit log: %w", marketID, roundID, err)
	}

	return nil
}

// marshalJSONL serializes a slice of records as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*RoundArchiver)(nil)
