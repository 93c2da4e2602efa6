package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/engine"
	"github.com/sealedmarkets/batchpool/internal/service"
)

// RoundHandler serves the read-only round endpoints: market status, round
// snapshots, the reveal log, settlement summaries, the durable event stream,
// and finalized round archives.
type RoundHandler struct {
	auction     *service.AuctionService
	reveals     domain.RevealStore
	settlements domain.SettlementStore
	bus         domain.SignalBus
	archive     domain.BlobReader
	logger      *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(
	auction *service.AuctionService,
	reveals domain.RevealStore,
	settlements domain.SettlementStore,
	logger *slog.Logger,
) *RoundHandler {
	return &RoundHandler{
		auction:     auction,
		reveals:     reveals,
		settlements: settlements,
		logger:      logger,
	}
}

// WithEventStream enables the event history endpoint, served from the
// durable stream that mirrors the Pub/Sub channel.
func (h *RoundHandler) WithEventStream(bus domain.SignalBus) *RoundHandler {
	h.bus = bus
	return h
}

// WithArchiveReader enables the archive endpoints for finalized rounds.
func (h *RoundHandler) WithArchiveReader(r domain.BlobReader) *RoundHandler {
	h.archive = r
	return h
}

func (h *RoundHandler) market() *engine.Market {
	return h.auction.Market()
}

// Status returns the market's current tick, phase, and round snapshot.
// GET /api/status
func (h *RoundHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.auction.Status(r.Context()))
}

// GetRound returns one round's snapshot.
// GET /api/rounds/{round}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	b, err := h.market().Round(roundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListRounds returns round snapshots in an id range.
// GET /api/rounds?from=1&to=10&limit=50
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, _ := strconv.ParseUint(q.Get("from"), 10, 64)
	to, err := strconv.ParseUint(q.Get("to"), 10, 64)
	if err != nil {
		// Default to the current round when no upper bound is given.
		if b, ok := h.market().CurrentRound(); ok {
			to = b.ID
		}
	}
	opts := parseListOpts(r)

	rounds := h.market().Rounds(from, to, opts.Limit)
	if rounds == nil {
		rounds = []domain.Batch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// GetSettlement returns a round's persisted settlement summary.
// GET /api/rounds/{round}/settlement
func (h *RoundHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	sum, err := h.settlements.GetByRound(r.Context(), h.market().ID(), roundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ListReveals returns a round's reveal log in reveal order.
// GET /api/rounds/{round}/reveals
func (h *RoundHandler) ListReveals(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	recs, err := h.reveals.ListByRound(r.Context(), h.market().ID(), roundID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list reveals failed",
			slog.Uint64("round", roundID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list reveals")
		return
	}
	if recs == nil {
		recs = []domain.RevealRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reveals": recs})
}

// GetCommitment returns a participant's commitment in a round.
// GET /api/rounds/{round}/commitments/{address}
func (h *RoundHandler) GetCommitment(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	owner, ok := parseAddress(pathParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	c, err := h.market().Commitment(roundID, owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetClaimable returns a participant's settled balances in a round.
// GET /api/rounds/{round}/claimable/{address}
func (h *RoundHandler) GetClaimable(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	owner, ok := parseAddress(pathParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	c, err := h.market().ClaimableOf(roundID, owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListSettlements returns persisted settlement summaries in a round id range,
// oldest first.
// GET /api/settlements?from=1&to=100&limit=50
func (h *RoundHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, _ := strconv.ParseUint(q.Get("from"), 10, 64)
	to, err := strconv.ParseUint(q.Get("to"), 10, 64)
	if err != nil {
		if b, ok := h.market().CurrentRound(); ok {
			to = b.ID
		}
	}
	opts := parseListOpts(r)

	sums, err := h.settlements.ListRange(r.Context(), h.market().ID(), from, to, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list settlements failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}
	if sums == nil {
		sums = []domain.SettlementSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": sums})
}

// streamEvent pairs a stream entry id with its round event payload.
type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns round events from the durable stream, oldest first.
// The "after" parameter is the last stream id the client has seen.
// GET /api/events?after=0&limit=100
func (h *RoundHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusNotFound, "event history not available")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	opts := parseListOpts(r)

	msgs, err := h.bus.StreamRead(r.Context(), h.auction.EventStream(), after, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read event stream failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read event stream")
		return
	}

	events := make([]streamEvent, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, streamEvent{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// archiveObjects maps the object names a round archive may contain to their
// content types. The names match what the archiver writes.
var archiveObjects = map[string]string{
	"reveals.jsonl":   "application/x-ndjson",
	"settlement.json": "application/json",
}

// ListArchive lists a finalized round's archived objects.
// GET /api/rounds/{round}/archive
func (h *RoundHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive not available")
		return
	}
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	prefix := fmt.Sprintf("rounds/%s/%d/", h.market().ID(), roundID)
	infos, err := h.archive.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archive failed",
			slog.Uint64("round", roundID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": infos})
}

// GetArchiveObject streams one archived object.
// GET /api/rounds/{round}/archive/{object}
func (h *RoundHandler) GetArchiveObject(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive not available")
		return
	}
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	name := pathParam(r, "object")
	contentType, ok := archiveObjects[name]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown archive object")
		return
	}

	path := fmt.Sprintf("rounds/%s/%d/%s", h.market().ID(), roundID, name)
	rc, err := h.archive.Get(r.Context(), path)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: stream archive object failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// GetBond returns a round's start bond record.
// GET /api/rounds/{round}/bond
func (h *RoundHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	rec, err := h.market().Bond(roundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
