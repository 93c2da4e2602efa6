package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a domain error onto an HTTP status and sends it.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFromError(err), err.Error())
}

// statusFromError maps domain errors onto HTTP status codes. Unknown errors
// become 500.
func statusFromError(err error) int {
	var (
		wrongPhase *domain.WrongPhaseError
		paused     *domain.PausedError
		hashMM     *domain.HashMismatchError
		claimMM    *domain.ClaimMismatchError
		claimsLen  *domain.ClaimsLengthError
	)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNotAllowed),
		errors.Is(err, domain.ErrUnauthorizedSolver):
		return http.StatusForbidden
	case errors.As(err, &paused):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrZeroCommitment),
		errors.Is(err, domain.ErrZeroDeposit),
		errors.As(err, &hashMM),
		errors.As(err, &claimMM),
		errors.As(err, &claimsLen),
		errors.Is(err, domain.ErrProofRejected):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoundActive),
		errors.Is(err, domain.ErrNoActiveRound),
		errors.Is(err, domain.ErrCapacityFull),
		errors.Is(err, domain.ErrAlreadyCommitted),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrNotSettled),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrNothingToClaim),
		errors.Is(err, domain.ErrCommitmentNotPending),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrEmergencyActive),
		errors.Is(err, domain.ErrEmergencyNotReady),
		errors.Is(err, domain.ErrBondNotReleasable),
		errors.Is(err, domain.ErrForceUnpauseTooEarly),
		errors.Is(err, domain.ErrNotPaused),
		errors.Is(err, domain.ErrSolverNotRegistered),
		errors.As(err, &wrongPhase):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// pathRoundID parses the {round} path parameter.
func pathRoundID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(pathParam(r, "round"), 10, 64)
	return id, err == nil
}

// parseAddress validates and decodes a hex address field.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseHash decodes a 32-byte hex hash field. Rejects values that are not
// exactly 32 bytes.
func parseHash(s string) (common.Hash, bool) {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
