package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/engine"
	"github.com/sealedmarkets/batchpool/internal/service"
)

// AdminHandler serves the operator surface: pause gates, emergency controls,
// fee withdrawal, the solver registry, and the audit log. The routes are
// mounted behind token auth; engine-level authorization still applies on top,
// using the configured admin address as the caller.
type AdminHandler struct {
	auction  *service.AuctionService
	registry *engine.Registry
	audit    domain.AuditStore
	admin    common.Address
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler acting as the given admin address.
func NewAdminHandler(
	auction *service.AuctionService,
	registry *engine.Registry,
	audit domain.AuditStore,
	admin common.Address,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		auction:  auction,
		registry: registry,
		audit:    audit,
		admin:    admin,
		logger:   logger,
	}
}

type gateRequest struct {
	Gate string `json:"gate"`
}

// Pause blocks one lifecycle gate.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	gate, ok := domain.ParsePauseGate(req.Gate)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown gate: "+req.Gate)
		return
	}

	if err := h.auction.Pause(r.Context(), h.admin, gate); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.auction.Market().PauseFlags())
}

// Unpause clears one lifecycle gate.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	gate, ok := domain.ParsePauseGate(req.Gate)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown gate: "+req.Gate)
		return
	}

	if err := h.auction.Unpause(r.Context(), h.admin, gate); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.auction.Market().PauseFlags())
}

// PauseFlags returns the current pause gate states.
// GET /api/admin/pause
func (h *AdminHandler) PauseFlags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.auction.Market().PauseFlags())
}

// ActivateEmergency flips a stuck round into emergency mode.
// POST /api/admin/emergency/{round}
func (h *AdminHandler) ActivateEmergency(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathRoundID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	if err := h.auction.ActivateEmergency(r.Context(), roundID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "emergency_activated",
		"round_id": roundID,
	})
}

type overrideRequest struct {
	Enabled bool `json:"enabled"`
}

// SetOverride toggles the emergency solver-tier override.
// POST /api/admin/override
func (h *AdminHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.auction.Market().SetEmergencyOverride(h.admin, req.Enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "override_updated",
		"enabled": req.Enabled,
	})
}

type withdrawFeesRequest struct {
	Caller string `json:"caller"`
}

// WithdrawFees pays accumulated protocol fees to the fee recipient.
// POST /api/admin/fees/withdraw
func (h *AdminHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	units, err := h.auction.Market().WithdrawFees(caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "fees_withdrawn",
		"units":  units,
	})
}

type solverRequest struct {
	Address string `json:"address"`
	Primary bool   `json:"primary"`
}

// RegisterSolver adds a solver to the registry.
// POST /api/admin/solvers
func (h *AdminHandler) RegisterSolver(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeError(w, http.StatusConflict, "solver registry not enabled")
		return
	}

	var req solverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid solver address")
		return
	}

	if err := h.registry.Register(addr); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Primary {
		if err := h.registry.SetPrimary(addr, true); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "registered",
		"address": addr.Hex(),
		"primary": req.Primary,
	})
}

// ListSolvers returns the registered solvers.
// GET /api/admin/solvers
func (h *AdminHandler) ListSolvers(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"solvers": []domain.SolverInfo{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"solvers": h.registry.List()})
}

// ListAudit returns recent audit entries, newest first.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
