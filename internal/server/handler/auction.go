package handler

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/service"
)

// AuctionHandler serves the state-changing auction endpoints: round start,
// commit, reveal, settle, claim, and refunds.
type AuctionHandler struct {
	auction *service.AuctionService
	logger  *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auction *service.AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auction: auction,
		logger:  logger,
	}
}

type startRoundRequest struct {
	Starter string `json:"starter"`
}

// StartRound opens the next round.
// POST /api/rounds
func (h *AuctionHandler) StartRound(w http.ResponseWriter, r *http.Request) {
	var req startRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	starter, ok := parseAddress(req.Starter)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid starter address")
		return
	}

	b, err := h.auction.StartRound(r.Context(), starter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type commitRequest struct {
	Owner        string   `json:"owner"`
	Hash         string   `json:"hash"`
	DepositUnits int64    `json:"deposit_units"`
	PaidUnits    int64    `json:"paid_units"`
	AllowProof   []string `json:"allow_proof,omitempty"`
}

// Commit escrows a deposit against a hidden order hash.
// POST /api/commit
func (h *AuctionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	hash, ok := parseHash(req.Hash)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid commitment hash")
		return
	}
	if req.PaidUnits == 0 {
		req.PaidUnits = req.DepositUnits
	}

	proof := make([]common.Hash, 0, len(req.AllowProof))
	for _, p := range req.AllowProof {
		ph, ok := parseHash(p)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid allowlist proof node")
			return
		}
		proof = append(proof, ph)
	}

	if err := h.auction.Commit(r.Context(), owner, hash, req.DepositUnits, req.PaidUnits, proof); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"status": "committed",
		"owner":  owner.Hex(),
	})
}

type revealRequest struct {
	Owner           string `json:"owner"`
	AmountUnits     int64  `json:"amount_units"`
	LimitPriceTicks int64  `json:"limit_price_ticks"`
	Side            string `json:"side"`
	Salt            string `json:"salt"`
}

// Reveal discloses a committed order's fields.
// POST /api/reveal
func (h *AuctionHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	side := domain.Side(req.Side)
	if side != domain.SideBuy && side != domain.SideSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	salt, ok := parseHash(req.Salt)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid salt")
		return
	}

	rec, err := h.auction.Reveal(r.Context(), owner, req.AmountUnits, req.LimitPriceTicks, side, salt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type settleRequest struct {
	Solver string   `json:"solver"`
	Proof  string   `json:"proof"`  // hex-encoded proof bytes
	Claims []string `json:"claims"` // decimal words
}

// Settle submits a settlement proof and claims vector for the active round.
// POST /api/settle
func (h *AuctionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	solver, ok := parseAddress(req.Solver)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid solver address")
		return
	}
	proofBytes, err := hexutil.Decode(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proof encoding")
		return
	}

	claimsVec := make([]*big.Int, 0, len(req.Claims))
	for _, c := range req.Claims {
		word, ok := new(big.Int).SetString(c, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid claims word")
			return
		}
		claimsVec = append(claimsVec, word)
	}

	sum, err := h.auction.Settle(r.Context(), solver, proofBytes, claimsVec)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

type ownerRoundRequest struct {
	Owner   string `json:"owner"`
	RoundID uint64 `json:"round_id"`
}

// Claim pays out a participant's settled balances.
// POST /api/claim
func (h *AuctionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ownerRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	c, err := h.auction.Claim(r.Context(), owner, req.RoundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Refund returns an unrevealed deposit after settlement.
// POST /api/refund
func (h *AuctionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req ownerRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	units, err := h.auction.Refund(r.Context(), owner, req.RoundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "refunded",
		"units":  units,
	})
}

// EmergencyRefund pays out one participant under emergency mode.
// POST /api/emergency/refund
func (h *AuctionHandler) EmergencyRefund(w http.ResponseWriter, r *http.Request) {
	var req ownerRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	units, err := h.auction.EmergencyRefund(r.Context(), owner, req.RoundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "emergency_refunded",
		"units":  units,
	})
}

type bondWithdrawRequest struct {
	Caller  string `json:"caller"`
	RoundID uint64 `json:"round_id"`
}

// WithdrawBond releases or forfeits a round's start bond.
// POST /api/bond/withdraw
func (h *AuctionHandler) WithdrawBond(w http.ResponseWriter, r *http.Request) {
	var req bondWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	units, err := h.auction.Market().WithdrawBond(caller, req.RoundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "bond_withdrawn",
		"units":  units,
	})
}

// ForceUnpause clears all pause gates once the maximum pause window elapsed.
// Anyone may call it, so it lives outside the admin surface.
// POST /api/force-unpause
func (h *AuctionHandler) ForceUnpause(w http.ResponseWriter, r *http.Request) {
	if err := h.auction.ForceUnpause(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unpaused"})
}

type rewardClaimRequest struct {
	Solver string `json:"solver"`
}

// ClaimReward redeems a solver's accrued fee-share rewards.
// POST /api/solvers/rewards/claim
func (h *AuctionHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	var req rewardClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	solver, ok := parseAddress(req.Solver)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid solver address")
		return
	}

	units, err := h.auction.Market().ClaimReward(solver)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reward_claimed",
		"units":  units,
	})
}
