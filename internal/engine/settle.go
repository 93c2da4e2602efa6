package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// Settle validates a solver's public claims against locally tracked state,
// consults the external proof verifier, and executes the settlement. The
// cheap local checks run before the expensive cryptographic check on
// purpose; any failure rejects the whole settlement with the round
// unchanged, ready for a later (possibly different) solver.
func (m *Market) Settle(ctx context.Context, solver common.Address, proofBytes []byte, claimsVec []*big.Int) (domain.SettlementSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateSettle); err != nil {
		return domain.SettlementSummary{}, err
	}
	rs, err := m.activeRound()
	if err != nil {
		return domain.SettlementSummary{}, err
	}

	tick := m.clock.Tick()
	if phase := rs.batch.PhaseAt(tick); phase != domain.PhaseSettle {
		return domain.SettlementSummary{}, &domain.WrongPhaseError{Expected: domain.PhaseSettle, Actual: phase}
	}
	if rs.batch.Settled {
		return domain.SettlementSummary{}, domain.ErrAlreadySettled
	}
	if rs.batch.Emergency {
		return domain.SettlementSummary{}, domain.ErrEmergencyActive
	}

	elapsed := rs.batch.SettleElapsed(tick)
	if err := m.solvers.Authorize(solver, m.tierAt(elapsed)); err != nil {
		return domain.SettlementSummary{}, err
	}

	claims, err := domain.ClaimsFromVector(claimsVec)
	if err != nil {
		return domain.SettlementSummary{}, err
	}
	if err := m.validateClaims(rs, claims); err != nil {
		m.solvers.RecordOutcome(solver, false)
		return domain.SettlementSummary{}, err
	}

	ok, err := m.verifier.Verify(ctx, proofBytes, claimsVec)
	if err != nil {
		m.solvers.RecordOutcome(solver, false)
		return domain.SettlementSummary{}, fmt.Errorf("engine: proof verifier: %w", err)
	}
	if !ok {
		m.solvers.RecordOutcome(solver, false)
		return domain.SettlementSummary{}, domain.ErrProofRejected
	}

	outcome, err := applyFills(rs, claims)
	if err != nil {
		m.solvers.RecordOutcome(solver, false)
		return domain.SettlementSummary{}, err
	}

	// Pull the solver's net base-asset requirement before any state is
	// touched; an underfunded solver rejects the settlement atomically.
	if outcome.solverBaseUnits > 0 {
		if err := m.vault.EscrowIn(solver, domain.AssetBase, outcome.solverBaseUnits); err != nil {
			m.solvers.RecordOutcome(solver, false)
			return domain.SettlementSummary{}, fmt.Errorf("engine: solver liquidity: %w", err)
		}
	}

	// Point of no return: apply everything.
	for owner, delta := range outcome.deltas {
		cl, ok := rs.claimables[owner]
		if !ok {
			cl = &domain.Claimable{}
			rs.claimables[owner] = cl
		}
		cl.BaseUnits += delta.BaseUnits
		cl.QuoteUnits += delta.QuoteUnits
	}
	if outcome.residualQuote > 0 {
		cl, ok := rs.claimables[solver]
		if !ok {
			cl = &domain.Claimable{}
			rs.claimables[solver] = cl
		}
		cl.QuoteUnits += outcome.residualQuote
	}

	share := m.rewards.Accrue(solver, claims.ProtocolFee, elapsed)
	m.protocolFees += claims.ProtocolFee - share

	rs.batch.Settled = true
	rs.batch.SettledTick = tick
	rs.batch.Solver = solver
	rs.batch.ClearingPrice = claims.ClearingPrice
	rs.batch.BuyVolume = claims.BuyVolume
	rs.batch.SellVolume = claims.SellVolume
	rs.batch.ProtocolFee = claims.ProtocolFee
	rs.batch.OrdersRoot = claims.OrdersRoot
	m.solvers.RecordOutcome(solver, true)

	return domain.SettlementSummary{
		MarketID:      m.id,
		RoundID:       rs.batch.ID,
		ClearingPrice: claims.ClearingPrice,
		BuyVolume:     claims.BuyVolume,
		SellVolume:    claims.SellVolume,
		ProtocolFee:   claims.ProtocolFee,
		OrdersRoot:    claims.OrdersRoot,
		Solver:        solver,
		SettledTick:   tick,
	}, nil
}

// validateClaims cross-checks every public claim against locally recomputed
// aggregates. Matches must be exact; no tolerance. The protocol fee check is
// internal consistency against the proof's own claimed volumes, not an
// independent volume re-derivation; volume soundness is the proof's job.
func (m *Market) validateClaims(rs *roundState, claims *domain.PublicClaims) error {
	if claims.RoundID != rs.batch.ID {
		return &domain.ClaimMismatchError{
			Field:    "round_id",
			Expected: new(big.Int).SetUint64(rs.batch.ID),
			Actual:   new(big.Int).SetUint64(claims.RoundID),
		}
	}
	if claims.OrderCount != rs.batch.Revealed {
		return &domain.ClaimMismatchError{
			Field:    "order_count",
			Expected: big.NewInt(int64(rs.batch.Revealed)),
			Actual:   big.NewInt(int64(claims.OrderCount)),
		}
	}
	if root := rs.tree.Root(); claims.OrdersRoot != root {
		return &domain.ClaimMismatchError{
			Field:    "orders_root",
			Expected: new(big.Int).SetBytes(root[:]),
			Actual:   new(big.Int).SetBytes(claims.OrdersRoot[:]),
		}
	}
	if claims.AllowlistRoot != rs.batch.AllowlistRoot {
		return &domain.ClaimMismatchError{
			Field:    "allowlist_root",
			Expected: new(big.Int).SetBytes(rs.batch.AllowlistRoot[:]),
			Actual:   new(big.Int).SetBytes(claims.AllowlistRoot[:]),
		}
	}
	if claims.FeeRateBps != m.cfg.FeeRateBps {
		return &domain.ClaimMismatchError{
			Field:    "fee_rate",
			Expected: big.NewInt(m.cfg.FeeRateBps),
			Actual:   big.NewInt(claims.FeeRateBps),
		}
	}

	matched := min64(claims.BuyVolume, claims.SellVolume)
	wantFee := mulDivFloor(matched, claims.FeeRateBps, domain.FeeDenom)
	if claims.ProtocolFee != wantFee {
		return &domain.ClaimMismatchError{
			Field:    "protocol_fee",
			Expected: big.NewInt(wantFee),
			Actual:   big.NewInt(claims.ProtocolFee),
		}
	}
	if matched > 0 && claims.ClearingPrice == 0 {
		return &domain.ClaimMismatchError{
			Field:    "clearing_price",
			Expected: big.NewInt(1),
			Actual:   big.NewInt(0),
		}
	}
	for i := claims.OrderCount; i < domain.Capacity; i++ {
		if claims.Fills[i] != 0 {
			return &domain.ClaimMismatchError{
				Field:    fmt.Sprintf("fill_%d", i),
				Expected: big.NewInt(0),
				Actual:   big.NewInt(claims.Fills[i]),
			}
		}
	}
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// mulDivFloor computes floor(a*b/den) without intermediate overflow.
func mulDivFloor(a, b, den int64) int64 {
	out := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	out.Div(out, big.NewInt(den))
	return out.Int64()
}
