package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// Claim pays out a participant's claimable balances for a settled round.
// The claimed flag is set exactly once; balances are never decremented, so
// a second claim rejects with no state change.
func (m *Market) Claim(owner common.Address, roundID uint64) (domain.Claimable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateClaim); err != nil {
		return domain.Claimable{}, err
	}
	rs, ok := m.rounds[roundID]
	if !ok {
		return domain.Claimable{}, domain.ErrNotFound
	}
	if !rs.batch.Settled {
		return domain.Claimable{}, domain.ErrNotSettled
	}
	if phase := rs.batch.PhaseAt(m.clock.Tick()); phase < domain.PhaseClaim {
		return domain.Claimable{}, &domain.WrongPhaseError{Expected: domain.PhaseClaim, Actual: phase}
	}

	cl, ok := rs.claimables[owner]
	if !ok || (cl.BaseUnits == 0 && cl.QuoteUnits == 0) {
		return domain.Claimable{}, domain.ErrNothingToClaim
	}
	if cl.Claimed {
		return domain.Claimable{}, domain.ErrAlreadyClaimed
	}

	if cl.BaseUnits > 0 {
		if err := m.vault.EscrowOut(owner, domain.AssetBase, cl.BaseUnits); err != nil {
			return domain.Claimable{}, fmt.Errorf("engine: claim base: %w", err)
		}
	}
	if cl.QuoteUnits > 0 {
		if err := m.vault.EscrowOut(owner, domain.AssetQuote, cl.QuoteUnits); err != nil {
			return domain.Claimable{}, fmt.Errorf("engine: claim quote: %w", err)
		}
	}
	cl.Claimed = true
	return *cl, nil
}
