package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// ActivateEmergency trips a round into emergency mode once it has sat
// unsettled past the settle boundary plus the configured timeout. Callable
// by anyone; a configured start bond forfeits to the fee recipient.
func (m *Market) ActivateEmergency(roundID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.EmergencyTimeoutTicks == 0 {
		return domain.ErrEmergencyNotReady
	}
	rs, ok := m.rounds[roundID]
	if !ok {
		return domain.ErrNotFound
	}
	if rs.batch.Settled {
		return domain.ErrAlreadySettled
	}
	if rs.batch.Emergency {
		return domain.ErrEmergencyActive
	}
	if tick := m.clock.Tick(); tick < rs.batch.SettleEnd+m.cfg.EmergencyTimeoutTicks {
		return domain.ErrEmergencyNotReady
	}

	rs.batch.Emergency = true

	if rs.bond != nil && rs.bond.Status == domain.BondPending {
		if err := m.vault.EscrowOut(m.feeRecipient, domain.AssetQuote, rs.bond.AmountUnits); err != nil {
			return fmt.Errorf("engine: forfeit bond: %w", err)
		}
		rs.bond.Status = domain.BondCancelled
	}
	return nil
}

// EmergencyRefund returns a participant's deposit from an emergency round.
// Participants who revealed pay the penalty rate since their order
// information is already public; participants who never revealed recover in
// full. The
// terminal status makes this mutually exclusive with ordinary refunds and
// with settlement claims.
func (m *Market) EmergencyRefund(owner common.Address, roundID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateWithdraw); err != nil {
		return 0, err
	}
	rs, ok := m.rounds[roundID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if !rs.batch.Emergency {
		return 0, domain.ErrEmergencyNotReady
	}

	c, ok := rs.commitments[owner]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if c.Status.Terminal() {
		return 0, domain.ErrCommitmentNotPending
	}

	refund := c.DepositUnits
	if c.Status == domain.CommitmentRevealed {
		penalty := mulDivFloor(c.DepositUnits, m.cfg.PenaltyRateBps, domain.FeeDenom)
		refund -= penalty
		m.protocolFees += penalty
	}

	if err := m.vault.EscrowOut(owner, domain.AssetQuote, refund); err != nil {
		return 0, fmt.Errorf("engine: emergency refund: %w", err)
	}
	c.Status = domain.CommitmentEmergencyRefunded
	return refund, nil
}

// WithdrawBond releases the start bond back to its poster once the round
// has settled.
func (m *Market) WithdrawBond(caller common.Address, roundID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateWithdraw); err != nil {
		return 0, err
	}
	rs, ok := m.rounds[roundID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if rs.bond == nil || rs.bond.Poster != caller {
		return 0, domain.ErrNotFound
	}
	if rs.bond.Status != domain.BondPending {
		return 0, domain.ErrBondNotReleasable
	}
	if !rs.batch.Settled {
		return 0, domain.ErrBondNotReleasable
	}

	if err := m.vault.EscrowOut(rs.bond.Poster, domain.AssetQuote, rs.bond.AmountUnits); err != nil {
		return 0, fmt.Errorf("engine: withdraw bond: %w", err)
	}
	rs.bond.Status = domain.BondExecuted
	return rs.bond.AmountUnits, nil
}

// Bond returns the round's bond record, if any.
func (m *Market) Bond(roundID uint64) (domain.BondRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rounds[roundID]
	if !ok {
		return domain.BondRecord{}, domain.ErrNotFound
	}
	if rs.bond == nil {
		return domain.BondRecord{}, domain.ErrNotFound
	}
	return *rs.bond, nil
}
