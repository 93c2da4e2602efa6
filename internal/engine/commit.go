package engine

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/crypto"
	"github.com/sealedmarkets/batchpool/internal/domain"
)

// Commit escrows a deposit against a hidden order. paidUnits is what the
// participant actually transferred; any excess over depositUnits is returned
// immediately (the refund-excess-on-overpayment convention).
//
// Requires the commit phase, a non-zero hash, a positive deposit, free
// capacity, no prior commitment from the owner, and in gated mode a valid
// membership proof against the round's snapshotted allowlist root.
func (m *Market) Commit(owner common.Address, hash common.Hash, depositUnits, paidUnits int64, allowProof []common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateCommit); err != nil {
		return err
	}
	rs, err := m.activeRound()
	if err != nil {
		return err
	}
	if phase := rs.batch.PhaseAt(m.clock.Tick()); phase != domain.PhaseCommit {
		return &domain.WrongPhaseError{Expected: domain.PhaseCommit, Actual: phase}
	}
	if hash == (common.Hash{}) {
		return domain.ErrZeroCommitment
	}
	if depositUnits <= 0 {
		return domain.ErrZeroDeposit
	}
	if paidUnits < depositUnits {
		return fmt.Errorf("engine: paid %d units, deposit requires %d: %w", paidUnits, depositUnits, domain.ErrZeroDeposit)
	}
	if rs.batch.Committed >= domain.Capacity {
		return domain.ErrCapacityFull
	}
	if _, ok := rs.commitments[owner]; ok {
		return domain.ErrAlreadyCommitted
	}
	if m.cfg.Mode == domain.PoolModeGated {
		if !m.membership.IsMember(owner, rs.batch.AllowlistRoot, allowProof) {
			return domain.ErrNotAllowed
		}
	}

	if err := m.vault.EscrowIn(owner, domain.AssetQuote, paidUnits); err != nil {
		return fmt.Errorf("engine: commit deposit: %w", err)
	}
	if excess := paidUnits - depositUnits; excess > 0 {
		if err := m.vault.EscrowOut(owner, domain.AssetQuote, excess); err != nil {
			return fmt.Errorf("engine: refund overpayment: %w", err)
		}
	}

	rs.commitments[owner] = &domain.Commitment{
		Owner:         owner,
		Hash:          hash,
		DepositUnits:  depositUnits,
		Status:        domain.CommitmentPending,
		RevealIndex:   -1,
		CommittedTick: m.clock.Tick(),
	}
	rs.batch.Committed++
	return nil
}

// Reveal discloses the order behind a pending commitment. The disclosed
// fields must hash to the stored commitment exactly; any single-field
// mutation rejects. On success the minimal order record is appended in
// reveal order, the order leaf joins the commitment tree, and the full
// disclosure is returned for the auxiliary reveal log.
func (m *Market) Reveal(owner common.Address, amountUnits, limitPriceTicks int64, side domain.Side, salt common.Hash) (domain.RevealRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateReveal); err != nil {
		return domain.RevealRecord{}, err
	}
	rs, err := m.activeRound()
	if err != nil {
		return domain.RevealRecord{}, err
	}
	if phase := rs.batch.PhaseAt(m.clock.Tick()); phase != domain.PhaseReveal {
		return domain.RevealRecord{}, &domain.WrongPhaseError{Expected: domain.PhaseReveal, Actual: phase}
	}
	if amountUnits < 0 || limitPriceTicks < 0 {
		return domain.RevealRecord{}, fmt.Errorf("engine: negative order fields")
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return domain.RevealRecord{}, fmt.Errorf("engine: unknown side %q", side)
	}

	c, ok := rs.commitments[owner]
	if !ok {
		return domain.RevealRecord{}, domain.ErrNotFound
	}
	if c.Status != domain.CommitmentPending {
		return domain.RevealRecord{}, domain.ErrCommitmentNotPending
	}

	computed := crypto.CommitmentHash(owner, amountUnits, limitPriceTicks, side, salt)
	if computed != c.Hash {
		return domain.RevealRecord{}, &domain.HashMismatchError{Expected: c.Hash, Actual: computed}
	}

	leaf := crypto.OrderLeafHash(owner, amountUnits, limitPriceTicks, side)
	idx, err := rs.tree.Append(leaf)
	if err != nil {
		return domain.RevealRecord{}, fmt.Errorf("engine: reveal: %w", err)
	}

	rs.orders = append(rs.orders, domain.RevealedOrder{Owner: owner, Side: side})
	c.Status = domain.CommitmentRevealed
	c.RevealIndex = idx
	rs.batch.Revealed++

	return domain.RevealRecord{
		MarketID:        m.id,
		RoundID:         rs.batch.ID,
		RevealIndex:     idx,
		Owner:           owner,
		AmountUnits:     amountUnits,
		LimitPriceTicks: limitPriceTicks,
		Side:            side,
		Salt:            salt,
		LeafHash:        leaf,
		RevealedAt:      time.Now().UTC(),
	}, nil
}

// Refund returns the deposit of a commitment that was never revealed. It is
// available from the settle phase onward; terminal statuses reject, which
// is what makes the operation idempotent-safe and mutually exclusive with
// emergency refunds.
func (m *Market) Refund(owner common.Address, roundID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateWithdraw); err != nil {
		return 0, err
	}
	rs, ok := m.rounds[roundID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if phase := rs.batch.PhaseAt(m.clock.Tick()); phase < domain.PhaseSettle {
		return 0, &domain.WrongPhaseError{Expected: domain.PhaseSettle, Actual: phase}
	}

	c, ok := rs.commitments[owner]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if c.Status != domain.CommitmentPending {
		return 0, domain.ErrCommitmentNotPending
	}

	if err := m.vault.EscrowOut(owner, domain.AssetQuote, c.DepositUnits); err != nil {
		return 0, fmt.Errorf("engine: refund: %w", err)
	}
	c.Status = domain.CommitmentRefunded
	return c.DepositUnits, nil
}
