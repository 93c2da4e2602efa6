package engine

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/merkle"
)

// roundState carries a round's working data. Rounds never interact, so the
// round id is the natural sharding key; the leaf tree and order list are
// transient and released at finalization, claimables are kept.
type roundState struct {
	batch       domain.Batch
	commitments map[common.Address]*domain.Commitment
	orders      []domain.RevealedOrder
	tree        *merkle.Tree
	claimables  map[common.Address]*domain.Claimable
	bond        *domain.BondRecord
}

// Market is one batch auction market. All state-changing operations are
// serialized by a single mutex and complete atomically or reject with no
// partial effect.
type Market struct {
	mu sync.Mutex

	id    string
	cfg   domain.PoolConfig
	clock TickSource

	vault      Vault
	verifier   ProofVerifier
	membership MembershipVerifier
	solvers    SolverGate
	rewards    RewardLedger
	pause      *PauseSet

	admin        common.Address
	feeRecipient common.Address

	current uint64
	rounds  map[uint64]*roundState

	// emergencyOverride is the admin switch that bypasses solver tiering.
	emergencyOverride bool

	// protocolFees is the fee revenue retained after solver reward shares,
	// still sitting in vault escrow until withdrawn.
	protocolFees int64
}

// Option configures optional market modules at construction time. The
// module set is immutable afterwards.
type Option func(*Market)

// WithSolverGate wires a solver gate; without it anyone may settle.
func WithSolverGate(g SolverGate) Option {
	return func(m *Market) { m.solvers = g }
}

// WithRewards wires a reward ledger; without it no fee share accrues.
func WithRewards(r RewardLedger) Option {
	return func(m *Market) { m.rewards = r }
}

// WithMembership wires the allowlist membership verifier. Required for
// gated pools.
func WithMembership(v MembershipVerifier) Option {
	return func(m *Market) { m.membership = v }
}

// WithMaxPauseTicks overrides the force-unpause bound.
func WithMaxPauseTicks(ticks uint64) Option {
	return func(m *Market) { m.pause = NewPauseSet(ticks) }
}

// NewMarket validates the pool config and constructs a market. The config,
// admin, fee recipient, and wired modules are immutable for the market's
// lifetime.
func NewMarket(
	id string,
	cfg domain.PoolConfig,
	clock TickSource,
	vault Vault,
	verifier ProofVerifier,
	admin common.Address,
	feeRecipient common.Address,
	opts ...Option,
) (*Market, error) {
	if id == "" {
		return nil, fmt.Errorf("engine: market id must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	m := &Market{
		id:           id,
		cfg:          cfg,
		clock:        clock,
		vault:        vault,
		verifier:     verifier,
		solvers:      openGate{},
		rewards:      noopRewards{},
		pause:        NewPauseSet(0),
		admin:        admin,
		feeRecipient: feeRecipient,
		rounds:       make(map[uint64]*roundState),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.Mode == domain.PoolModeGated && m.membership == nil {
		return nil, fmt.Errorf("engine: gated mode requires a membership verifier")
	}
	return m, nil
}

// ID returns the market id.
func (m *Market) ID() string { return m.id }

// Config returns the immutable pool configuration.
func (m *Market) Config() domain.PoolConfig { return m.cfg }

// StartRound opens the next round when no round is active: it assigns the
// next sequential id, stamps the phase boundaries from the current tick,
// snapshots the allowlist root, and escrows the starter's bond when bonding
// is configured.
func (m *Market) StartRound(starter common.Address) (domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateCommit); err != nil {
		return domain.Batch{}, err
	}

	tick := m.clock.Tick()
	if cur, ok := m.rounds[m.current]; ok {
		// A round stays active until finalized or until its claim window has
		// fully elapsed; an unsettled round past its claim boundary no
		// longer blocks the market (its refunds remain claimable).
		if !cur.batch.Finalized && tick < cur.batch.ClaimEnd {
			return domain.Batch{}, domain.ErrRoundActive
		}
	}

	id := m.current + 1
	b := domain.Batch{
		ID:            id,
		StartTick:     tick,
		CommitEnd:     tick + m.cfg.CommitTicks,
		RevealEnd:     tick + m.cfg.CommitTicks + m.cfg.RevealTicks,
		SettleEnd:     tick + m.cfg.CommitTicks + m.cfg.RevealTicks + m.cfg.SettleTicks,
		ClaimEnd:      tick + m.cfg.CommitTicks + m.cfg.RevealTicks + m.cfg.SettleTicks + m.cfg.ClaimTicks,
		AllowlistRoot: m.cfg.AllowlistRoot,
	}

	rs := &roundState{
		batch:       b,
		commitments: make(map[common.Address]*domain.Commitment),
		tree:        merkle.NewTree(),
		claimables:  make(map[common.Address]*domain.Claimable),
	}

	if m.cfg.StartBondUnits > 0 {
		if err := m.vault.EscrowIn(starter, domain.AssetQuote, m.cfg.StartBondUnits); err != nil {
			return domain.Batch{}, fmt.Errorf("engine: start bond: %w", err)
		}
		rs.bond = &domain.BondRecord{
			Poster:      starter,
			AmountUnits: m.cfg.StartBondUnits,
			PostedTick:  tick,
			Status:      domain.BondPending,
		}
	}

	m.current = id
	m.rounds[id] = rs
	return b, nil
}

// CurrentRound returns the latest round, if any round was ever started.
func (m *Market) CurrentRound() (domain.Batch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rounds[m.current]
	if !ok {
		return domain.Batch{}, false
	}
	return rs.batch, true
}

// Round returns a round by id.
func (m *Market) Round(id uint64) (domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rounds[id]
	if !ok {
		return domain.Batch{}, domain.ErrNotFound
	}
	return rs.batch, nil
}

// Rounds returns rounds in [from, to], bounded by limit when positive.
func (m *Market) Rounds(from, to uint64, limit int) []domain.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Batch
	for id := from; id <= to && id <= m.current; id++ {
		if rs, ok := m.rounds[id]; ok {
			out = append(out, rs.batch)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Phase returns the current round id and its phase at the present tick.
// With no round ever started, it reports round 0, PhaseInactive.
func (m *Market) Phase() (uint64, domain.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rounds[m.current]
	if !ok {
		return 0, domain.PhaseInactive
	}
	return m.current, rs.batch.PhaseAt(m.clock.Tick())
}

// Commitment returns a participant's commitment for a round.
func (m *Market) Commitment(roundID uint64, owner common.Address) (domain.Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rounds[roundID]
	if !ok {
		return domain.Commitment{}, domain.ErrNotFound
	}
	c, ok := rs.commitments[owner]
	if !ok {
		return domain.Commitment{}, domain.ErrNotFound
	}
	return *c, nil
}

// ClaimableOf returns a participant's claimable balances for a round.
func (m *Market) ClaimableOf(roundID uint64, owner common.Address) (domain.Claimable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rounds[roundID]
	if !ok {
		return domain.Claimable{}, domain.ErrNotFound
	}
	c, ok := rs.claimables[owner]
	if !ok {
		return domain.Claimable{}, domain.ErrNotFound
	}
	return *c, nil
}

// Finalize closes a settled round once its claim window has elapsed,
// releasing the transient leaf tree and order list. Claimable balances
// survive finalization.
func (m *Market) Finalize(roundID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.rounds[roundID]
	if !ok {
		return domain.ErrNotFound
	}
	if !rs.batch.Settled {
		return domain.ErrNotSettled
	}
	if rs.batch.Finalized {
		return domain.ErrAlreadyFinalized
	}
	if tick := m.clock.Tick(); tick < rs.batch.ClaimEnd {
		return &domain.WrongPhaseError{Expected: domain.PhaseFinalized, Actual: rs.batch.PhaseAt(tick)}
	}

	rs.batch.Finalized = true
	rs.tree = nil
	rs.orders = nil
	return nil
}

// ProtocolFees returns the undistributed protocol fee balance.
func (m *Market) ProtocolFees() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.protocolFees
}

// WithdrawFees pays the accrued protocol fees out of escrow to the fee
// recipient. Admin only.
func (m *Market) WithdrawFees(caller common.Address) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.admin {
		return 0, domain.ErrUnauthorized
	}
	if err := m.pause.Check(domain.GateWithdraw); err != nil {
		return 0, err
	}
	amt := m.protocolFees
	if amt == 0 {
		return 0, domain.ErrNothingToClaim
	}
	if err := m.vault.EscrowOut(m.feeRecipient, domain.AssetQuote, amt); err != nil {
		return 0, fmt.Errorf("engine: withdraw fees: %w", err)
	}
	m.protocolFees = 0
	return amt, nil
}

// ClaimReward pays a solver's accrued fee share out of escrow.
func (m *Market) ClaimReward(solver common.Address) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pause.Check(domain.GateWithdraw); err != nil {
		return 0, err
	}
	amt := m.rewards.Redeem(solver)
	if amt == 0 {
		return 0, domain.ErrNothingToClaim
	}
	if err := m.vault.EscrowOut(solver, domain.AssetQuote, amt); err != nil {
		return 0, fmt.Errorf("engine: claim reward: %w", err)
	}
	return amt, nil
}

// SetEmergencyOverride flips the admin switch that bypasses solver tiers.
func (m *Market) SetEmergencyOverride(caller common.Address, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.admin {
		return domain.ErrUnauthorized
	}
	m.emergencyOverride = on
	return nil
}

// Pause sets a pause gate. Admin only.
func (m *Market) Pause(caller common.Address, g domain.PauseGate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.admin {
		return domain.ErrUnauthorized
	}
	m.pause.Pause(g, m.clock.Tick())
	return nil
}

// Unpause clears a pause gate. Admin only.
func (m *Market) Unpause(caller common.Address, g domain.PauseGate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.admin {
		return domain.ErrUnauthorized
	}
	m.pause.Unpause(g)
	return nil
}

// ForceUnpause clears every gate once the maximum pause duration has
// elapsed. Callable by anyone.
func (m *Market) ForceUnpause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pause.ForceUnpause(m.clock.Tick())
}

// PauseFlags returns the per-gate pause state.
func (m *Market) PauseFlags() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pause.Snapshot()
}

// tierAt maps elapsed settle-phase ticks to the solver authorization tier.
// The admin emergency override collapses all tiers to open access.
func (m *Market) tierAt(elapsed uint64) domain.SolverTier {
	if m.emergencyOverride {
		return domain.TierAnyone
	}
	if elapsed < m.cfg.PrimaryWindowTicks {
		return domain.TierPrimaryOnly
	}
	if elapsed < m.cfg.PrimaryWindowTicks+m.cfg.RegisteredWindowTicks {
		return domain.TierAnyRegistered
	}
	return domain.TierAnyone
}

// activeRound returns the current round's state, rejecting when none exists.
// Callers hold m.mu.
func (m *Market) activeRound() (*roundState, error) {
	rs, ok := m.rounds[m.current]
	if !ok {
		return nil, domain.ErrNoActiveRound
	}
	return rs, nil
}
