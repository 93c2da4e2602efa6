package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// SolverGate decides who may settle at a given authorization tier.
type SolverGate interface {
	Authorize(solver common.Address, tier domain.SolverTier) error
	RecordOutcome(solver common.Address, success bool)
}

// RewardLedger accrues the settling solver's fee share. Accrue returns the
// share actually taken out of the protocol fee.
type RewardLedger interface {
	Accrue(solver common.Address, feeUnits int64, settleElapsed uint64) int64
	Accrued(solver common.Address) int64
	Redeem(solver common.Address) int64
}

// openGate is the no-op gate wired when a market runs without a solver
// registry: anyone may settle at any tier.
type openGate struct{}

func (openGate) Authorize(common.Address, domain.SolverTier) error { return nil }
func (openGate) RecordOutcome(common.Address, bool)                {}

// noopRewards is wired when a market runs without solver rewards.
type noopRewards struct{}

func (noopRewards) Accrue(common.Address, int64, uint64) int64 { return 0 }
func (noopRewards) Accrued(common.Address) int64               { return 0 }
func (noopRewards) Redeem(common.Address) int64                { return 0 }

// Registry is the tiered solver registry. Primary solvers get the exclusive
// first window of each settle phase; any registered solver the second; after
// both windows anyone may settle regardless of registration.
type Registry struct {
	mu      sync.Mutex
	solvers map[common.Address]*domain.SolverInfo
}

// NewRegistry returns an empty solver registry.
func NewRegistry() *Registry {
	return &Registry{solvers: make(map[common.Address]*domain.SolverInfo)}
}

// Register adds a solver. Registering twice is an error.
func (r *Registry) Register(addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.solvers[addr]; ok {
		return domain.ErrAlreadyExists
	}
	r.solvers[addr] = &domain.SolverInfo{Address: addr, Registered: true}
	return nil
}

// SetPrimary promotes or demotes a registered solver.
func (r *Registry) SetPrimary(addr common.Address, primary bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.solvers[addr]
	if !ok {
		return domain.ErrSolverNotRegistered
	}
	info.Primary = primary
	return nil
}

// Get returns a copy of the solver's info.
func (r *Registry) Get(addr common.Address) (domain.SolverInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.solvers[addr]
	if !ok {
		return domain.SolverInfo{}, domain.ErrSolverNotRegistered
	}
	return *info, nil
}

// List returns copies of all registered solvers.
func (r *Registry) List() []domain.SolverInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SolverInfo, 0, len(r.solvers))
	for _, info := range r.solvers {
		out = append(out, *info)
	}
	return out
}

// Authorize implements SolverGate.
func (r *Registry) Authorize(solver common.Address, tier domain.SolverTier) error {
	if tier == domain.TierAnyone {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.solvers[solver]
	if !ok {
		return domain.ErrUnauthorizedSolver
	}
	if tier == domain.TierPrimaryOnly && !info.Primary {
		return domain.ErrUnauthorizedSolver
	}
	return nil
}

// RecordOutcome implements SolverGate. Unregistered solvers (settling in the
// open tier) are not tracked.
func (r *Registry) RecordOutcome(solver common.Address, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.solvers[solver]
	if !ok {
		return
	}
	if success {
		info.Successes++
	} else {
		info.Failures++
	}
}

// FeeRewards accrues a basis-point share of each settlement's protocol fee
// to the settling solver, with a bonus share for settling inside the primary
// window.
type FeeRewards struct {
	ShareBps      int64
	SpeedBonusBps int64
	BonusWindow   uint64

	mu      sync.Mutex
	accrued map[common.Address]int64
}

// NewFeeRewards returns a reward ledger paying shareBps of each fee, plus
// bonusBps extra when settlement lands within bonusWindow ticks of the
// settle boundary.
func NewFeeRewards(shareBps, bonusBps int64, bonusWindow uint64) *FeeRewards {
	return &FeeRewards{
		ShareBps:      shareBps,
		SpeedBonusBps: bonusBps,
		BonusWindow:   bonusWindow,
		accrued:       make(map[common.Address]int64),
	}
}

// Accrue implements RewardLedger. The returned share never exceeds the fee.
func (fr *FeeRewards) Accrue(solver common.Address, feeUnits int64, settleElapsed uint64) int64 {
	bps := fr.ShareBps
	if settleElapsed < fr.BonusWindow {
		bps += fr.SpeedBonusBps
	}
	if bps > domain.FeeDenom {
		bps = domain.FeeDenom
	}
	share := feeUnits * bps / domain.FeeDenom
	if share <= 0 {
		return 0
	}
	fr.mu.Lock()
	fr.accrued[solver] += share
	fr.mu.Unlock()
	return share
}

// Accrued implements RewardLedger.
func (fr *FeeRewards) Accrued(solver common.Address) int64 {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.accrued[solver]
}

// Redeem implements RewardLedger: zeroes and returns the solver's balance.
func (fr *FeeRewards) Redeem(solver common.Address) int64 {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	amt := fr.accrued[solver]
	fr.accrued[solver] = 0
	return amt
}

var (
	_ SolverGate   = (*Registry)(nil)
	_ RewardLedger = (*FeeRewards)(nil)
	_ SolverGate   = openGate{}
	_ RewardLedger = noopRewards{}
)
