package engine

import "github.com/sealedmarkets/batchpool/internal/domain"

// DefaultMaxPauseTicks bounds how long any pause can last before anyone may
// force-unpause, limiting the blast radius of a compromised admin key.
const DefaultMaxPauseTicks uint64 = 10_000

// PauseSet is the six-gate pause bitset. The tick of the first activation is
// recorded so the force-unpause escape hatch can measure elapsed pause time.
type PauseSet struct {
	bits            uint8
	firstPausedTick uint64
	maxPauseTicks   uint64
}

// NewPauseSet returns an all-clear pause set with the given force-unpause
// bound. Zero selects DefaultMaxPauseTicks.
func NewPauseSet(maxPauseTicks uint64) *PauseSet {
	if maxPauseTicks == 0 {
		maxPauseTicks = DefaultMaxPauseTicks
	}
	return &PauseSet{maxPauseTicks: maxPauseTicks}
}

// Pause sets a gate. The first gate set on an all-clear set stamps the
// activation tick.
func (p *PauseSet) Pause(g domain.PauseGate, tick uint64) {
	if p.bits == 0 {
		p.firstPausedTick = tick
	}
	p.bits |= 1 << g
}

// Unpause clears a gate. Clearing the last gate resets the activation stamp.
func (p *PauseSet) Unpause(g domain.PauseGate) {
	p.bits &^= 1 << g
	if p.bits == 0 {
		p.firstPausedTick = 0
	}
}

// Paused reports whether a specific gate bit is set.
func (p *PauseSet) Paused(g domain.PauseGate) bool {
	return p.bits&(1<<g) != 0
}

// Check rejects when the gate, or the global gate, is paused.
func (p *PauseSet) Check(g domain.PauseGate) error {
	if p.Paused(domain.GateGlobal) {
		return &domain.PausedError{Gate: domain.GateGlobal}
	}
	if p.Paused(g) {
		return &domain.PausedError{Gate: g}
	}
	return nil
}

// ForceUnpause clears every gate once the maximum pause duration has
// elapsed. Callable by anyone.
func (p *PauseSet) ForceUnpause(tick uint64) error {
	if p.bits == 0 {
		return domain.ErrNotPaused
	}
	if tick < p.firstPausedTick+p.maxPauseTicks {
		return domain.ErrForceUnpauseTooEarly
	}
	p.bits = 0
	p.firstPausedTick = 0
	return nil
}

// Snapshot returns the per-gate pause flags keyed by gate name.
func (p *PauseSet) Snapshot() map[string]bool {
	out := make(map[string]bool, domain.NumPauseGates)
	for g := domain.PauseGate(0); g < domain.NumPauseGates; g++ {
		out[g.String()] = p.Paused(g)
	}
	return out
}
