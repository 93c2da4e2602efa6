package domain

import "github.com/ethereum/go-ethereum/common"

// Phase is the lifecycle phase of a round, strictly forward.
type Phase int

const (
	PhaseInactive Phase = iota
	PhaseCommit
	PhaseReveal
	PhaseSettle
	PhaseClaim
	PhaseFinalized
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseCommit:
		return "commit"
	case PhaseReveal:
		return "reveal"
	case PhaseSettle:
		return "settle"
	case PhaseClaim:
		return "claim"
	case PhaseFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Batch is one commit-reveal-settle-claim round. Boundary ticks are stamped
// once at round start; the current phase is always re-derived from the tick
// counter rather than stored, so it cannot drift.
type Batch struct {
	ID        uint64
	StartTick uint64

	CommitEnd uint64
	RevealEnd uint64
	SettleEnd uint64
	ClaimEnd  uint64

	// AllowlistRoot is snapshotted from the pool config at round start so a
	// mid-round root rotation cannot race commits.
	AllowlistRoot common.Hash

	Committed int
	Revealed  int

	// Settlement outputs, valid once Settled is true.
	ClearingPrice int64
	BuyVolume     int64
	SellVolume    int64
	ProtocolFee   int64
	OrdersRoot    common.Hash
	Solver        common.Address
	SettledTick   uint64

	Settled   bool
	Finalized bool
	Emergency bool
}

// PhaseAt derives the round's phase at the given tick. The mapping is a pure
// function of the stored boundaries.
func (b *Batch) PhaseAt(tick uint64) Phase {
	switch {
	case tick < b.StartTick:
		return PhaseInactive
	case tick < b.CommitEnd:
		return PhaseCommit
	case tick < b.RevealEnd:
		return PhaseReveal
	case tick < b.SettleEnd:
		return PhaseSettle
	case tick < b.ClaimEnd:
		return PhaseClaim
	default:
		return PhaseFinalized
	}
}

// SettleElapsed returns how many ticks of the settle phase have elapsed at
// the given tick. It is zero before the settle boundary.
func (b *Batch) SettleElapsed(tick uint64) uint64 {
	if tick < b.RevealEnd {
		return 0
	}
	return tick - b.RevealEnd
}
