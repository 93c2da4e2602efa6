package domain

import "github.com/ethereum/go-ethereum/common"

// SolverTier is the settlement authorization window reached by elapsed ticks
// since the settle phase opened.
type SolverTier int

const (
	TierPrimaryOnly SolverTier = iota
	TierAnyRegistered
	TierAnyone
)

func (t SolverTier) String() string {
	switch t {
	case TierPrimaryOnly:
		return "primary_only"
	case TierAnyRegistered:
		return "any_registered"
	case TierAnyone:
		return "anyone"
	default:
		return "unknown"
	}
}

// SolverInfo tracks a registered solver.
type SolverInfo struct {
	Address    common.Address
	Registered bool
	Primary    bool
	Successes  int64
	Failures   int64

	// RewardUnits is the accrued fee share, claimable through the vault.
	RewardUnits int64
}

// BondStatus tracks a start bond through withdrawal.
type BondStatus string

const (
	BondNone      BondStatus = "none"
	BondPending   BondStatus = "pending"
	BondExecuted  BondStatus = "executed"
	BondCancelled BondStatus = "cancelled"
)

// BondRecord is the start bond escrowed when a round opens. It is released
// back to the poster once the round settles, and forfeited to the penalty
// recipient when emergency mode activates.
type BondRecord struct {
	Poster      common.Address
	AmountUnits int64
	PostedTick  uint64
	Status      BondStatus
}
