// Package domain defines the core types of the batch auction engine: pool
// configuration, round lifecycle, commitments, claims, and the store/cache
// interfaces implemented by the persistence layers.
package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Fixed-point and protocol-wide constants.
const (
	// PriceScale is the fixed-point scale for prices: 1e6 ticks = 1.0.
	PriceScale int64 = 1_000_000

	// UnitScale is the fixed-point scale for amounts: 1e6 units = 1.0.
	UnitScale int64 = 1_000_000

	// FeeDenom is the denominator for basis-point fee rates.
	FeeDenom int64 = 10_000

	// Capacity is the fixed number of order slots per round. The commitment
	// tree is always built over exactly this many (zero-padded) leaves.
	Capacity = 16

	// NumClaims is the exact length of a settlement public claims vector:
	// [roundID, price, buyVol, sellVol, count, ordersRoot, allowlistRoot,
	//  feeRate, fee, fill_0 .. fill_15].
	NumClaims = 9 + Capacity

	// MaxPhaseTicks bounds each configured phase duration.
	MaxPhaseTicks uint64 = 1_000_000
)

// PoolMode selects open or allowlist-gated participation.
type PoolMode string

const (
	PoolModeOpen  PoolMode = "open"
	PoolModeGated PoolMode = "gated"
)

// PoolConfig is the immutable per-market configuration. It is set once at
// market creation and never changes afterwards.
type PoolConfig struct {
	Mode PoolMode

	// Phase durations in ticks, each in [1, MaxPhaseTicks].
	CommitTicks uint64
	RevealTicks uint64
	SettleTicks uint64
	ClaimTicks  uint64

	// FeeRateBps is the protocol fee rate in basis points over matched volume.
	FeeRateBps int64

	// AllowlistRoot is the Merkle root gating participation. Required
	// non-zero in gated mode; must be zero in open mode.
	AllowlistRoot common.Hash

	// StartBondUnits is the bond escrowed by the round starter. Zero
	// disables bonding.
	StartBondUnits int64

	// EmergencyTimeoutTicks is how long past the settle boundary a round may
	// stay unsettled before anyone can trip emergency mode.
	EmergencyTimeoutTicks uint64

	// PenaltyRateBps is deducted from emergency refunds of participants who
	// revealed (their order information is already public).
	PenaltyRateBps int64

	// Solver gate windows: the first PrimaryWindowTicks of the settle phase
	// admit primary solvers only, the next RegisteredWindowTicks admit any
	// registered solver, then anyone.
	PrimaryWindowTicks    uint64
	RegisteredWindowTicks uint64
}

// Validate checks the configuration and returns a combined error describing
// every problem found.
func (c PoolConfig) Validate() error {
	var errs []string

	if c.Mode != PoolModeOpen && c.Mode != PoolModeGated {
		errs = append(errs, fmt.Sprintf("unknown pool mode %q (valid: open, gated)", c.Mode))
	}
	for _, d := range []struct {
		name  string
		ticks uint64
	}{
		{"commit_ticks", c.CommitTicks},
		{"reveal_ticks", c.RevealTicks},
		{"settle_ticks", c.SettleTicks},
		{"claim_ticks", c.ClaimTicks},
	} {
		if d.ticks < 1 || d.ticks > MaxPhaseTicks {
			errs = append(errs, fmt.Sprintf("%s must be in [1, %d], got %d", d.name, MaxPhaseTicks, d.ticks))
		}
	}
	if c.FeeRateBps < 0 || c.FeeRateBps >= FeeDenom {
		errs = append(errs, fmt.Sprintf("fee_rate_bps must be in [0, %d), got %d", FeeDenom, c.FeeRateBps))
	}
	if c.Mode == PoolModeGated && c.AllowlistRoot == (common.Hash{}) {
		errs = append(errs, "gated mode requires a non-zero allowlist root")
	}
	if c.Mode == PoolModeOpen && c.AllowlistRoot != (common.Hash{}) {
		errs = append(errs, "open mode must not set an allowlist root")
	}
	if c.StartBondUnits < 0 {
		errs = append(errs, "start_bond_units must be >= 0")
	}
	if c.PenaltyRateBps < 0 || c.PenaltyRateBps > FeeDenom {
		errs = append(errs, fmt.Sprintf("penalty_rate_bps must be in [0, %d], got %d", FeeDenom, c.PenaltyRateBps))
	}

	if len(errs) > 0 {
		return fmt.Errorf("pool config invalid:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
