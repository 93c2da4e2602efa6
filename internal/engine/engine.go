// Package engine implements the batch auction settlement engine: the phase
// state machine, the commitment/reveal ledger, settlement validation and
// execution, solver gating, the emergency safety net, and the pause bitset.
// A Market serializes every state-changing operation behind one mutex; each
// operation either completes atomically or rejects with no partial effect.
package engine

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// TickSource is the external monotonic counter the engine reads but never
// sets. Phase boundaries are expressed in its ticks.
type TickSource interface {
	Tick() uint64
}

// Vault is the external two-asset value ledger the engine moves funds
// through. EscrowIn pulls from the owner's free balance; EscrowOut releases
// back to it.
type Vault interface {
	EscrowIn(owner common.Address, asset domain.Asset, units int64) error
	EscrowOut(owner common.Address, asset domain.Asset, units int64) error
	BalanceOf(owner common.Address, asset domain.Asset) int64
}

// ProofVerifier is the external succinct-proof verifier, the engine's only
// external call. The engine only ever trusts its boolean answer, and only
// after every local claim check has already passed.
type ProofVerifier interface {
	Verify(ctx context.Context, proof []byte, claims []*big.Int) (bool, error)
}

// MembershipVerifier checks allowlist inclusion proofs in gated mode.
type MembershipVerifier interface {
	IsMember(id common.Address, root common.Hash, proof []common.Hash) bool
}

// WallClock derives ticks from wall time: one tick per interval since epoch.
type WallClock struct {
	Epoch    time.Time
	Interval time.Duration
}

// Tick implements TickSource.
func (c WallClock) Tick() uint64 {
	if c.Interval <= 0 {
		return 0
	}
	d := time.Since(c.Epoch)
	if d < 0 {
		return 0
	}
	return uint64(d / c.Interval)
}

// ManualClock is a hand-advanced tick source for tests and simulations.
type ManualClock struct {
	t atomic.Uint64
}

// Tick implements TickSource.
func (c *ManualClock) Tick() uint64 {
	return c.t.Load()
}

// Set moves the clock to an absolute tick. Moving backwards is ignored:
// the counter is monotonic.
func (c *ManualClock) Set(tick uint64) {
	for {
		cur := c.t.Load()
		if tick <= cur || c.t.CompareAndSwap(cur, tick) {
			return
		}
	}
}

// Advance moves the clock forward by delta ticks.
func (c *ManualClock) Advance(delta uint64) {
	c.t.Add(delta)
}
