// Package ledger provides the two-asset value vault the engine moves funds
// through. The production ledger is an external system; this in-memory
// implementation backs dev deployments and tests, and defines the reference
// semantics: exact escrow accounting, no negative balances, and
// refund-excess-on-overpayment handled by the engine on top of it.
package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// InMemory tracks free balances per (owner, asset) and a single escrow
// account per asset. All methods are safe for concurrent use.
type InMemory struct {
	mu       sync.Mutex
	balances map[common.Address]map[domain.Asset]int64
	escrow   map[domain.Asset]int64
}

// NewInMemory returns an empty vault.
func NewInMemory() *InMemory {
	return &InMemory{
		balances: make(map[common.Address]map[domain.Asset]int64),
		escrow:   make(map[domain.Asset]int64),
	}
}

// Mint credits units to an owner's free balance. Dev/test funding only.
func (v *InMemory) Mint(owner common.Address, asset domain.Asset, units int64) {
	if units <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(owner, asset, units)
}

// EscrowIn moves units from the owner's free balance into escrow.
func (v *InMemory) EscrowIn(owner common.Address, asset domain.Asset, units int64) error {
	if units < 0 {
		return fmt.Errorf("ledger: negative escrow amount %d", units)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balanceLocked(owner, asset) < units {
		return fmt.Errorf("ledger: %s has %d %s units, need %d: %w",
			owner.Hex(), v.balanceLocked(owner, asset), asset, units, domain.ErrInsufficientLiquidity)
	}
	v.credit(owner, asset, -units)
	v.escrow[asset] += units
	return nil
}

// EscrowOut moves units from escrow to the owner's free balance.
func (v *InMemory) EscrowOut(owner common.Address, asset domain.Asset, units int64) error {
	if units < 0 {
		return fmt.Errorf("ledger: negative escrow release %d", units)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.escrow[asset] < units {
		return fmt.Errorf("ledger: escrow holds %d %s units, need %d", v.escrow[asset], asset, units)
	}
	v.escrow[asset] -= units
	v.credit(owner, asset, units)
	return nil
}

// BalanceOf returns the owner's free balance for an asset.
func (v *InMemory) BalanceOf(owner common.Address, asset domain.Asset) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balanceLocked(owner, asset)
}

// EscrowBalance returns the escrowed total for an asset.
func (v *InMemory) EscrowBalance(asset domain.Asset) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.escrow[asset]
}

func (v *InMemory) balanceLocked(owner common.Address, asset domain.Asset) int64 {
	if m, ok := v.balances[owner]; ok {
		return m[asset]
	}
	return 0
}

func (v *InMemory) credit(owner common.Address, asset domain.Asset, delta int64) {
	m, ok := v.balances[owner]
	if !ok {
		m = make(map[domain.Asset]int64)
		v.balances[owner] = m
	}
	m[asset] += delta
}
