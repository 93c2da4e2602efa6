package engine

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/crypto"
	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/ledger"
	"github.com/sealedmarkets/batchpool/internal/proof"
	"github.com/sealedmarkets/batchpool/internal/solver"
)

var (
	testAdmin        = addr(0xAA)
	testFeeRecipient = addr(0xFE)
	testStarter      = addr(0x51)
	testSolver       = addr(0x50)
)

const unit = domain.UnitScale

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func salt(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

// testConfig mirrors a small open pool: 100-tick phases, 30 bps fee, 1%
// emergency penalty, 10/20 tick solver windows.
func testConfig() domain.PoolConfig {
	return domain.PoolConfig{
		Mode:                  domain.PoolModeOpen,
		CommitTicks:           100,
		RevealTicks:           100,
		SettleTicks:           100,
		ClaimTicks:            100,
		FeeRateBps:            30,
		EmergencyTimeoutTicks: 50,
		PenaltyRateBps:        100,
		PrimaryWindowTicks:    10,
		RegisteredWindowTicks: 20,
	}
}

type fixture struct {
	t     *testing.T
	m     *Market
	clock *ManualClock
	vault *ledger.InMemory
}

func newFixture(t *testing.T, cfg domain.PoolConfig, opts ...Option) *fixture {
	t.Helper()
	clock := &ManualClock{}
	vault := ledger.NewInMemory()
	m, err := NewMarket("test-market", cfg, clock, vault, proof.NewStatic(), testAdmin, testFeeRecipient, opts...)
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	return &fixture{t: t, m: m, clock: clock, vault: vault}
}

func (f *fixture) startRound() domain.Batch {
	f.t.Helper()
	if f.m.Config().StartBondUnits > 0 {
		f.vault.Mint(testStarter, domain.AssetQuote, f.m.Config().StartBondUnits)
	}
	b, err := f.m.StartRound(testStarter)
	if err != nil {
		f.t.Fatalf("StartRound: %v", err)
	}
	return b
}

type order struct {
	owner   common.Address
	amount  int64
	price   int64
	side    domain.Side
	salt    common.Hash
	deposit int64
}

// commit mints the deposit and submits the order's binding hash.
func (f *fixture) commit(o order) {
	f.t.Helper()
	f.vault.Mint(o.owner, domain.AssetQuote, o.deposit)
	h := crypto.CommitmentHash(o.owner, o.amount, o.price, o.side, o.salt)
	if err := f.m.Commit(o.owner, h, o.deposit, o.deposit, nil); err != nil {
		f.t.Fatalf("Commit %s: %v", o.owner.Hex(), err)
	}
}

func (f *fixture) reveal(o order) domain.RevealRecord {
	f.t.Helper()
	rec, err := f.m.Reveal(o.owner, o.amount, o.price, o.side, o.salt)
	if err != nil {
		f.t.Fatalf("Reveal %s: %v", o.owner.Hex(), err)
	}
	return rec
}

// settle runs the reference solver over the reveal log and submits the
// result, minting baseFunding to the solver first.
func (f *fixture) settle(orders []domain.RevealRecord, solverAddr common.Address, baseFunding int64) domain.SettlementSummary {
	f.t.Helper()
	sum, err := f.trySettle(orders, solverAddr, baseFunding)
	if err != nil {
		f.t.Fatalf("Settle: %v", err)
	}
	return sum
}

func (f *fixture) trySettle(orders []domain.RevealRecord, solverAddr common.Address, baseFunding int64) (domain.SettlementSummary, error) {
	f.t.Helper()
	b, ok := f.m.CurrentRound()
	if !ok {
		f.t.Fatal("no current round")
	}
	proofBytes, vec, err := solver.New(proof.NewStatic()).Solve(context.Background(), b, f.m.Config(), orders)
	if err != nil {
		f.t.Fatalf("Solve: %v", err)
	}
	if baseFunding > 0 {
		f.vault.Mint(solverAddr, domain.AssetBase, baseFunding)
	}
	return f.m.Settle(context.Background(), solverAddr, proofBytes, vec)
}
