package engine

import (
	"errors"
	"testing"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

func TestPhaseBoundaries(t *testing.T) {
	f := newFixture(t, testConfig())
	f.clock.Set(7)
	b := f.startRound()

	cases := []struct {
		tick uint64
		want domain.Phase
	}{
		{0, domain.PhaseInactive},
		{6, domain.PhaseInactive},
		{7, domain.PhaseCommit},
		{106, domain.PhaseCommit},
		{107, domain.PhaseReveal},
		{206, domain.PhaseReveal},
		{207, domain.PhaseSettle},
		{306, domain.PhaseSettle},
		{307, domain.PhaseClaim},
		{406, domain.PhaseClaim},
		{407, domain.PhaseFinalized},
		{10_000, domain.PhaseFinalized},
	}
	for _, tc := range cases {
		if got := b.PhaseAt(tc.tick); got != tc.want {
			t.Errorf("PhaseAt(%d) = %v, want %v", tc.tick, got, tc.want)
		}
	}
}

func TestPhaseMonotonic(t *testing.T) {
	f := newFixture(t, testConfig())
	f.clock.Set(3)
	b := f.startRound()

	prev := domain.PhaseInactive
	for tick := uint64(0); tick <= b.ClaimEnd+10; tick++ {
		got := b.PhaseAt(tick)
		if got < prev {
			t.Fatalf("phase regressed at tick %d: %v after %v", tick, got, prev)
		}
		prev = got
	}
	if prev != domain.PhaseFinalized {
		t.Errorf("final phase = %v, want finalized", prev)
	}
}

func TestStartRoundBlocksWhileActive(t *testing.T) {
	f := newFixture(t, testConfig())
	b := f.startRound()
	if b.ID != 1 {
		t.Fatalf("first round id = %d, want 1", b.ID)
	}

	if _, err := f.m.StartRound(testStarter); !errors.Is(err, domain.ErrRoundActive) {
		t.Fatalf("StartRound during active round: err = %v, want ErrRoundActive", err)
	}

	// Past the claim boundary the unsettled round no longer blocks.
	f.clock.Set(b.ClaimEnd)
	b2, err := f.m.StartRound(testStarter)
	if err != nil {
		t.Fatalf("StartRound after claim end: %v", err)
	}
	if b2.ID != 2 {
		t.Errorf("second round id = %d, want 2", b2.ID)
	}
	if b2.StartTick != b.ClaimEnd {
		t.Errorf("second round start tick = %d, want %d", b2.StartTick, b.ClaimEnd)
	}
}

func TestPhaseWithoutRound(t *testing.T) {
	f := newFixture(t, testConfig())
	id, phase := f.m.Phase()
	if id != 0 || phase != domain.PhaseInactive {
		t.Errorf("Phase() = (%d, %v), want (0, inactive)", id, phase)
	}
	if _, ok := f.m.CurrentRound(); ok {
		t.Error("CurrentRound reported a round before any was started")
	}
}

// TestSettlementEndToEnd walks the worked example: a buy of 100 units at 1.0
// against a sell of 100 units at 0.9 clears at 0.9. The buyer turns 100
// quote into 100 base plus 10 quote change, the seller receives 90 quote,
// and a 30 bps fee on the 90-unit matched notional is 0.27 units.
func TestSettlementEndToEnd(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	buyer := addr(0x01)
	seller := addr(0x02)
	buy := order{owner: buyer, amount: 100 * unit, price: 1_000_000, side: domain.SideBuy, salt: salt(1), deposit: 100 * unit}
	sell := order{owner: seller, amount: 100 * unit, price: 900_000, side: domain.SideSell, salt: salt(2), deposit: 90 * unit}

	f.commit(buy)
	f.commit(sell)

	f.clock.Set(100)
	recs := []domain.RevealRecord{f.reveal(buy), f.reveal(sell)}

	f.clock.Set(200)
	sum := f.settle(recs, testSolver, 100*unit)

	if sum.ClearingPrice != 900_000 {
		t.Errorf("clearing price = %d, want 900000", sum.ClearingPrice)
	}
	if sum.BuyVolume != 90*unit || sum.SellVolume != 90*unit {
		t.Errorf("volumes = (%d, %d), want (%d, %d)", sum.BuyVolume, sum.SellVolume, 90*unit, 90*unit)
	}
	if sum.ProtocolFee != 270_000 {
		t.Errorf("protocol fee = %d, want 270000", sum.ProtocolFee)
	}

	f.clock.Set(300)
	got, err := f.m.Claim(buyer, sum.RoundID)
	if err != nil {
		t.Fatalf("buyer claim: %v", err)
	}
	if got.BaseUnits != 100*unit || got.QuoteUnits != 10*unit {
		t.Errorf("buyer claimable = (%d base, %d quote), want (%d, %d)", got.BaseUnits, got.QuoteUnits, 100*unit, 10*unit)
	}

	got, err = f.m.Claim(seller, sum.RoundID)
	if err != nil {
		t.Fatalf("seller claim: %v", err)
	}
	if got.BaseUnits != 0 || got.QuoteUnits != 90*unit {
		t.Errorf("seller claimable = (%d base, %d quote), want (0, %d)", got.BaseUnits, got.QuoteUnits, 90*unit)
	}

	// The deposit pot residual accrues to the solver: 190 in, 100 paid out,
	// 0.27 fee.
	got, err = f.m.Claim(testSolver, sum.RoundID)
	if err != nil {
		t.Fatalf("solver claim: %v", err)
	}
	if want := 190*unit - 100*unit - 270_000; got.QuoteUnits != want {
		t.Errorf("solver residual = %d, want %d", got.QuoteUnits, want)
	}

	if fees := f.m.ProtocolFees(); fees != 270_000 {
		t.Errorf("protocol fees = %d, want 270000", fees)
	}

	// Double claim rejects without moving funds.
	if _, err := f.m.Claim(buyer, sum.RoundID); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("double claim: err = %v, want ErrAlreadyClaimed", err)
	}

	if bal := f.vault.BalanceOf(buyer, domain.AssetBase); bal != 100*unit {
		t.Errorf("buyer base balance = %d, want %d", bal, 100*unit)
	}
	if bal := f.vault.BalanceOf(seller, domain.AssetQuote); bal != 90*unit {
		t.Errorf("seller quote balance = %d, want %d", bal, 90*unit)
	}
}

func TestFinalize(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	buyer := addr(0x01)
	seller := addr(0x02)
	buy := order{owner: buyer, amount: 10 * unit, price: 1_000_000, side: domain.SideBuy, salt: salt(1), deposit: 10 * unit}
	sell := order{owner: seller, amount: 10 * unit, price: 1_000_000, side: domain.SideSell, salt: salt(2), deposit: 10 * unit}
	f.commit(buy)
	f.commit(sell)
	f.clock.Set(100)
	recs := []domain.RevealRecord{f.reveal(buy), f.reveal(sell)}
	f.clock.Set(200)
	sum := f.settle(recs, testSolver, 10*unit)

	if err := f.m.Finalize(sum.RoundID); err == nil {
		t.Fatal("Finalize before claim end succeeded")
	}

	f.clock.Set(400)
	if err := f.m.Finalize(sum.RoundID); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := f.m.Finalize(sum.RoundID); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Errorf("double finalize: err = %v, want ErrAlreadyFinalized", err)
	}

	// Claimables survive finalization.
	if _, err := f.m.Claim(buyer, sum.RoundID); err != nil {
		t.Errorf("claim after finalize: %v", err)
	}

	// A finalized round frees the market immediately.
	if _, err := f.m.StartRound(testStarter); err != nil {
		t.Errorf("StartRound after finalize: %v", err)
	}
}

func TestFinalizeUnsettledRejects(t *testing.T) {
	f := newFixture(t, testConfig())
	b := f.startRound()
	f.clock.Set(b.ClaimEnd)
	if err := f.m.Finalize(b.ID); !errors.Is(err, domain.ErrNotSettled) {
		t.Errorf("Finalize unsettled round: err = %v, want ErrNotSettled", err)
	}
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	buy := order{owner: addr(0x01), amount: 100 * unit, price: 1_000_000, side: domain.SideBuy, salt: salt(1), deposit: 100 * unit}
	sell := order{owner: addr(0x02), amount: 100 * unit, price: 900_000, side: domain.SideSell, salt: salt(2), deposit: 90 * unit}
	f.commit(buy)
	f.commit(sell)
	f.clock.Set(100)
	recs := []domain.RevealRecord{f.reveal(buy), f.reveal(sell)}
	f.clock.Set(200)
	f.settle(recs, testSolver, 100*unit)

	if _, err := f.m.WithdrawFees(addr(0x99)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin withdraw: err = %v, want ErrUnauthorized", err)
	}

	amt, err := f.m.WithdrawFees(testAdmin)
	if err != nil {
		t.Fatalf("WithdrawFees: %v", err)
	}
	if amt != 270_000 {
		t.Errorf("withdrawn = %d, want 270000", amt)
	}
	if bal := f.vault.BalanceOf(testFeeRecipient, domain.AssetQuote); bal != 270_000 {
		t.Errorf("fee recipient balance = %d, want 270000", bal)
	}
	if _, err := f.m.WithdrawFees(testAdmin); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Errorf("second withdraw: err = %v, want ErrNothingToClaim", err)
	}
}
