package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/proof"
	"github.com/sealedmarkets/batchpool/internal/solver"
)

// settleFixture drives a round to the settle phase with the worked-example
// order pair revealed and returns the solver's valid proof and claims.
func settleFixture(t *testing.T, opts ...Option) (*fixture, []byte, []*big.Int) {
	t.Helper()
	f := newFixture(t, testConfig(), opts...)
	f.startRound()

	buy := order{owner: addr(0x01), amount: 100 * unit, price: 1_000_000, side: domain.SideBuy, salt: salt(1), deposit: 100 * unit}
	sell := order{owner: addr(0x02), amount: 100 * unit, price: 900_000, side: domain.SideSell, salt: salt(2), deposit: 90 * unit}
	f.commit(buy)
	f.commit(sell)
	f.clock.Set(100)
	recs := []domain.RevealRecord{f.reveal(buy), f.reveal(sell)}
	f.clock.Set(200)

	b, _ := f.m.CurrentRound()
	proofBytes, vec, err := solver.New(proof.NewStatic()).Solve(context.Background(), b, f.m.Config(), recs)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	return f, proofBytes, vec
}

func cloneVec(v []*big.Int) []*big.Int {
	out := make([]*big.Int, len(v))
	for i, w := range v {
		out[i] = new(big.Int).Set(w)
	}
	return out
}

// TestSettleClaimMismatches tampers one claim slot at a time and checks the
// validator names the field, before the proof is ever consulted.
func TestSettleClaimMismatches(t *testing.T) {
	f, proofBytes, vec := settleFixture(t)
	ctx := context.Background()

	cases := []struct {
		field  string
		mutate func(v []*big.Int)
	}{
		{"round_id", func(v []*big.Int) { v[domain.ClaimRoundID].Add(v[domain.ClaimRoundID], big.NewInt(1)) }},
		{"order_count", func(v []*big.Int) { v[domain.ClaimOrderCount].SetInt64(3) }},
		{"orders_root", func(v []*big.Int) { v[domain.ClaimOrdersRoot].Add(v[domain.ClaimOrdersRoot], big.NewInt(1)) }},
		{"allowlist_root", func(v []*big.Int) { v[domain.ClaimAllowlistRoot].SetInt64(1) }},
		{"fee_rate", func(v []*big.Int) { v[domain.ClaimFeeRate].SetInt64(31) }},
		{"protocol_fee", func(v []*big.Int) { v[domain.ClaimSellVolume].SetInt64(45 * unit) }},
		{"clearing_price", func(v []*big.Int) { v[domain.ClaimClearingPrice].SetInt64(0) }},
		{"fill_5", func(v []*big.Int) { v[domain.ClaimFill0+5].SetInt64(1) }},
	}
	for _, tc := range cases {
		mutated := cloneVec(vec)
		tc.mutate(mutated)

		_, err := f.m.Settle(ctx, testSolver, proofBytes, mutated)
		var cme *domain.ClaimMismatchError
		if !errors.As(err, &cme) {
			t.Errorf("%s: err = %v, want ClaimMismatchError", tc.field, err)
			continue
		}
		if cme.Field != tc.field {
			t.Errorf("mismatch field = %q, want %q", cme.Field, tc.field)
		}
	}

	// Every rejection left the round unsettled; the honest submission still
	// lands.
	f.vault.Mint(testSolver, domain.AssetBase, 100*unit)
	if _, err := f.m.Settle(ctx, testSolver, proofBytes, vec); err != nil {
		t.Fatalf("honest settle after rejections: %v", err)
	}
}

func TestSettleClaimsLength(t *testing.T) {
	f, proofBytes, vec := settleFixture(t)
	_, err := f.m.Settle(context.Background(), testSolver, proofBytes, vec[:len(vec)-1])
	var cle *domain.ClaimsLengthError
	if !errors.As(err, &cle) {
		t.Fatalf("short vector: err = %v, want ClaimsLengthError", err)
	}
	if cle.Expected != domain.NumClaims || cle.Actual != domain.NumClaims-1 {
		t.Errorf("length error = (%d, %d), want (%d, %d)", cle.Expected, cle.Actual, domain.NumClaims, domain.NumClaims-1)
	}
}

func TestSettleRejectsBadProof(t *testing.T) {
	f, proofBytes, vec := settleFixture(t)

	bad := append([]byte(nil), proofBytes...)
	bad[0] ^= 0xFF
	if _, err := f.m.Settle(context.Background(), testSolver, bad, vec); !errors.Is(err, domain.ErrProofRejected) {
		t.Fatalf("tampered proof: err = %v, want ErrProofRejected", err)
	}

	// Claims consistent with themselves but not with this round are caught
	// locally even when the proof over them is sound.
	forged := cloneVec(vec)
	forged[domain.ClaimRoundID].SetInt64(9)
	forgedProof, err := proof.NewStatic().Prove(context.Background(), forged)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	_, err = f.m.Settle(context.Background(), testSolver, forgedProof, forged)
	var cme *domain.ClaimMismatchError
	if !errors.As(err, &cme) {
		t.Fatalf("forged round id: err = %v, want ClaimMismatchError", err)
	}
}

func TestSettleIdempotence(t *testing.T) {
	f, proofBytes, vec := settleFixture(t)
	ctx := context.Background()
	f.vault.Mint(testSolver, domain.AssetBase, 100*unit)

	if _, err := f.m.Settle(ctx, testSolver, proofBytes, vec); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if _, err := f.m.Settle(ctx, testSolver, proofBytes, vec); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("second settle: err = %v, want ErrAlreadySettled", err)
	}
}

func TestSettlePhaseWindow(t *testing.T) {
	f, proofBytes, vec := settleFixture(t)
	ctx := context.Background()

	f.clock.Set(300) // claim phase
	_, err := f.m.Settle(ctx, testSolver, proofBytes, vec)
	var wpe *domain.WrongPhaseError
	if !errors.As(err, &wpe) || wpe.Expected != domain.PhaseSettle {
		t.Fatalf("settle in claim phase: err = %v, want WrongPhaseError{settle}", err)
	}
}

// TestSettleLiquidityShortfall checks a solver who cannot cover the base leg
// rejects atomically: no claimables, no status changes, round still open for
// a funded retry.
func TestSettleLiquidityShortfall(t *testing.T) {
	f, proofBytes, vec := settleFixture(t)
	ctx := context.Background()

	if _, err := f.m.Settle(ctx, testSolver, proofBytes, vec); !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Fatalf("unfunded settle: err = %v, want ErrInsufficientLiquidity", err)
	}

	b, _ := f.m.CurrentRound()
	if b.Settled {
		t.Fatal("round marked settled after rejected settlement")
	}
	if _, err := f.m.ClaimableOf(b.ID, addr(0x01)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("claimable exists after rejected settlement: err = %v", err)
	}
	if fees := f.m.ProtocolFees(); fees != 0 {
		t.Fatalf("protocol fees = %d after rejected settlement, want 0", fees)
	}

	f.vault.Mint(testSolver, domain.AssetBase, 100*unit)
	if _, err := f.m.Settle(ctx, testSolver, proofBytes, vec); err != nil {
		t.Fatalf("funded retry: %v", err)
	}
}

func TestSolverTiers(t *testing.T) {
	reg := NewRegistry()
	primary := addr(0xA1)
	registered := addr(0xA2)
	outsider := addr(0xA3)
	if err := reg.Register(primary); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.SetPrimary(primary, true); err != nil {
		t.Fatalf("SetPrimary: %v", err)
	}
	if err := reg.Register(registered); err != nil {
		t.Fatalf("Register: %v", err)
	}

	f := newFixture(t, testConfig(), WithSolverGate(reg))

	// Window 1: primary only. An empty round settles with zero orders, which
	// keeps the focus on the gate.
	f.startRound()
	f.clock.Set(200)
	if _, err := f.trySettle(nil, outsider, 0); !errors.Is(err, domain.ErrUnauthorizedSolver) {
		t.Errorf("outsider in primary window: err = %v, want ErrUnauthorizedSolver", err)
	}
	if _, err := f.trySettle(nil, registered, 0); !errors.Is(err, domain.ErrUnauthorizedSolver) {
		t.Errorf("registered in primary window: err = %v, want ErrUnauthorizedSolver", err)
	}
	if _, err := f.trySettle(nil, primary, 0); err != nil {
		t.Fatalf("primary in primary window: %v", err)
	}

	// Window 2: any registered solver.
	f.clock.Set(400)
	f.startRound()
	f.clock.Set(400 + 210)
	if _, err := f.trySettle(nil, outsider, 0); !errors.Is(err, domain.ErrUnauthorizedSolver) {
		t.Errorf("outsider in registered window: err = %v, want ErrUnauthorizedSolver", err)
	}
	if _, err := f.trySettle(nil, registered, 0); err != nil {
		t.Fatalf("registered in registered window: %v", err)
	}

	// Past both windows: anyone.
	f.clock.Set(800)
	f.startRound()
	f.clock.Set(800 + 230)
	if _, err := f.trySettle(nil, outsider, 0); err != nil {
		t.Fatalf("outsider in open window: %v", err)
	}

	info, err := reg.Get(registered)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.Successes != 1 || info.Failures != 0 {
		t.Errorf("registered outcomes = %d/%d, want 1/0", info.Successes, info.Failures)
	}
}

func TestEmergencyOverrideBypassesTiers(t *testing.T) {
	reg := NewRegistry()
	f := newFixture(t, testConfig(), WithSolverGate(reg))
	f.startRound()
	f.clock.Set(200)

	outsider := addr(0xA3)
	if _, err := f.trySettle(nil, outsider, 0); !errors.Is(err, domain.ErrUnauthorizedSolver) {
		t.Fatalf("outsider before override: err = %v, want ErrUnauthorizedSolver", err)
	}
	if err := f.m.SetEmergencyOverride(addr(0x99), true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin override: err = %v, want ErrUnauthorized", err)
	}
	if err := f.m.SetEmergencyOverride(testAdmin, true); err != nil {
		t.Fatalf("SetEmergencyOverride: %v", err)
	}
	if _, err := f.trySettle(nil, outsider, 0); err != nil {
		t.Fatalf("outsider with override: %v", err)
	}
}

func TestSolverRewardShare(t *testing.T) {
	rewards := NewFeeRewards(5000, 0, 0) // half the fee
	f, proofBytes, vec := settleFixture(t, WithRewards(rewards))
	f.vault.Mint(testSolver, domain.AssetBase, 100*unit)

	if _, err := f.m.Settle(context.Background(), testSolver, proofBytes, vec); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if got := rewards.Accrued(testSolver); got != 135_000 {
		t.Errorf("accrued = %d, want 135000", got)
	}
	if fees := f.m.ProtocolFees(); fees != 135_000 {
		t.Errorf("protocol fees = %d, want 135000", fees)
	}

	amt, err := f.m.ClaimReward(testSolver)
	if err != nil {
		t.Fatalf("ClaimReward: %v", err)
	}
	if amt != 135_000 {
		t.Errorf("reward paid = %d, want 135000", amt)
	}
	if _, err := f.m.ClaimReward(testSolver); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Errorf("second reward claim: err = %v, want ErrNothingToClaim", err)
	}
}

func TestFeeRewardsSpeedBonus(t *testing.T) {
	fr := NewFeeRewards(1000, 500, 10)
	s := addr(0xA1)

	if got := fr.Accrue(s, 10_000, 5); got != 1500 {
		t.Errorf("bonus-window share = %d, want 1500", got)
	}
	if got := fr.Accrue(s, 10_000, 50); got != 1000 {
		t.Errorf("late share = %d, want 1000", got)
	}
	if got := fr.Accrued(s); got != 2500 {
		t.Errorf("accrued = %d, want 2500", got)
	}
	if got := fr.Redeem(s); got != 2500 {
		t.Errorf("redeemed = %d, want 2500", got)
	}
	if got := fr.Accrued(s); got != 0 {
		t.Errorf("accrued after redeem = %d, want 0", got)
	}
}
