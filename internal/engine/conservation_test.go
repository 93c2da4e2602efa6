package engine

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// TestConservationRandomized runs randomized commit/reveal/settle/refund/claim
// sequences and checks that value is conserved exactly: once every payout
// path has drained, escrow is empty and the sum of free balances equals what
// was minted.
func TestConservationRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 25; trial++ {
		f := newFixture(t, testConfig())
		f.startRound()

		n := 2 + rng.Intn(domain.Capacity-2)
		orders := make([]order, n)
		var mintedQuote int64
		for i := range orders {
			side := domain.SideBuy
			if rng.Intn(2) == 0 {
				side = domain.SideSell
			}
			amount := (1 + rng.Int63n(50)) * unit
			orders[i] = order{
				owner:  addr(byte(i + 1)),
				amount: amount,
				price:  800_000 + rng.Int63n(400_001),
				side:   side,
				salt:   salt(byte(i + 1)),
				// Double the amount comfortably covers the worst-case
				// notional at the 1.2 price cap.
				deposit: 2 * amount,
			}
			f.commit(orders[i])
			mintedQuote += orders[i].deposit
		}

		f.clock.Set(100)
		var recs []domain.RevealRecord
		var unrevealed []common.Address
		var mintedBase int64
		for _, o := range orders {
			if rng.Intn(4) == 0 {
				unrevealed = append(unrevealed, o.owner)
				continue
			}
			recs = append(recs, f.reveal(o))
			mintedBase += o.amount
		}

		f.clock.Set(200)
		sum := f.settle(recs, testSolver, mintedBase)

		for _, owner := range unrevealed {
			if _, err := f.m.Refund(owner, sum.RoundID); err != nil {
				t.Fatalf("trial %d: refund %s: %v", trial, owner.Hex(), err)
			}
		}

		f.clock.Set(300)
		claimants := append([]common.Address{testSolver}, unrevealed...)
		for _, o := range orders {
			claimants = append(claimants, o.owner)
		}
		for _, owner := range claimants {
			if _, err := f.m.Claim(owner, sum.RoundID); err != nil &&
				!errors.Is(err, domain.ErrNothingToClaim) && !errors.Is(err, domain.ErrAlreadyClaimed) {
				t.Fatalf("trial %d: claim %s: %v", trial, owner.Hex(), err)
			}
		}
		if _, err := f.m.WithdrawFees(testAdmin); err != nil && !errors.Is(err, domain.ErrNothingToClaim) {
			t.Fatalf("trial %d: withdraw fees: %v", trial, err)
		}

		if got := f.vault.EscrowBalance(domain.AssetQuote); got != 0 {
			t.Fatalf("trial %d: quote escrow = %d after full drain, want 0", trial, got)
		}
		if got := f.vault.EscrowBalance(domain.AssetBase); got != 0 {
			t.Fatalf("trial %d: base escrow = %d after full drain, want 0", trial, got)
		}

		var freeQuote, freeBase int64
		holders := append([]common.Address{testSolver, testFeeRecipient}, claimants...)
		seen := make(map[common.Address]bool)
		for _, h := range holders {
			if seen[h] {
				continue
			}
			seen[h] = true
			freeQuote += f.vault.BalanceOf(h, domain.AssetQuote)
			freeBase += f.vault.BalanceOf(h, domain.AssetBase)
		}
		if freeQuote != mintedQuote {
			t.Fatalf("trial %d: free quote = %d, want %d", trial, freeQuote, mintedQuote)
		}
		if freeBase != mintedBase {
			t.Fatalf("trial %d: free base = %d, want %d", trial, freeBase, mintedBase)
		}
	}
}

// TestConservationEmergency checks the emergency path conserves value: every
// refund plus the penalty revenue adds back up to the deposits.
func TestConservationEmergency(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	f := newFixture(t, testConfig())
	b := f.startRound()

	n := 8
	orders := make([]order, n)
	var mintedQuote int64
	for i := range orders {
		amount := (1 + rng.Int63n(20)) * unit
		orders[i] = order{
			owner: addr(byte(i + 1)), amount: amount, price: unit,
			side: domain.SideBuy, salt: salt(byte(i + 1)), deposit: amount,
		}
		f.commit(orders[i])
		mintedQuote += amount
	}

	f.clock.Set(100)
	for i, o := range orders {
		if i%2 == 0 {
			f.reveal(o)
		}
	}

	f.clock.Set(b.SettleEnd + f.m.Config().EmergencyTimeoutTicks)
	if err := f.m.ActivateEmergency(b.ID); err != nil {
		t.Fatalf("ActivateEmergency: %v", err)
	}

	var refunded int64
	for _, o := range orders {
		amt, err := f.m.EmergencyRefund(o.owner, b.ID)
		if err != nil {
			t.Fatalf("emergency refund %s: %v", o.owner.Hex(), err)
		}
		refunded += amt
	}

	penalties := f.m.ProtocolFees()
	if refunded+penalties != mintedQuote {
		t.Fatalf("refunds %d + penalties %d != deposits %d", refunded, penalties, mintedQuote)
	}
	if got := f.vault.EscrowBalance(domain.AssetQuote); got != penalties {
		t.Fatalf("quote escrow = %d, want retained penalties %d", got, penalties)
	}

	if _, err := f.m.WithdrawFees(testAdmin); err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	if got := f.vault.EscrowBalance(domain.AssetQuote); got != 0 {
		t.Fatalf("quote escrow = %d after fee withdrawal, want 0", got)
	}
}
