package engine

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/crypto"
	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/merkle"
)

func TestCommitRejections(t *testing.T) {
	f := newFixture(t, testConfig())
	owner := addr(0x01)
	hash := crypto.CommitmentHash(owner, unit, unit, domain.SideBuy, salt(1))

	if err := f.m.Commit(owner, hash, unit, unit, nil); !errors.Is(err, domain.ErrNoActiveRound) {
		t.Fatalf("commit without round: err = %v, want ErrNoActiveRound", err)
	}

	f.startRound()
	f.vault.Mint(owner, domain.AssetQuote, 10*unit)

	if err := f.m.Commit(owner, common.Hash{}, unit, unit, nil); !errors.Is(err, domain.ErrZeroCommitment) {
		t.Errorf("zero hash: err = %v, want ErrZeroCommitment", err)
	}
	if err := f.m.Commit(owner, hash, 0, 0, nil); !errors.Is(err, domain.ErrZeroDeposit) {
		t.Errorf("zero deposit: err = %v, want ErrZeroDeposit", err)
	}
	if err := f.m.Commit(owner, hash, 2*unit, unit, nil); !errors.Is(err, domain.ErrZeroDeposit) {
		t.Errorf("underpaid deposit: err = %v, want ErrZeroDeposit", err)
	}

	if err := f.m.Commit(owner, hash, unit, unit, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := f.m.Commit(owner, hash, unit, unit, nil); !errors.Is(err, domain.ErrAlreadyCommitted) {
		t.Errorf("duplicate commit: err = %v, want ErrAlreadyCommitted", err)
	}

	// Unfunded participant.
	if err := f.m.Commit(addr(0x02), hash, unit, unit, nil); !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Errorf("unfunded commit: err = %v, want ErrInsufficientLiquidity", err)
	}

	// Outside the commit phase.
	f.clock.Set(100)
	if err := f.m.Commit(addr(0x03), hash, unit, unit, nil); err == nil {
		t.Error("commit in reveal phase succeeded")
	} else {
		var wpe *domain.WrongPhaseError
		if !errors.As(err, &wpe) || wpe.Expected != domain.PhaseCommit {
			t.Errorf("commit in reveal phase: err = %v, want WrongPhaseError{commit}", err)
		}
	}
}

func TestCommitOverpaymentRefund(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	owner := addr(0x01)
	f.vault.Mint(owner, domain.AssetQuote, 10*unit)
	hash := crypto.CommitmentHash(owner, unit, unit, domain.SideBuy, salt(1))

	if err := f.m.Commit(owner, hash, 3*unit, 5*unit, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// 5 paid, 3 escrowed, 2 returned.
	if bal := f.vault.BalanceOf(owner, domain.AssetQuote); bal != 7*unit {
		t.Errorf("balance after overpaid commit = %d, want %d", bal, 7*unit)
	}
	c, err := f.m.Commitment(1, owner)
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if c.DepositUnits != 3*unit {
		t.Errorf("deposit = %d, want %d", c.DepositUnits, 3*unit)
	}
}

func TestCommitCapacity(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	for i := 0; i < domain.Capacity; i++ {
		f.commit(order{
			owner: addr(byte(i + 1)), amount: unit, price: unit,
			side: domain.SideBuy, salt: salt(byte(i + 1)), deposit: unit,
		})
	}

	over := addr(0x40)
	f.vault.Mint(over, domain.AssetQuote, unit)
	hash := crypto.CommitmentHash(over, unit, unit, domain.SideBuy, salt(0x40))
	if err := f.m.Commit(over, hash, unit, unit, nil); !errors.Is(err, domain.ErrCapacityFull) {
		t.Errorf("commit %d: err = %v, want ErrCapacityFull", domain.Capacity+1, err)
	}
}

func TestGatedCommit(t *testing.T) {
	member := addr(0x01)
	outsider := addr(0x02)
	al := merkle.BuildAllowlist([]common.Address{member, addr(0x03), addr(0x04)})

	cfg := testConfig()
	cfg.Mode = domain.PoolModeGated
	cfg.AllowlistRoot = al.Root()
	f := newFixture(t, cfg, WithMembership(merkle.Checker{}))
	f.startRound()

	f.vault.Mint(member, domain.AssetQuote, unit)
	f.vault.Mint(outsider, domain.AssetQuote, unit)

	proof, ok := al.ProofFor(member)
	if !ok {
		t.Fatal("no proof for member")
	}
	hash := crypto.CommitmentHash(member, unit, unit, domain.SideBuy, salt(1))
	if err := f.m.Commit(member, hash, unit, unit, proof); err != nil {
		t.Fatalf("member commit: %v", err)
	}

	hash = crypto.CommitmentHash(outsider, unit, unit, domain.SideBuy, salt(2))
	if err := f.m.Commit(outsider, hash, unit, unit, proof); !errors.Is(err, domain.ErrNotAllowed) {
		t.Errorf("outsider commit: err = %v, want ErrNotAllowed", err)
	}
	if err := f.m.Commit(outsider, hash, unit, unit, nil); !errors.Is(err, domain.ErrNotAllowed) {
		t.Errorf("outsider commit without proof: err = %v, want ErrNotAllowed", err)
	}
}

func TestGatedModeRequiresMembership(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = domain.PoolModeGated
	cfg.AllowlistRoot = salt(1)
	clock := &ManualClock{}
	if _, err := NewMarket("m", cfg, clock, nil, nil, testAdmin, testFeeRecipient); err == nil {
		t.Fatal("gated market without membership verifier constructed")
	}
}

// TestRevealBinding flips each disclosed field in turn and checks the
// commitment hash rejects every single-field mutation.
func TestRevealBinding(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	o := order{owner: addr(0x01), amount: 5 * unit, price: 900_000, side: domain.SideBuy, salt: salt(7), deposit: 5 * unit}
	f.commit(o)
	f.clock.Set(100)

	mutations := []struct {
		name   string
		amount int64
		price  int64
		side   domain.Side
		salt   common.Hash
	}{
		{"amount", o.amount + 1, o.price, o.side, o.salt},
		{"price", o.amount, o.price + 1, o.side, o.salt},
		{"side", o.amount, o.price, domain.SideSell, o.salt},
		{"salt", o.amount, o.price, o.side, salt(8)},
	}
	for _, mut := range mutations {
		_, err := f.m.Reveal(o.owner, mut.amount, mut.price, mut.side, mut.salt)
		var hme *domain.HashMismatchError
		if !errors.As(err, &hme) {
			t.Errorf("mutated %s: err = %v, want HashMismatchError", mut.name, err)
		}
	}

	// Unmutated disclosure passes, and assigns reveal index 0.
	rec := f.reveal(o)
	if rec.RevealIndex != 0 {
		t.Errorf("reveal index = %d, want 0", rec.RevealIndex)
	}
	if rec.LeafHash != crypto.OrderLeafHash(o.owner, o.amount, o.price, o.side) {
		t.Error("reveal record leaf hash does not match the order leaf")
	}

	// A revealed commitment cannot reveal again.
	if _, err := f.m.Reveal(o.owner, o.amount, o.price, o.side, o.salt); !errors.Is(err, domain.ErrCommitmentNotPending) {
		t.Errorf("double reveal: err = %v, want ErrCommitmentNotPending", err)
	}
}

func TestRevealWithoutCommitment(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()
	f.clock.Set(100)
	if _, err := f.m.Reveal(addr(0x01), unit, unit, domain.SideBuy, salt(1)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("reveal without commitment: err = %v, want ErrNotFound", err)
	}
}

func TestRevealOrderAssignsSequentialIndexes(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	orders := make([]order, 5)
	for i := range orders {
		orders[i] = order{
			owner: addr(byte(i + 1)), amount: unit, price: unit,
			side: domain.SideSell, salt: salt(byte(i + 1)), deposit: unit,
		}
		f.commit(orders[i])
	}
	f.clock.Set(100)

	// Reveal in reverse commit order; indexes follow reveal order.
	for i := len(orders) - 1; i >= 0; i-- {
		rec := f.reveal(orders[i])
		if want := len(orders) - 1 - i; rec.RevealIndex != want {
			t.Errorf("reveal index for %s = %d, want %d", orders[i].owner.Hex(), rec.RevealIndex, want)
		}
	}
}

func TestRefund(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	revealed := order{owner: addr(0x01), amount: unit, price: unit, side: domain.SideBuy, salt: salt(1), deposit: unit}
	silent := order{owner: addr(0x02), amount: unit, price: unit, side: domain.SideSell, salt: salt(2), deposit: 3 * unit}
	f.commit(revealed)
	f.commit(silent)

	f.clock.Set(100)
	f.reveal(revealed)

	// Refunds open at the settle boundary, not before.
	if _, err := f.m.Refund(silent.owner, 1); err == nil {
		t.Fatal("refund during reveal phase succeeded")
	}

	f.clock.Set(200)
	amt, err := f.m.Refund(silent.owner, 1)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if amt != 3*unit {
		t.Errorf("refund = %d, want %d", amt, 3*unit)
	}
	if bal := f.vault.BalanceOf(silent.owner, domain.AssetQuote); bal != 3*unit {
		t.Errorf("balance after refund = %d, want %d", bal, 3*unit)
	}

	if _, err := f.m.Refund(silent.owner, 1); !errors.Is(err, domain.ErrCommitmentNotPending) {
		t.Errorf("double refund: err = %v, want ErrCommitmentNotPending", err)
	}
	if _, err := f.m.Refund(revealed.owner, 1); !errors.Is(err, domain.ErrCommitmentNotPending) {
		t.Errorf("refund of revealed commitment: err = %v, want ErrCommitmentNotPending", err)
	}
	if _, err := f.m.Refund(addr(0x09), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("refund of unknown owner: err = %v, want ErrNotFound", err)
	}
}

func TestCommitmentLookup(t *testing.T) {
	f := newFixture(t, testConfig())
	f.startRound()

	o := order{owner: addr(0x01), amount: unit, price: unit, side: domain.SideBuy, salt: salt(1), deposit: 2 * unit}
	f.commit(o)

	c, err := f.m.Commitment(1, o.owner)
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if c.Status != domain.CommitmentPending {
		t.Errorf("status = %s, want %s", c.Status, domain.CommitmentPending)
	}
	if c.DepositUnits != 2*unit {
		t.Errorf("deposit = %d, want %d", c.DepositUnits, 2*unit)
	}
	if c.RevealIndex != -1 {
		t.Errorf("unrevealed reveal index = %d, want -1", c.RevealIndex)
	}
	if _, err := f.m.Commitment(1, addr(0x09)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown owner: err = %v, want ErrNotFound", err)
	}
	if _, err := f.m.Commitment(9, o.owner); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown round: err = %v, want ErrNotFound", err)
	}
}
