package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestEscrowRoundTrip(t *testing.T) {
	v := NewInMemory()
	owner := addr(1)

	v.Mint(owner, domain.AssetQuote, 100)
	if got := v.BalanceOf(owner, domain.AssetQuote); got != 100 {
		t.Fatalf("balance after mint = %d, want 100", got)
	}

	if err := v.EscrowIn(owner, domain.AssetQuote, 60); err != nil {
		t.Fatalf("EscrowIn: %v", err)
	}
	if got := v.BalanceOf(owner, domain.AssetQuote); got != 40 {
		t.Fatalf("balance after escrow = %d, want 40", got)
	}
	if got := v.EscrowBalance(domain.AssetQuote); got != 60 {
		t.Fatalf("escrow = %d, want 60", got)
	}

	if err := v.EscrowOut(owner, domain.AssetQuote, 60); err != nil {
		t.Fatalf("EscrowOut: %v", err)
	}
	if got := v.BalanceOf(owner, domain.AssetQuote); got != 100 {
		t.Fatalf("balance after release = %d, want 100", got)
	}
	if got := v.EscrowBalance(domain.AssetQuote); got != 0 {
		t.Fatalf("escrow after release = %d, want 0", got)
	}
}

func TestEscrowInInsufficient(t *testing.T) {
	v := NewInMemory()
	owner := addr(2)
	v.Mint(owner, domain.AssetQuote, 10)

	err := v.EscrowIn(owner, domain.AssetQuote, 11)
	if !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Fatalf("EscrowIn err = %v, want ErrInsufficientLiquidity", err)
	}
	if got := v.BalanceOf(owner, domain.AssetQuote); got != 10 {
		t.Fatalf("balance changed on failed escrow: %d", got)
	}
}

func TestEscrowOutOverdraw(t *testing.T) {
	v := NewInMemory()
	owner := addr(3)
	v.Mint(owner, domain.AssetBase, 5)
	if err := v.EscrowIn(owner, domain.AssetBase, 5); err != nil {
		t.Fatalf("EscrowIn: %v", err)
	}

	if err := v.EscrowOut(owner, domain.AssetBase, 6); err == nil {
		t.Fatal("EscrowOut over escrow balance should fail")
	}
}

func TestAssetsIsolated(t *testing.T) {
	v := NewInMemory()
	owner := addr(4)
	v.Mint(owner, domain.AssetBase, 7)

	if got := v.BalanceOf(owner, domain.AssetQuote); got != 0 {
		t.Fatalf("quote balance = %d, want 0", got)
	}
	if err := v.EscrowIn(owner, domain.AssetQuote, 1); err == nil {
		t.Fatal("escrow of unfunded asset should fail")
	}
}

func TestNegativeAmountsRejected(t *testing.T) {
	v := NewInMemory()
	owner := addr(5)
	v.Mint(owner, domain.AssetQuote, -10)
	if got := v.BalanceOf(owner, domain.AssetQuote); got != 0 {
		t.Fatalf("negative mint credited %d units", got)
	}

	if err := v.EscrowIn(owner, domain.AssetQuote, -1); err == nil {
		t.Fatal("negative EscrowIn should fail")
	}
	if err := v.EscrowOut(owner, domain.AssetQuote, -1); err == nil {
		t.Fatal("negative EscrowOut should fail")
	}
}
