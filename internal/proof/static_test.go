package proof

import (
	"context"
	"math/big"
	"testing"
)

func TestStaticRoundTrip(t *testing.T) {
	s := NewStatic()
	claims := []*big.Int{big.NewInt(1), big.NewInt(250_000), big.NewInt(0)}

	p, err := s.Prove(context.Background(), claims)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	ok, err := s.Verify(context.Background(), p, claims)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("proof for identical claims rejected")
	}
}

func TestStaticRejectsTamperedClaims(t *testing.T) {
	s := NewStatic()
	claims := []*big.Int{big.NewInt(10), big.NewInt(20)}

	p, err := s.Prove(context.Background(), claims)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	tampered := []*big.Int{big.NewInt(10), big.NewInt(21)}
	ok, err := s.Verify(context.Background(), p, tampered)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("tampered claims accepted")
	}
}

func TestStaticRejectsTamperedProof(t *testing.T) {
	s := NewStatic()
	claims := []*big.Int{big.NewInt(42)}

	p, err := s.Prove(context.Background(), claims)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	p[0] ^= 0xFF

	ok, err := s.Verify(context.Background(), p, claims)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("flipped proof byte accepted")
	}
}

func TestStaticBindsClaimOrder(t *testing.T) {
	s := NewStatic()
	a := []*big.Int{big.NewInt(1), big.NewInt(2)}
	b := []*big.Int{big.NewInt(2), big.NewInt(1)}

	pa, _ := s.Prove(context.Background(), a)
	ok, err := s.Verify(context.Background(), pa, b)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("reordered claims accepted")
	}
}
