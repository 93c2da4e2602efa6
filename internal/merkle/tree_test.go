package merkle

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func leaf(b byte) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256([]byte{b}))
}

func TestPairHashCommutes(t *testing.T) {
	a, b := leaf(1), leaf(2)
	if PairHash(a, b) != PairHash(b, a) {
		t.Fatal("pair hash depends on child order")
	}
	if PairHash(a, b) == PairHash(a, a) {
		t.Fatal("distinct pairs collide")
	}
}

func TestEmptyRoot(t *testing.T) {
	tr := NewTree()
	if tr.Root() != EmptyRoot {
		t.Fatal("empty tree root is not the sentinel")
	}
	if RootOf(nil) != EmptyRoot {
		t.Fatal("RootOf(nil) is not the sentinel")
	}

	// A single explicit zero leaf is a real tree, distinct from empty.
	if RootOf([]common.Hash{{}}) == EmptyRoot {
		t.Fatal("zero-leaf root collides with the empty sentinel")
	}
}

func TestInclusionRoundTrip(t *testing.T) {
	for n := 1; n <= Capacity; n++ {
		tr := NewTree()
		for i := 0; i < n; i++ {
			idx, err := tr.Append(leaf(byte(i + 1)))
			if err != nil {
				t.Fatalf("n=%d append %d: %v", n, i, err)
			}
			if idx != i {
				t.Fatalf("n=%d append %d: index = %d", n, i, idx)
			}
		}

		root := tr.Root()
		for i := 0; i < n; i++ {
			p, err := tr.Proof(i)
			if err != nil {
				t.Fatalf("n=%d proof %d: %v", n, i, err)
			}
			if !VerifyInclusion(root, leaf(byte(i+1)), p) {
				t.Errorf("n=%d leaf %d: proof rejected", n, i)
			}
			if VerifyInclusion(root, leaf(0xEE), p) {
				t.Errorf("n=%d leaf %d: foreign leaf verified", n, i)
			}
		}
	}
}

func TestInclusionRejectsWrongShape(t *testing.T) {
	tr := NewTree()
	tr.Append(leaf(1))
	p, err := tr.Proof(0)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	root := tr.Root()

	if VerifyInclusion(root, leaf(1), p[:len(p)-1]) {
		t.Error("short proof verified")
	}
	if VerifyInclusion(root, leaf(1), append(p, common.Hash{})) {
		t.Error("long proof verified")
	}
	if VerifyInclusion(EmptyRoot, common.Hash{}, make([]common.Hash, depth)) {
		t.Error("empty root verified a member")
	}
}

func TestTreeBounds(t *testing.T) {
	tr := NewTree()
	for i := 0; i < Capacity; i++ {
		if _, err := tr.Append(leaf(byte(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := tr.Append(leaf(0xFF)); !errors.Is(err, ErrTreeFull) {
		t.Errorf("append past capacity: err = %v, want ErrTreeFull", err)
	}
	if _, err := tr.Proof(Capacity); !errors.Is(err, ErrIndexRange) {
		t.Errorf("proof past count: err = %v, want ErrIndexRange", err)
	}
	if _, err := tr.Proof(-1); !errors.Is(err, ErrIndexRange) {
		t.Errorf("negative proof index: err = %v, want ErrIndexRange", err)
	}
	if got := tr.Count(); got != Capacity {
		t.Errorf("count = %d, want %d", got, Capacity)
	}
}

func TestRootMatchesArena(t *testing.T) {
	tr := NewTree()
	leaves := []common.Hash{leaf(1), leaf(2), leaf(3)}
	for _, l := range leaves {
		tr.Append(l)
	}
	if tr.Root() != RootOf(leaves) {
		t.Fatal("arena root differs from RootOf over the same leaves")
	}
}

func member(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestAllowlistRoundTrip(t *testing.T) {
	for n := 1; n <= 9; n++ {
		members := make([]common.Address, n)
		for i := range members {
			members[i] = member(byte(i + 1))
		}
		al := BuildAllowlist(members)

		for _, m := range members {
			p, ok := al.ProofFor(m)
			if !ok {
				t.Fatalf("n=%d: no proof for %s", n, m.Hex())
			}
			if !VerifyMembership(al.Root(), m, p) {
				t.Errorf("n=%d: proof for %s rejected", n, m.Hex())
			}
			if VerifyMembership(al.Root(), member(0xEE), p) {
				t.Errorf("n=%d: outsider verified with %s's proof", n, m.Hex())
			}
		}

		if _, ok := al.ProofFor(member(0xEE)); ok {
			t.Errorf("n=%d: proof produced for non-member", n)
		}
	}
}

func TestAllowlistCanonical(t *testing.T) {
	a := BuildAllowlist([]common.Address{member(3), member(1), member(2)})
	b := BuildAllowlist([]common.Address{member(1), member(2), member(3), member(2)})
	if a.Root() != b.Root() {
		t.Fatal("member order or duplicates changed the root")
	}
	if len(b.Members()) != 3 {
		t.Fatalf("members = %d, want 3 after dedupe", len(b.Members()))
	}
}

func TestAllowlistEmpty(t *testing.T) {
	al := BuildAllowlist(nil)
	if al.Root() != EmptyRoot {
		t.Fatal("empty allowlist root is not the sentinel")
	}
	if VerifyMembership(al.Root(), member(1), nil) {
		t.Fatal("membership verified against an empty allowlist")
	}
}

func TestCheckerAdapter(t *testing.T) {
	al := BuildAllowlist([]common.Address{member(1), member(2)})
	p, _ := al.ProofFor(member(1))
	c := Checker{}
	if !c.IsMember(member(1), al.Root(), p) {
		t.Error("checker rejected a member")
	}
	if c.IsMember(member(2), al.Root(), p) {
		t.Error("checker accepted the wrong member")
	}
}
