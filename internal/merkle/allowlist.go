package merkle

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AllowLeaf hashes a participant identity into an allowlist leaf.
func AllowLeaf(id common.Address) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(id[:]))
}

// VerifyMembership checks an allowlist inclusion proof against a root using
// the commutative pair rule. Unlike the commitment tree, allowlists have no
// fixed capacity, so the proof length is whatever the builder produced.
func VerifyMembership(root common.Hash, id common.Address, proof []common.Hash) bool {
	if root == EmptyRoot {
		return false
	}
	h := AllowLeaf(id)
	for _, sib := range proof {
		h = PairHash(h, sib)
	}
	return h == root
}

// Checker adapts VerifyMembership to the engine's membership-verifier
// interface shape.
type Checker struct{}

// IsMember reports allowlist membership.
func (Checker) IsMember(id common.Address, root common.Hash, proof []common.Hash) bool {
	return VerifyMembership(root, id, proof)
}

// Allowlist is a membership set with precomputed proofs, used by tests and
// by the dev tooling that hands proofs to gated participants. The on-path
// engine only ever verifies.
type Allowlist struct {
	root    common.Hash
	proofs  map[common.Address][]common.Hash
	members []common.Address
}

// BuildAllowlist constructs the sorted, zero-padded membership tree over the
// given identities and precomputes every member's proof.
func BuildAllowlist(members []common.Address) *Allowlist {
	al := &Allowlist{proofs: make(map[common.Address][]common.Hash)}
	if len(members) == 0 {
		return al
	}

	// Deduplicate and sort for a canonical tree.
	seen := make(map[common.Address]bool, len(members))
	for _, m := range members {
		if !seen[m] {
			seen[m] = true
			al.members = append(al.members, m)
		}
	}
	sort.Slice(al.members, func(i, j int) bool {
		return al.members[i].Cmp(al.members[j]) < 0
	})

	size := 1
	for size < len(al.members) {
		size *= 2
	}
	level := make([]common.Hash, size)
	for i, m := range al.members {
		level[i] = AllowLeaf(m)
	}

	paths := make([][]common.Hash, len(al.members))
	for width := size; width > 1; width /= 2 {
		for i := range paths {
			idx := indexAtWidth(i, size, width)
			paths[i] = append(paths[i], level[idx^1])
		}
		for j := 0; j < width/2; j++ {
			level[j] = PairHash(level[2*j], level[2*j+1])
		}
	}
	al.root = level[0]
	for i, m := range al.members {
		al.proofs[m] = paths[i]
	}
	return al
}

// indexAtWidth maps a leaf index to its node index once the level has been
// collapsed down to the given width.
func indexAtWidth(leaf, size, width int) int {
	shift := 0
	for w := size; w > width; w /= 2 {
		shift++
	}
	return leaf >> shift
}

// Root returns the allowlist root, or the zero hash for an empty list.
func (al *Allowlist) Root() common.Hash {
	return al.root
}

// ProofFor returns the membership proof for id, or false if id is not a
// member.
func (al *Allowlist) ProofFor(id common.Address) ([]common.Hash, bool) {
	p, ok := al.proofs[id]
	return p, ok
}

// Members returns the canonical (sorted, deduplicated) member set.
func (al *Allowlist) Members() []common.Address {
	out := make([]common.Address, len(al.members))
	copy(out, al.members)
	return out
}
