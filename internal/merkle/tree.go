// Package merkle implements the fixed-capacity commitment tree and the
// sorted-pair allowlist membership check. Both use the same commutative pair
// hash: children are ordered by byte value before hashing, so a verifier
// never needs to learn sibling order.
package merkle

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Capacity is the fixed number of leaf slots. Roots are always computed over
// exactly this many leaves, with unused slots zero-padded.
const Capacity = 16

// depth of a Capacity-leaf tree.
const depth = 4

var (
	ErrTreeFull   = errors.New("merkle: tree is full")
	ErrIndexRange = errors.New("merkle: leaf index out of range")
)

// EmptyRoot is the sentinel root for a tree with zero appended leaves. It is
// deliberately distinct from the root of sixteen zero leaves.
var EmptyRoot = common.Hash{}

// PairHash hashes two children commutatively: the byte-wise smaller child
// goes first.
func PairHash(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return common.BytesToHash(ethcrypto.Keccak256(a[:], b[:]))
}

// Tree is an arena of exactly Capacity leaf slots. Leaves are appended in
// reveal order; unused slots stay zero. Root computation is a pure function
// of the slot array.
type Tree struct {
	leaves [Capacity]common.Hash
	count  int
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Append adds a leaf in the next free slot and returns its index.
func (t *Tree) Append(leaf common.Hash) (int, error) {
	if t.count >= Capacity {
		return 0, ErrTreeFull
	}
	i := t.count
	t.leaves[i] = leaf
	t.count++
	return i, nil
}

// Count returns the number of appended leaves.
func (t *Tree) Count() int {
	return t.count
}

// Leaves returns a copy of the appended leaves, in append order.
func (t *Tree) Leaves() []common.Hash {
	out := make([]common.Hash, t.count)
	copy(out, t.leaves[:t.count])
	return out
}

// Root computes the tree root. A tree with zero leaves yields EmptyRoot by
// convention.
func (t *Tree) Root() common.Hash {
	return RootOf(t.leaves[:t.count])
}

// RootOf computes the root over the given leaves zero-padded to Capacity.
// Zero leaves yield EmptyRoot. More than Capacity leaves panic: callers
// enforce the round capacity before building leaves.
func RootOf(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return EmptyRoot
	}
	if len(leaves) > Capacity {
		panic(fmt.Sprintf("merkle: %d leaves exceeds capacity %d", len(leaves), Capacity))
	}

	var level [Capacity]common.Hash
	copy(level[:], leaves)

	width := Capacity
	for width > 1 {
		for i := 0; i < width/2; i++ {
			level[i] = PairHash(level[2*i], level[2*i+1])
		}
		width /= 2
	}
	return level[0]
}

// Proof returns the sibling path for the leaf at index i. The path has one
// sibling per level, leaf level first.
func (t *Tree) Proof(i int) ([]common.Hash, error) {
	if i < 0 || i >= t.count {
		return nil, ErrIndexRange
	}

	var level [Capacity]common.Hash
	copy(level[:], t.leaves[:])

	proof := make([]common.Hash, 0, depth)
	idx := i
	width := Capacity
	for width > 1 {
		proof = append(proof, level[idx^1])
		for j := 0; j < width/2; j++ {
			level[j] = PairHash(level[2*j], level[2*j+1])
		}
		idx /= 2
		width /= 2
	}
	return proof, nil
}

// VerifyInclusion replays the commutative pair rule from leaf to root. Note
// that EmptyRoot never verifies: an empty tree has no members.
func VerifyInclusion(root, leaf common.Hash, proof []common.Hash) bool {
	if len(proof) != depth {
		return false
	}
	h := leaf
	for _, sib := range proof {
		h = PairHash(h, sib)
	}
	return h == root && root != EmptyRoot
}
