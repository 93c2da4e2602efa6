package proof

import (
	"bytes"
	"context"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var staticProofTag = []byte("batchpool/static-proof/v1")

// digest commits to the full claims vector, each word encoded as a 32-byte
// big-endian field element.
func digest(claims []*big.Int) []byte {
	buf := make([]byte, 0, len(staticProofTag)+32*len(claims))
	buf = append(buf, staticProofTag...)
	var w [32]byte
	for _, c := range claims {
		c.FillBytes(w[:])
		buf = append(buf, w[:]...)
	}
	return ethcrypto.Keccak256(buf)
}

// Static is the dev-mode proof system: a "proof" is simply the keccak digest
// of the claims vector. It gives the engine a verifier with the right shape
// and the right failure modes, with no cryptographic soundness whatsoever.
type Static struct{}

// NewStatic returns the dev proof system.
func NewStatic() *Static {
	return &Static{}
}

// Prove returns the digest of the claims vector.
func (s *Static) Prove(_ context.Context, claims []*big.Int) ([]byte, error) {
	return digest(claims), nil
}

// Verify accepts exactly the digest Prove produces for the same claims.
func (s *Static) Verify(_ context.Context, proofBytes []byte, claims []*big.Int) (bool, error) {
	return bytes.Equal(proofBytes, digest(claims)), nil
}

var (
	_ Verifier = (*Static)(nil)
	_ Prover   = (*Static)(nil)
)
