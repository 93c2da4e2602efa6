// Package proof defines the succinct-proof boundary. The engine treats proof
// bytes as opaque and trusts a Verifier's boolean answer; soundness of the
// proof system itself lives outside this repository.
package proof

import (
	"context"
	"math/big"
)

// Verifier checks a settlement proof against its public claims vector.
// Implementations must be pure: same inputs, same answer.
type Verifier interface {
	Verify(ctx context.Context, proof []byte, claims []*big.Int) (bool, error)
}

// Prover produces a proof for a claims vector. Implemented by the reference
// solver's backend; real deployments plug in the external proving service.
type Prover interface {
	Prove(ctx context.Context, claims []*big.Int) ([]byte, error)
}
