// Package crypto provides the domain-tagged Keccak-256 hashing that binds
// hidden orders to their later disclosure, plus encrypted key storage for
// solver identities.
package crypto

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// --------------------------------------------------------------------------
// Domain tags (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// Commitment(address owner,uint64 amount,uint64 limitPrice,uint8 side,bytes32 salt)
	commitmentTypeHash = ethcrypto.Keccak256(
		[]byte("Commitment(address owner,uint64 amount,uint64 limitPrice,uint8 side,bytes32 salt)"),
	)

	// OrderLeaf(address owner,uint64 amount,uint64 limitPrice,uint8 side)
	orderLeafTypeHash = ethcrypto.Keccak256(
		[]byte("OrderLeaf(address owner,uint64 amount,uint64 limitPrice,uint8 side)"),
	)
)

// word encodes a value as a 32-byte big-endian field word.
func word(v int64) [32]byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], uint64(v))
	return w
}

// addrWord left-pads a 20-byte address into a 32-byte word.
func addrWord(a common.Address) [32]byte {
	var w [32]byte
	copy(w[12:], a[:])
	return w
}

// CommitmentHash computes the binding hash a participant submits during the
// commit phase: keccak256 over the commitment domain tag and the order
// fields plus a random salt. Any later reveal must reproduce this hash
// exactly.
func CommitmentHash(owner common.Address, amountUnits, limitPriceTicks int64, side domain.Side, salt common.Hash) common.Hash {
	ow := addrWord(owner)
	am := word(amountUnits)
	pr := word(limitPriceTicks)
	sd := word(int64(side.Flag()))
	return common.BytesToHash(ethcrypto.Keccak256(
		commitmentTypeHash, ow[:], am[:], pr[:], sd[:], salt[:],
	))
}

// OrderLeafHash computes the commitment tree leaf for a revealed order. The
// salt is deliberately excluded: the leaf commits to the disclosed order,
// not to the pre-image used for hiding.
func OrderLeafHash(owner common.Address, amountUnits, limitPriceTicks int64, side domain.Side) common.Hash {
	ow := addrWord(owner)
	am := word(amountUnits)
	pr := word(limitPriceTicks)
	sd := word(int64(side.Flag()))
	return common.BytesToHash(ethcrypto.Keccak256(
		orderLeafTypeHash, ow[:], am[:], pr[:], sd[:],
	))
}
