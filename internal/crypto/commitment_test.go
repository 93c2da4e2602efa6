package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

var (
	testOwner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testSalt  = common.HexToHash("0x01")
)

func TestCommitmentHashBindsEveryField(t *testing.T) {
	base := CommitmentHash(testOwner, 100, 200, domain.SideBuy, testSalt)

	if got := CommitmentHash(testOwner, 100, 200, domain.SideBuy, testSalt); got != base {
		t.Fatal("hash is not deterministic")
	}

	variants := map[string]common.Hash{
		"owner":  CommitmentHash(common.HexToAddress("0xa2"), 100, 200, domain.SideBuy, testSalt),
		"amount": CommitmentHash(testOwner, 101, 200, domain.SideBuy, testSalt),
		"price":  CommitmentHash(testOwner, 100, 201, domain.SideBuy, testSalt),
		"side":   CommitmentHash(testOwner, 100, 200, domain.SideSell, testSalt),
		"salt":   CommitmentHash(testOwner, 100, 200, domain.SideBuy, common.HexToHash("0x02")),
	}
	for field, h := range variants {
		if h == base {
			t.Errorf("mutating %s did not change the hash", field)
		}
	}
}

func TestOrderLeafExcludesSalt(t *testing.T) {
	a := OrderLeafHash(testOwner, 100, 200, domain.SideSell)
	b := OrderLeafHash(testOwner, 100, 200, domain.SideSell)
	if a != b {
		t.Fatal("leaf hash is not deterministic")
	}
	if a == CommitmentHash(testOwner, 100, 200, domain.SideSell, testSalt) {
		t.Fatal("leaf hash collides with the salted commitment hash")
	}
	if a == OrderLeafHash(testOwner, 100, 200, domain.SideBuy) {
		t.Fatal("leaf hash ignores side")
	}
}
