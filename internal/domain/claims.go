package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Claims vector slot indices. Fill slots occupy [ClaimFill0, NumClaims).
const (
	ClaimRoundID = iota
	ClaimClearingPrice
	ClaimBuyVolume
	ClaimSellVolume
	ClaimOrderCount
	ClaimOrdersRoot
	ClaimAllowlistRoot
	ClaimFeeRate
	ClaimProtocolFee
	ClaimFill0
)

// PublicClaims is the decoded 25-word public input vector a solver submits
// alongside a settlement proof. Buy and sell volumes are quote-notional:
// matched base amounts priced at the clearing price.
type PublicClaims struct {
	RoundID       uint64
	ClearingPrice int64
	BuyVolume     int64
	SellVolume    int64
	OrderCount    int
	OrdersRoot    common.Hash
	AllowlistRoot common.Hash
	FeeRateBps    int64
	ProtocolFee   int64
	Fills         [Capacity]int64
}

// Vector encodes the claims as exactly NumClaims big-endian field words, the
// layout the external verifier consumes.
func (c *PublicClaims) Vector() []*big.Int {
	v := make([]*big.Int, NumClaims)
	v[ClaimRoundID] = new(big.Int).SetUint64(c.RoundID)
	v[ClaimClearingPrice] = big.NewInt(c.ClearingPrice)
	v[ClaimBuyVolume] = big.NewInt(c.BuyVolume)
	v[ClaimSellVolume] = big.NewInt(c.SellVolume)
	v[ClaimOrderCount] = big.NewInt(int64(c.OrderCount))
	v[ClaimOrdersRoot] = new(big.Int).SetBytes(c.OrdersRoot[:])
	v[ClaimAllowlistRoot] = new(big.Int).SetBytes(c.AllowlistRoot[:])
	v[ClaimFeeRate] = big.NewInt(c.FeeRateBps)
	v[ClaimProtocolFee] = big.NewInt(c.ProtocolFee)
	for i, fill := range c.Fills {
		v[ClaimFill0+i] = big.NewInt(fill)
	}
	return v
}

// ClaimsFromVector decodes a raw claims vector. It rejects vectors of the
// wrong length and words that overflow their slot's native type.
func ClaimsFromVector(v []*big.Int) (*PublicClaims, error) {
	if len(v) != NumClaims {
		return nil, &ClaimsLengthError{Expected: NumClaims, Actual: len(v)}
	}
	for i, w := range v {
		if w == nil || w.Sign() < 0 || w.BitLen() > 256 {
			return nil, fmt.Errorf("claims word %d out of range", i)
		}
	}

	c := &PublicClaims{}
	if !v[ClaimRoundID].IsUint64() {
		return nil, fmt.Errorf("claims word %d: round id overflows uint64", ClaimRoundID)
	}
	c.RoundID = v[ClaimRoundID].Uint64()

	for _, slot := range []struct {
		idx  int
		dst  *int64
		name string
	}{
		{ClaimClearingPrice, &c.ClearingPrice, "clearing price"},
		{ClaimBuyVolume, &c.BuyVolume, "buy volume"},
		{ClaimSellVolume, &c.SellVolume, "sell volume"},
		{ClaimFeeRate, &c.FeeRateBps, "fee rate"},
		{ClaimProtocolFee, &c.ProtocolFee, "protocol fee"},
	} {
		if !v[slot.idx].IsInt64() {
			return nil, fmt.Errorf("claims word %d: %s overflows int64", slot.idx, slot.name)
		}
		*slot.dst = v[slot.idx].Int64()
	}

	if !v[ClaimOrderCount].IsInt64() || v[ClaimOrderCount].Int64() > Capacity {
		return nil, fmt.Errorf("claims word %d: order count out of range", ClaimOrderCount)
	}
	c.OrderCount = int(v[ClaimOrderCount].Int64())

	c.OrdersRoot = common.BigToHash(v[ClaimOrdersRoot])
	c.AllowlistRoot = common.BigToHash(v[ClaimAllowlistRoot])

	for i := 0; i < Capacity; i++ {
		w := v[ClaimFill0+i]
		if !w.IsInt64() {
			return nil, fmt.Errorf("claims word %d: fill overflows int64", ClaimFill0+i)
		}
		c.Fills[i] = w.Int64()
	}
	return c, nil
}
