// Package solver implements the reference off-chain solver: it searches the
// uniform clearing price that maximizes matched volume over a round's
// revealed orders, assigns fills in reveal order, and assembles the public
// claims vector plus proof that the settlement validator expects.
package solver

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/crypto"
	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/merkle"
	"github.com/sealedmarkets/batchpool/internal/proof"
)

// Clearing is the outcome of the price search. Volumes are quote-notional:
// matched base amounts priced at the clearing price, which is the
// denomination the fee applies to.
type Clearing struct {
	Price      int64
	BuyVolume  int64
	SellVolume int64
	Fills      []int64 // index-aligned with reveal order
}

// ComputeClearing finds the uniform price maximizing matched volume. Every
// distinct limit price is a candidate; ties resolve to the lowest such
// price. Fills are assigned greedily in reveal order among eligible orders,
// so earlier reveals fill first when one side is short.
func ComputeClearing(orders []domain.RevealRecord) Clearing {
	fills := make([]int64, len(orders))
	if len(orders) == 0 {
		return Clearing{Fills: fills}
	}

	prices := make([]int64, 0, len(orders))
	seen := make(map[int64]bool)
	for _, o := range orders {
		if !seen[o.LimitPriceTicks] {
			seen[o.LimitPriceTicks] = true
			prices = append(prices, o.LimitPriceTicks)
		}
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	var bestPrice, bestMatched int64
	for _, p := range prices {
		var buyVol, sellVol int64
		for _, o := range orders {
			switch {
			case o.Side == domain.SideBuy && o.LimitPriceTicks >= p:
				buyVol += o.AmountUnits
			case o.Side == domain.SideSell && o.LimitPriceTicks <= p:
				sellVol += o.AmountUnits
			}
		}
		if matched := minInt64(buyVol, sellVol); matched > bestMatched {
			bestMatched = matched
			bestPrice = p
		}
	}
	if bestMatched == 0 {
		return Clearing{Fills: fills}
	}

	c := Clearing{Price: bestPrice, Fills: fills}
	remBuy, remSell := bestMatched, bestMatched
	for i, o := range orders {
		switch {
		case o.Side == domain.SideBuy && o.LimitPriceTicks >= bestPrice && remBuy > 0:
			f := minInt64(o.AmountUnits, remBuy)
			fills[i] = f
			remBuy -= f
			c.BuyVolume += notional(f, bestPrice)
		case o.Side == domain.SideSell && o.LimitPriceTicks <= bestPrice && remSell > 0:
			f := minInt64(o.AmountUnits, remSell)
			fills[i] = f
			remSell -= f
			c.SellVolume += notional(f, bestPrice)
		}
	}
	return c
}

// BuildClaims assembles the full public claims vector for a round from its
// reveal log, recomputing the commitment root the same way the validator
// will.
func BuildClaims(batch domain.Batch, cfg domain.PoolConfig, orders []domain.RevealRecord) (*domain.PublicClaims, error) {
	if len(orders) > domain.Capacity {
		return nil, fmt.Errorf("solver: %d orders exceeds capacity %d", len(orders), domain.Capacity)
	}

	leaves := make([]common.Hash, len(orders))
	for i, o := range orders {
		if o.RevealIndex != i {
			return nil, fmt.Errorf("solver: reveal log out of order at index %d", i)
		}
		leaves[i] = crypto.OrderLeafHash(o.Owner, o.AmountUnits, o.LimitPriceTicks, o.Side)
	}

	clearing := ComputeClearing(orders)

	claims := &domain.PublicClaims{
		RoundID:       batch.ID,
		ClearingPrice: clearing.Price,
		BuyVolume:     clearing.BuyVolume,
		SellVolume:    clearing.SellVolume,
		OrderCount:    len(orders),
		OrdersRoot:    merkle.RootOf(leaves),
		AllowlistRoot: batch.AllowlistRoot,
		FeeRateBps:    cfg.FeeRateBps,
	}
	matched := minInt64(clearing.BuyVolume, clearing.SellVolume)
	claims.ProtocolFee = new(big.Int).Div(
		new(big.Int).Mul(big.NewInt(matched), big.NewInt(cfg.FeeRateBps)),
		big.NewInt(domain.FeeDenom),
	).Int64()
	copy(claims.Fills[:], clearing.Fills)
	return claims, nil
}

// Solver pairs the claims builder with a proving backend.
type Solver struct {
	prover proof.Prover
}

// New returns a solver using the given proving backend.
func New(p proof.Prover) *Solver {
	return &Solver{prover: p}
}

// Solve produces the proof and claims vector for a round, ready to submit
// to the settlement validator.
func (s *Solver) Solve(ctx context.Context, batch domain.Batch, cfg domain.PoolConfig, orders []domain.RevealRecord) ([]byte, []*big.Int, error) {
	claims, err := BuildClaims(batch, cfg, orders)
	if err != nil {
		return nil, nil, err
	}
	vec := claims.Vector()
	proofBytes, err := s.prover.Prove(ctx, vec)
	if err != nil {
		return nil, nil, fmt.Errorf("solver: prove: %w", err)
	}
	return proofBytes, vec, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// notional converts a base fill to quote terms at the given price, floored.
func notional(fill, price int64) int64 {
	return new(big.Int).Div(
		new(big.Int).Mul(big.NewInt(fill), big.NewInt(price)),
		big.NewInt(domain.PriceScale),
	).Int64()
}
