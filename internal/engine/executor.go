package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// execOutcome is the fully computed effect of a settlement, staged before
// any state is mutated so a rejection leaves the round untouched.
type execOutcome struct {
	deltas map[common.Address]domain.Claimable

	// solverBaseUnits is the net base-asset requirement pulled from the
	// settling solver's liquidity.
	solverBaseUnits int64

	// residualQuote is what remains of the revealed deposit pot after
	// participant payouts and the protocol fee; it accrues to the solver.
	residualQuote int64
}

// applyFills turns the proof-trusted clearing price and fill vector into
// per-participant claimable balances. Fills are index-aligned with reveal
// order. Deposits and quote payouts settle in the quote asset; base flows
// from the solver to buyers.
func applyFills(rs *roundState, claims *domain.PublicClaims) (execOutcome, error) {
	out := execOutcome{deltas: make(map[common.Address]domain.Claimable)}

	var pot, payoutQuote int64
	for i := 0; i < claims.OrderCount; i++ {
		ord := rs.orders[i]
		c := rs.commitments[ord.Owner]
		deposit := c.DepositUnits
		fill := claims.Fills[i]
		notional := mulDivFloor(fill, claims.ClearingPrice, domain.PriceScale)

		delta := out.deltas[ord.Owner]
		switch ord.Side {
		case domain.SideBuy:
			delta.BaseUnits += fill
			delta.QuoteUnits += max64(0, deposit-notional)
			out.solverBaseUnits += fill
			payoutQuote += max64(0, deposit-notional)
		case domain.SideSell:
			delta.QuoteUnits += notional + max64(0, deposit-fill)
			payoutQuote += notional + max64(0, deposit-fill)
		}
		out.deltas[ord.Owner] = delta

		pot += deposit
	}

	residual := pot - payoutQuote - claims.ProtocolFee
	if residual < 0 {
		return execOutcome{}, fmt.Errorf(
			"engine: fills pay out %d quote units plus %d fee against a %d deposit pot: %w",
			payoutQuote, claims.ProtocolFee, pot, domain.ErrInsufficientLiquidity,
		)
	}
	out.residualQuote = residual
	return out, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
