package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Side indicates whether an order buys or sells the base asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Flag returns the numeric side flag used in hashing: 0 for buy, 1 for sell.
func (s Side) Flag() uint8 {
	if s == SideSell {
		return 1
	}
	return 0
}

// CommitmentStatus tracks a hidden order through its terminal states.
type CommitmentStatus string

const (
	CommitmentPending           CommitmentStatus = "pending"
	CommitmentRevealed          CommitmentStatus = "revealed"
	CommitmentRefunded          CommitmentStatus = "refunded"
	CommitmentEmergencyRefunded CommitmentStatus = "emergency_refunded"
)

// Terminal reports whether the status can no longer change.
func (s CommitmentStatus) Terminal() bool {
	return s == CommitmentRefunded || s == CommitmentEmergencyRefunded
}

// Commitment is a hidden order: only the binding hash and the escrowed
// deposit are known until reveal.
type Commitment struct {
	Owner        common.Address
	Hash         common.Hash
	DepositUnits int64
	Status       CommitmentStatus

	// RevealIndex is the order's position in the reveal sequence (and so in
	// the commitment tree). -1 until revealed.
	RevealIndex int

	CommittedTick uint64
}

// RevealedOrder is the minimal authoritative record kept in engine state
// after a reveal: owner and side only. The full order fields are published
// through the append-only reveal log instead, a deliberate privacy/cost
// trade-off.
type RevealedOrder struct {
	Owner common.Address
	Side  Side
}

// RevealRecord is the full disclosed order as published to the auxiliary
// reveal log.
type RevealRecord struct {
	MarketID        string
	RoundID         uint64
	RevealIndex     int
	Owner           common.Address
	AmountUnits     int64
	LimitPriceTicks int64
	Side            Side
	Salt            common.Hash
	LeafHash        common.Hash
	RevealedAt      time.Time
}

// Claimable holds the two-asset balances owed to a participant after
// settlement. Balances are accumulated exactly once during settlement and
// never decremented; the claimed flag is set exactly once.
type Claimable struct {
	BaseUnits  int64
	QuoteUnits int64
	Claimed    bool
}

// SettlementSummary is the persisted per-round settlement outcome.
type SettlementSummary struct {
	MarketID      string
	RoundID       uint64
	ClearingPrice int64
	BuyVolume     int64
	SellVolume    int64
	ProtocolFee   int64
	OrdersRoot    common.Hash
	Solver        common.Address
	SettledTick   uint64
	Emergency     bool
	CreatedAt     time.Time
}
