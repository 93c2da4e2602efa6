// Package service contains the orchestration layer: services coordinate the
// in-memory auction engine with the persistent stores, the Redis cache and
// signal bus, the audit log, and operator notifications.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/engine"
)

// RoundNotifier delivers round lifecycle events to operator channels.
type RoundNotifier interface {
	NotifyRoundEvent(ctx context.Context, ev domain.RoundEvent) error
}

// roundLockTTL bounds how long a round transition may hold the distributed
// lock before it expires on its own.
const roundLockTTL = 30 * time.Second

// AuctionService wraps one market's engine with persistence, caching, event
// fan-out, and auditing. The engine alone decides whether an operation is
// valid; the service's side effects run only after the engine accepts it.
type AuctionService struct {
	market      *engine.Market
	reveals     domain.RevealStore
	settlements domain.SettlementStore
	audit       domain.AuditStore
	cache       domain.RoundCache
	limiter     domain.RateLimiter
	locks       domain.LockManager
	bus         domain.SignalBus
	archiver    domain.Archiver
	notifier    RoundNotifier
	logger      *slog.Logger

	commitLimit  int
	commitWindow time.Duration
}

// NewAuctionService creates an AuctionService with all required dependencies.
func NewAuctionService(
	market *engine.Market,
	reveals domain.RevealStore,
	settlements domain.SettlementStore,
	audit domain.AuditStore,
	cache domain.RoundCache,
	limiter domain.RateLimiter,
	locks domain.LockManager,
	bus domain.SignalBus,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		market:       market,
		reveals:      reveals,
		settlements:  settlements,
		audit:        audit,
		cache:        cache,
		limiter:      limiter,
		locks:        locks,
		bus:          bus,
		logger:       logger.With(slog.String("market", market.ID())),
		commitLimit:  10,
		commitWindow: time.Second,
	}
}

// WithArchiver attaches a cold-storage archiver so Finalize ships the round's
// reveal log and settlement summary to object storage before the engine
// releases its working data. Without one, Finalize skips archival.
func (s *AuctionService) WithArchiver(a domain.Archiver) *AuctionService {
	s.archiver = a
	return s
}

// WithNotifier attaches operator notifications for settlement and emergency
// events.
func (s *AuctionService) WithNotifier(n RoundNotifier) *AuctionService {
	s.notifier = n
	return s
}

// WithCommitRateLimit overrides the per-address commit rate limit.
func (s *AuctionService) WithCommitRateLimit(limit int, window time.Duration) *AuctionService {
	if limit > 0 && window > 0 {
		s.commitLimit = limit
		s.commitWindow = window
	}
	return s
}

// Market returns the underlying engine market for read paths.
func (s *AuctionService) Market() *engine.Market {
	return s.market
}

// eventChannel is the Pub/Sub channel carrying this market's round events.
func (s *AuctionService) eventChannel() string {
	return "rounds:" + s.market.ID()
}

// EventStream is the durable stream mirroring the Pub/Sub channel. Read
// paths use it to serve event history to late subscribers.
func (s *AuctionService) EventStream() string {
	return "stream:rounds:" + s.market.ID()
}

// publishEvent fans a round event out to the Pub/Sub channel and the durable
// stream. Delivery failures are logged, never propagated: the engine state
// change already happened and must not appear to roll back.
func (s *AuctionService) publishEvent(ctx context.Context, typ domain.RoundEventType, roundID uint64, detail map[string]any) {
	tick, _ := s.market.Phase()
	ev := domain.RoundEvent{
		ID:       uuid.New().String(),
		Type:     typ,
		MarketID: s.market.ID(),
		RoundID:  roundID,
		Tick:     tick,
		Detail:   detail,
		At:       time.Now().UTC(),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "auction_service: marshal event failed",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.bus.Publish(ctx, s.eventChannel(), payload); err != nil {
		s.logger.WarnContext(ctx, "auction_service: publish event failed",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, s.EventStream(), payload); err != nil {
		s.logger.WarnContext(ctx, "auction_service: stream append failed",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyRoundEvent(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "auction_service: notify failed",
				slog.String("type", string(typ)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// refreshCache pushes the current round snapshot into the round cache so
// status reads do not contend on the engine mutex.
func (s *AuctionService) refreshCache(ctx context.Context, roundID uint64) {
	b, err := s.market.Round(roundID)
	if err != nil {
		return
	}
	if err := s.cache.SetRound(ctx, s.market.ID(), b); err != nil {
		s.logger.WarnContext(ctx, "auction_service: cache round failed",
			slog.Uint64("round", roundID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.cache.SetCurrent(ctx, s.market.ID(), roundID); err != nil {
		s.logger.WarnContext(ctx, "auction_service: cache current failed",
			slog.Uint64("round", roundID),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog writes an audit entry, logging rather than failing on error.
func (s *AuctionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "auction_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// StartRound opens the next round. The distributed lock serializes round
// transitions across replicas; the engine still rejects a second concurrent
// round regardless.
func (s *AuctionService) StartRound(ctx context.Context, starter common.Address) (domain.Batch, error) {
	unlock, err := s.locks.Acquire(ctx, "round:"+s.market.ID(), roundLockTTL)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("auction_service: start round lock: %w", err)
	}
	defer unlock()

	b, err := s.market.StartRound(starter)
	if err != nil {
		return domain.Batch{}, err
	}

	s.refreshCache(ctx, b.ID)
	s.publishEvent(ctx, domain.EventRoundStarted, b.ID, map[string]any{
		"starter":    starter.Hex(),
		"commit_end": b.CommitEnd,
		"claim_end":  b.ClaimEnd,
	})
	s.auditLog(ctx, "round_started", map[string]any{
		"round_id": b.ID,
		"starter":  starter.Hex(),
	})

	s.logger.InfoContext(ctx, "auction_service: round started",
		slog.Uint64("round", b.ID),
		slog.String("starter", starter.Hex()),
	)
	return b, nil
}

// Commit escrows a deposit against a hidden order. Submissions are rate
// limited per owner address before touching the engine.
func (s *AuctionService) Commit(ctx context.Context, owner common.Address, hash common.Hash, depositUnits, paidUnits int64, allowProof []common.Hash) error {
	allowed, err := s.limiter.Allow(ctx, "commit:"+owner.Hex(), s.commitLimit, s.commitWindow)
	if err != nil {
		return fmt.Errorf("auction_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.ErrRateLimited
	}

	if err := s.market.Commit(owner, hash, depositUnits, paidUnits, allowProof); err != nil {
		return err
	}

	b, _ := s.market.CurrentRound()
	s.refreshCache(ctx, b.ID)
	s.publishEvent(ctx, domain.EventCommitted, b.ID, map[string]any{
		"owner": owner.Hex(),
	})
	s.auditLog(ctx, "order_committed", map[string]any{
		"round_id": b.ID,
		"owner":    owner.Hex(),
		"deposit":  depositUnits,
	})
	return nil
}

// Reveal discloses a committed order. The engine verifies the binding hash
// and assigns the reveal index; the record is then appended to the reveal
// log, which the solver and the archiver read back.
func (s *AuctionService) Reveal(ctx context.Context, owner common.Address, amountUnits, limitPriceTicks int64, side domain.Side, salt common.Hash) (domain.RevealRecord, error) {
	rec, err := s.market.Reveal(owner, amountUnits, limitPriceTicks, side, salt)
	if err != nil {
		return domain.RevealRecord{}, err
	}

	if err := s.reveals.Insert(ctx, rec); err != nil {
		// The engine already accepted the reveal; surface the persistence
		// failure loudly since the solver depends on the log being complete.
		s.logger.ErrorContext(ctx, "auction_service: persist reveal failed",
			slog.Uint64("round", rec.RoundID),
			slog.Int("index", rec.RevealIndex),
			slog.String("error", err.Error()),
		)
		return rec, fmt.Errorf("auction_service: persist reveal: %w", err)
	}

	s.refreshCache(ctx, rec.RoundID)
	s.publishEvent(ctx, domain.EventRevealed, rec.RoundID, map[string]any{
		"owner": owner.Hex(),
		"index": rec.RevealIndex,
	})
	s.auditLog(ctx, "order_revealed", map[string]any{
		"round_id": rec.RoundID,
		"owner":    owner.Hex(),
		"index":    rec.RevealIndex,
	})
	return rec, nil
}

// Settle submits a settlement for the active round and persists the summary.
func (s *AuctionService) Settle(ctx context.Context, solver common.Address, proofBytes []byte, claimsVec []*big.Int) (domain.SettlementSummary, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+s.market.ID(), roundLockTTL)
	if err != nil {
		return domain.SettlementSummary{}, fmt.Errorf("auction_service: settle lock: %w", err)
	}
	defer unlock()

	sum, err := s.market.Settle(ctx, solver, proofBytes, claimsVec)
	if err != nil {
		return domain.SettlementSummary{}, err
	}

	if err := s.settlements.Insert(ctx, sum); err != nil {
		s.logger.ErrorContext(ctx, "auction_service: persist settlement failed",
			slog.Uint64("round", sum.RoundID),
			slog.String("error", err.Error()),
		)
	}

	s.refreshCache(ctx, sum.RoundID)
	s.publishEvent(ctx, domain.EventSettled, sum.RoundID, map[string]any{
		"solver":         solver.Hex(),
		"clearing_price": sum.ClearingPrice,
		"buy_volume":     sum.BuyVolume,
		"sell_volume":    sum.SellVolume,
		"protocol_fee":   sum.ProtocolFee,
	})
	s.auditLog(ctx, "round_settled", map[string]any{
		"round_id":       sum.RoundID,
		"solver":         solver.Hex(),
		"clearing_price": sum.ClearingPrice,
		"protocol_fee":   sum.ProtocolFee,
	})

	s.logger.InfoContext(ctx, "auction_service: round settled",
		slog.Uint64("round", sum.RoundID),
		slog.String("solver", solver.Hex()),
		slog.Int64("clearing_price", sum.ClearingPrice),
	)
	return sum, nil
}

// Claim pays out a participant's settled balances.
func (s *AuctionService) Claim(ctx context.Context, owner common.Address, roundID uint64) (domain.Claimable, error) {
	c, err := s.market.Claim(owner, roundID)
	if err != nil {
		return domain.Claimable{}, err
	}

	s.publishEvent(ctx, domain.EventClaimed, roundID, map[string]any{
		"owner": owner.Hex(),
		"base":  c.BaseUnits,
		"quote": c.QuoteUnits,
	})
	s.auditLog(ctx, "claimed", map[string]any{
		"round_id": roundID,
		"owner":    owner.Hex(),
		"base":     c.BaseUnits,
		"quote":    c.QuoteUnits,
	})
	return c, nil
}

// Refund returns an unrevealed commitment's deposit after the round settles.
func (s *AuctionService) Refund(ctx context.Context, owner common.Address, roundID uint64) (int64, error) {
	units, err := s.market.Refund(owner, roundID)
	if err != nil {
		return 0, err
	}

	s.publishEvent(ctx, domain.EventRefunded, roundID, map[string]any{
		"owner": owner.Hex(),
		"units": units,
	})
	s.auditLog(ctx, "refunded", map[string]any{
		"round_id": roundID,
		"owner":    owner.Hex(),
		"units":    units,
	})
	return units, nil
}

// ActivateEmergency flips a stuck round into emergency mode.
func (s *AuctionService) ActivateEmergency(ctx context.Context, roundID uint64) error {
	if err := s.market.ActivateEmergency(roundID); err != nil {
		return err
	}

	s.refreshCache(ctx, roundID)
	s.publishEvent(ctx, domain.EventEmergency, roundID, nil)
	s.auditLog(ctx, "emergency_activated", map[string]any{
		"round_id": roundID,
	})

	s.logger.WarnContext(ctx, "auction_service: emergency activated",
		slog.Uint64("round", roundID),
	)
	return nil
}

// EmergencyRefund pays out one participant under emergency mode.
func (s *AuctionService) EmergencyRefund(ctx context.Context, owner common.Address, roundID uint64) (int64, error) {
	units, err := s.market.EmergencyRefund(owner, roundID)
	if err != nil {
		return 0, err
	}

	s.auditLog(ctx, "emergency_refunded", map[string]any{
		"round_id": roundID,
		"owner":    owner.Hex(),
		"units":    units,
	})
	return units, nil
}

// Finalize closes a settled round after the claim window, archives it, and
// releases the engine's transient working data.
func (s *AuctionService) Finalize(ctx context.Context, roundID uint64) error {
	unlock, err := s.locks.Acquire(ctx, "round:"+s.market.ID(), roundLockTTL)
	if err != nil {
		return fmt.Errorf("auction_service: finalize lock: %w", err)
	}
	defer unlock()

	// Archive before finalizing: finalization is irreversible and the
	// archive must be complete first.
	if s.archiver != nil {
		if err := s.archiver.ArchiveRound(ctx, s.market.ID(), roundID); err != nil {
			return fmt.Errorf("auction_service: archive round %d: %w", roundID, err)
		}
	}

	if err := s.market.Finalize(roundID); err != nil {
		return err
	}

	s.refreshCache(ctx, roundID)
	s.publishEvent(ctx, domain.EventFinalized, roundID, nil)
	s.auditLog(ctx, "round_finalized", map[string]any{
		"round_id": roundID,
	})

	s.logger.InfoContext(ctx, "auction_service: round finalized",
		slog.Uint64("round", roundID),
	)
	return nil
}

// Status summarizes the market's current state for read endpoints. It serves
// from the round cache when possible and falls back to the engine.
type Status struct {
	MarketID string       `json:"market_id"`
	Tick     uint64       `json:"tick"`
	Phase    string       `json:"phase"`
	Round    domain.Batch `json:"round"`
	Active   bool         `json:"active"`
}

// Status returns the current market status.
func (s *AuctionService) Status(ctx context.Context) Status {
	tick, phase := s.market.Phase()
	st := Status{
		MarketID: s.market.ID(),
		Tick:     tick,
		Phase:    phase.String(),
	}

	if roundID, err := s.cache.GetCurrent(ctx, s.market.ID()); err == nil {
		if b, cerr := s.cache.GetRound(ctx, s.market.ID(), roundID); cerr == nil {
			st.Round = b
			st.Active = !b.Finalized
			return st
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "auction_service: cache read failed",
			slog.String("error", err.Error()),
		)
	}

	if b, ok := s.market.CurrentRound(); ok {
		st.Round = b
		st.Active = true
	}
	return st
}

// Pause blocks a lifecycle gate. Admin only, enforced by the engine.
func (s *AuctionService) Pause(ctx context.Context, caller common.Address, g domain.PauseGate) error {
	if err := s.market.Pause(caller, g); err != nil {
		return err
	}
	b, _ := s.market.CurrentRound()
	s.publishEvent(ctx, domain.EventPaused, b.ID, map[string]any{
		"gate": g.String(),
	})
	s.auditLog(ctx, "gate_paused", map[string]any{
		"gate":   g.String(),
		"caller": caller.Hex(),
	})
	return nil
}

// Unpause clears a lifecycle gate.
func (s *AuctionService) Unpause(ctx context.Context, caller common.Address, g domain.PauseGate) error {
	if err := s.market.Unpause(caller, g); err != nil {
		return err
	}
	b, _ := s.market.CurrentRound()
	s.publishEvent(ctx, domain.EventUnpaused, b.ID, map[string]any{
		"gate": g.String(),
	})
	s.auditLog(ctx, "gate_unpaused", map[string]any{
		"gate":   g.String(),
		"caller": caller.Hex(),
	})
	return nil
}

// ForceUnpause clears every gate once the maximum pause window has elapsed.
// Anyone may call it.
func (s *AuctionService) ForceUnpause(ctx context.Context) error {
	if err := s.market.ForceUnpause(); err != nil {
		return err
	}
	b, _ := s.market.CurrentRound()
	s.publishEvent(ctx, domain.EventForceUnpause, b.ID, nil)
	s.auditLog(ctx, "force_unpause", nil)
	return nil
}
