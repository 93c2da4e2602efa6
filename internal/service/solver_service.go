package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/solver"
)

// SolverService runs the in-process solver loop: it watches the market's
// phase, and when the settle window opens it reads the reveal log, computes
// the clearing, proves the claims, and submits the settlement.
type SolverService struct {
	auction *AuctionService
	reveals domain.RevealStore
	solver  *solver.Solver
	address common.Address
	pollDur time.Duration
	logger  *slog.Logger
}

// NewSolverService creates a SolverService that settles as the given address.
func NewSolverService(
	auction *AuctionService,
	reveals domain.RevealStore,
	sol *solver.Solver,
	address common.Address,
	pollInterval time.Duration,
	logger *slog.Logger,
) *SolverService {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &SolverService{
		auction: auction,
		reveals: reveals,
		solver:  sol,
		address: address,
		pollDur: pollInterval,
		logger:  logger.With(slog.String("component", "solver_service")),
	}
}

// Run polls the market until the context is cancelled. Call in a goroutine.
func (s *SolverService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.step(ctx); err != nil {
				s.logger.ErrorContext(ctx, "solver step failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// step performs one poll: settle if the settle window is open, finalize once
// the claim window has passed.
func (s *SolverService) step(ctx context.Context) error {
	m := s.auction.Market()

	b, ok := m.CurrentRound()
	if !ok {
		return nil
	}

	_, phase := m.Phase()

	switch {
	case phase == domain.PhaseSettle && !b.Settled && !b.Emergency:
		return s.settle(ctx, b)
	case phase == domain.PhaseFinalized && b.Settled && !b.Finalized:
		return s.finalize(ctx, b)
	}
	return nil
}

func (s *SolverService) settle(ctx context.Context, b domain.Batch) error {
	m := s.auction.Market()

	orders, err := s.reveals.ListByRound(ctx, m.ID(), b.ID)
	if err != nil {
		return err
	}

	proofBytes, claimsVec, err := s.solver.Solve(ctx, b, m.Config(), orders)
	if err != nil {
		return err
	}

	_, err = s.auction.Settle(ctx, s.address, proofBytes, claimsVec)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrLockHeld):
		// Another solver got there first.
		return nil
	case errors.Is(err, domain.ErrUnauthorizedSolver):
		// Not our window yet; the tier opens up as the settle phase ages.
		s.logger.DebugContext(ctx, "solver not yet authorized",
			slog.Uint64("round", b.ID),
		)
		return nil
	default:
		return err
	}
}

func (s *SolverService) finalize(ctx context.Context, b domain.Batch) error {
	err := s.auction.Finalize(ctx, b.ID)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "round finalized by solver loop",
			slog.Uint64("round", b.ID),
		)
		return nil
	case errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrLockHeld):
		return nil
	default:
		return err
	}
}
