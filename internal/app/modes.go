package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/engine"
	"github.com/sealedmarkets/batchpool/internal/proof"
	"github.com/sealedmarkets/batchpool/internal/server"
	"github.com/sealedmarkets/batchpool/internal/server/handler"
	"github.com/sealedmarkets/batchpool/internal/server/ws"
	"github.com/sealedmarkets/batchpool/internal/service"
	"github.com/sealedmarkets/batchpool/internal/solver"
)

// ServeMode runs the HTTP API and WebSocket hub. Settlement is expected to
// come from external solvers through POST /api/settle.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies, auction *service.AuctionService, registry *engine.Registry) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, auction, registry)
	return g.Wait()
}

// EngineMode runs the auction engine headless: no HTTP surface and no local
// solver, just the phase watcher logging lifecycle transitions. Useful for
// soak tests and as a sidecar when another node serves the API.
func (a *App) EngineMode(ctx context.Context, auction *service.AuctionService) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runPhaseWatcher(ctx, auction)
	})
	return g.Wait()
}

// SolveMode runs only the local solver loop: it polls the market, settles when
// the settle window opens, and finalizes once the claim window elapses.
func (a *App) SolveMode(ctx context.Context, deps *Dependencies, auction *service.AuctionService, registry *engine.Registry) error {
	a.logger.InfoContext(ctx, "starting solve mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startSolver(ctx, g, deps, auction, registry); err != nil {
		return fmt.Errorf("solve mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs everything in one process: the HTTP API, the WebSocket hub,
// the local solver when enabled, and the phase watcher.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, auction *service.AuctionService, registry *engine.Registry) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, auction, registry)
	}

	if a.cfg.Solver.Enabled {
		if err := a.startSolver(ctx, g, deps, auction, registry); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	g.Go(func() error {
		return a.runPhaseWatcher(ctx, auction)
	})

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	auction *service.AuctionService,
	registry *engine.Registry,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		MarketID:  a.cfg.Market.ID,
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	admin := common.HexToAddress(a.cfg.Market.AdminAddress)
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Pingers, a.logger),
		Rounds: handler.NewRoundHandler(auction, deps.Reveals, deps.Settlements, a.logger).
			WithEventStream(deps.SignalBus).
			WithArchiveReader(deps.BlobReader),
		Auction: handler.NewAuctionHandler(auction, a.logger),
		Admin:   handler.NewAdminHandler(auction, registry, deps.Audit, admin, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminToken:  a.cfg.Server.AdminToken,
		RateLimit:   a.cfg.Server.APIRateLimit,
		RateWindow:  a.cfg.Server.APIRateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startSolver resolves the local solver identity, registers it with the
// market's solver gate, and adds the solver loop to the errgroup.
func (a *App) startSolver(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	auction *service.AuctionService,
	registry *engine.Registry,
) error {
	addr, err := a.solverAddress()
	if err != nil {
		return fmt.Errorf("resolve solver identity: %w", err)
	}

	if err := registry.Register(addr); err != nil {
		return fmt.Errorf("register solver: %w", err)
	}
	if a.cfg.Solver.Primary {
		if err := registry.SetPrimary(addr, true); err != nil {
			return fmt.Errorf("set primary solver: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "local solver registered",
		slog.String("address", addr.Hex()),
		slog.Bool("primary", a.cfg.Solver.Primary),
	)

	svc := service.NewSolverService(
		auction,
		deps.Reveals,
		solver.New(proof.NewStatic()),
		addr,
		a.cfg.Solver.PollInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return svc.Run(ctx)
	})
	return nil
}

// runPhaseWatcher polls the market once per tick interval and logs phase and
// round transitions. It is the only output in engine mode and doubles as a
// liveness signal in full mode.
func (a *App) runPhaseWatcher(ctx context.Context, auction *service.AuctionService) error {
	interval := a.cfg.Clock.TickInterval.Duration
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastPhase domain.Phase
		lastRound uint64
		seen      bool
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m := auction.Market()
			tick, phase := m.Phase()
			roundID := uint64(0)
			if b, ok := m.CurrentRound(); ok {
				roundID = b.ID
			}

			if seen && phase == lastPhase && roundID == lastRound {
				continue
			}
			seen = true
			lastPhase = phase
			lastRound = roundID

			a.logger.InfoContext(ctx, "phase transition",
				slog.Uint64("tick", tick),
				slog.String("phase", phase.String()),
				slog.Uint64("round", roundID),
			)
		}
	}
}
