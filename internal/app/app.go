// Package app provides the top-level application lifecycle management for the
// batchpool node. It wires together all dependencies (stores, caches, blob
// storage, the auction engine, services, and notifications) and starts the
// appropriate goroutines based on the configured operating mode.
package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/sealedmarkets/batchpool/internal/config"
	"github.com/sealedmarkets/batchpool/internal/crypto"
	"github.com/sealedmarkets/batchpool/internal/domain"
	"github.com/sealedmarkets/batchpool/internal/engine"
	"github.com/sealedmarkets/batchpool/internal/ledger"
	"github.com/sealedmarkets/batchpool/internal/merkle"
	"github.com/sealedmarkets/batchpool/internal/proof"
	"github.com/sealedmarkets/batchpool/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, constructs the
// market and its services, starts the goroutines for the configured mode, and
// blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("market", a.cfg.Market.ID),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	market, registry, err := a.buildMarket()
	if err != nil {
		return fmt.Errorf("app: build market: %w", err)
	}

	auction := a.buildAuctionService(market, deps)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "serve":
		return a.ServeMode(ctx, deps, auction, registry)
	case "engine":
		return a.EngineMode(ctx, auction)
	case "solve":
		return a.SolveMode(ctx, deps, auction, registry)
	case "full":
		return a.FullMode(ctx, deps, auction, registry)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildMarket constructs the in-memory auction engine from the market and
// clock sections of the config: the wall clock tick source, the balance vault,
// the proof verifier, the solver registry with fee rewards, and, in gated
// mode, the allowlist membership verifier.
func (a *App) buildMarket() (*engine.Market, *engine.Registry, error) {
	epoch, err := a.cfg.Clock.EpochTime()
	if err != nil {
		return nil, nil, fmt.Errorf("parse clock epoch: %w", err)
	}
	clock := engine.WallClock{
		Epoch:    epoch,
		Interval: a.cfg.Clock.TickInterval.Duration,
	}

	registry := engine.NewRegistry()
	rewards := engine.NewFeeRewards(
		a.cfg.Solver.RewardShareBps,
		a.cfg.Solver.SpeedBonusBps,
		a.cfg.Solver.BonusWindowTicks,
	)

	opts := []engine.Option{
		engine.WithSolverGate(registry),
		engine.WithRewards(rewards),
	}
	if a.cfg.Market.MaxPauseTicks > 0 {
		opts = append(opts, engine.WithMaxPauseTicks(a.cfg.Market.MaxPauseTicks))
	}

	var allowlistRoot common.Hash
	if domain.PoolMode(a.cfg.Market.Mode) == domain.PoolModeGated {
		members, err := loadAllowlistMembers(a.cfg.Market.AllowlistPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load allowlist: %w", err)
		}
		al := merkle.BuildAllowlist(members)
		allowlistRoot = al.Root()
		opts = append(opts, engine.WithMembership(merkle.Checker{}))
		a.logger.Info("allowlist loaded",
			slog.Int("members", len(members)),
			slog.String("root", allowlistRoot.Hex()),
		)
	}

	market, err := engine.NewMarket(
		a.cfg.Market.ID,
		a.cfg.Market.PoolConfig(allowlistRoot),
		clock,
		ledger.NewInMemory(),
		proof.NewStatic(),
		common.HexToAddress(a.cfg.Market.AdminAddress),
		common.HexToAddress(a.cfg.Market.FeeRecipientAddress),
		opts...,
	)
	if err != nil {
		return nil, nil, err
	}
	return market, registry, nil
}

// buildAuctionService assembles the orchestration service around the engine:
// persistence, caching, rate limiting, event fan-out, archival, and operator
// notifications.
func (a *App) buildAuctionService(market *engine.Market, deps *Dependencies) *service.AuctionService {
	return service.NewAuctionService(
		market,
		deps.Reveals,
		deps.Settlements,
		deps.Audit,
		deps.RoundCache,
		deps.RateLimiter,
		deps.Locks,
		deps.SignalBus,
		a.logger,
	).
		WithArchiver(deps.Archiver).
		WithNotifier(deps.Notifier).
		WithCommitRateLimit(a.cfg.Server.CommitRateLimit, a.cfg.Server.CommitRateWindow.Duration)
}

// solverAddress resolves the local solver identity: either the configured
// address directly, or the address derived from the encrypted key file.
func (a *App) solverAddress() (common.Address, error) {
	if a.cfg.Solver.Address != "" {
		return common.HexToAddress(a.cfg.Solver.Address), nil
	}

	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		EncryptedKeyPath: a.cfg.Solver.EncryptedKeyPath,
		KeyPassword:      a.cfg.Solver.KeyPassword,
	})
	if err != nil {
		return common.Address{}, err
	}
	priv, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("parse solver key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(priv.PublicKey), nil
}

// loadAllowlistMembers reads participant addresses from a file, one per line.
// Blank lines and lines starting with # are skipped.
func loadAllowlistMembers(path string) ([]common.Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var members []common.Address
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !common.IsHexAddress(line) {
			return nil, fmt.Errorf("invalid address %q in %s", line, path)
		}
		members = append(members, common.HexToAddress(line))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("allowlist %s contains no addresses", path)
	}
	return members, nil
}
