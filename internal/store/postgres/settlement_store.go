package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given
// connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Insert records a round's settlement summary. The (market, round) primary
// key enforces append-only, settle-once semantics at the storage layer too.
func (s *SettlementStore) Insert(ctx context.Context, sum domain.SettlementSummary) error {
	const query = `
		INSERT INTO settlements
			(market_id, round_id, clearing_price, buy_volume, sell_volume,
			 protocol_fee, orders_root, solver, settled_tick, emergency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		sum.MarketID,
		int64(sum.RoundID),
		sum.ClearingPrice,
		sum.BuyVolume,
		sum.SellVolume,
		sum.ProtocolFee,
		sum.OrdersRoot.Hex(),
		sum.Solver.Hex(),
		int64(sum.SettledTick),
		sum.Emergency,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s/%d: %w", sum.MarketID, sum.RoundID, err)
	}
	return nil
}

// GetByRound returns one round's settlement summary.
func (s *SettlementStore) GetByRound(ctx context.Context, marketID string, roundID uint64) (domain.SettlementSummary, error) {
	const query = `
		SELECT market_id, round_id, clearing_price, buy_volume, sell_volume,
		       protocol_fee, orders_root, solver, settled_tick, emergency, created_at
		FROM settlements
		WHERE market_id = $1 AND round_id = $2`

	sum, err := scanSettlement(s.pool.QueryRow(ctx, query, marketID, int64(roundID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SettlementSummary{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SettlementSummary{}, fmt.Errorf("postgres: get settlement %s/%d: %w", marketID, roundID, err)
	}
	return sum, nil
}

// ListRange returns settlements for rounds in [fromRound, toRound].
func (s *SettlementStore) ListRange(ctx context.Context, marketID string, fromRound, toRound uint64, opts domain.ListOpts) ([]domain.SettlementSummary, error) {
	query := `
		SELECT market_id, round_id, clearing_price, buy_volume, sell_volume,
		       protocol_fee, orders_root, solver, settled_tick, emergency, created_at
		FROM settlements
		WHERE market_id = $1 AND round_id >= $2 AND round_id <= $3
		ORDER BY round_id ASC`
	args := []any{marketID, int64(fromRound), int64(toRound)}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.SettlementSummary
	for rows.Next() {
		sum, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settlements rows: %w", err)
	}
	return out, nil
}

// scanSettlement decodes one settlement row from either a Row or Rows.
func scanSettlement(row pgx.Row) (domain.SettlementSummary, error) {
	var (
		sum                 domain.SettlementSummary
		roundID, settleTick int64
		root, solver        string
	)
	if err := row.Scan(
		&sum.MarketID, &roundID, &sum.ClearingPrice, &sum.BuyVolume, &sum.SellVolume,
		&sum.ProtocolFee, &root, &solver, &settleTick, &sum.Emergency, &sum.CreatedAt,
	); err != nil {
		return domain.SettlementSummary{}, err
	}
	sum.RoundID = uint64(roundID)
	sum.SettledTick = uint64(settleTick)
	sum.OrdersRoot = common.HexToHash(root)
	sum.Solver = common.HexToAddress(solver)
	return sum, nil
}

var _ domain.SettlementStore = (*SettlementStore)(nil)
