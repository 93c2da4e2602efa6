package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// RevealStore implements domain.RevealStore using PostgreSQL.
type RevealStore struct {
	pool *pgxpool.Pool
}

// NewRevealStore creates a new RevealStore backed by the given connection pool.
func NewRevealStore(pool *pgxpool.Pool) *RevealStore {
	return &RevealStore{pool: pool}
}

// Insert appends a disclosed order to the reveal log. The per-round unique
// index on the reveal index makes double publication a hard error rather
// than a silent overwrite.
func (s *RevealStore) Insert(ctx context.Context, rec domain.RevealRecord) error {
	const query = `
		INSERT INTO reveal_log
			(market_id, round_id, reveal_index, owner_address, amount_units,
			 limit_price_ticks, side, salt, leaf_hash, revealed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		rec.MarketID,
		int64(rec.RoundID),
		rec.RevealIndex,
		rec.Owner.Hex(),
		rec.AmountUnits,
		rec.LimitPriceTicks,
		string(rec.Side),
		rec.Salt.Hex(),
		rec.LeafHash.Hex(),
		rec.RevealedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert reveal %s/%d/%d: %w",
			rec.MarketID, rec.RoundID, rec.RevealIndex, err)
	}
	return nil
}

// ListByRound returns a round's reveal log ordered by reveal index, which is
// exactly the order the solver and validator consume it in.
func (s *RevealStore) ListByRound(ctx context.Context, marketID string, roundID uint64) ([]domain.RevealRecord, error) {
	const query = `
		SELECT market_id, round_id, reveal_index, owner_address, amount_units,
		       limit_price_ticks, side, salt, leaf_hash, revealed_at
		FROM reveal_log
		WHERE market_id = $1 AND round_id = $2
		ORDER BY reveal_index ASC`

	rows, err := s.pool.Query(ctx, query, marketID, int64(roundID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list reveals %s/%d: %w", marketID, roundID, err)
	}
	defer rows.Close()

	var recs []domain.RevealRecord
	for rows.Next() {
		var (
			rec              domain.RevealRecord
			roundID64        int64
			owner, salt, lh  string
			side             string
		)
		if err := rows.Scan(
			&rec.MarketID, &roundID64, &rec.RevealIndex, &owner, &rec.AmountUnits,
			&rec.LimitPriceTicks, &side, &salt, &lh, &rec.RevealedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan reveal: %w", err)
		}
		rec.RoundID = uint64(roundID64)
		rec.Owner = common.HexToAddress(owner)
		rec.Side = domain.Side(side)
		rec.Salt = common.HexToHash(salt)
		rec.LeafHash = common.HexToHash(lh)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list reveals rows: %w", err)
	}
	return recs, nil
}

// Count returns the total number of reveals recorded for a market.
func (s *RevealStore) Count(ctx context.Context, marketID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM reveal_log WHERE market_id = $1", marketID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count reveals %s: %w", marketID, err)
	}
	return n, nil
}

var _ domain.RevealStore = (*RevealStore)(nil)
