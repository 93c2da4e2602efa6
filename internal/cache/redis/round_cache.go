package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

const roundTTL = 15 * time.Minute

// RoundCache implements domain.RoundCache using Redis hashes with JSON-
// serialized Batch data and a per-market pointer to the current round.
//
// Key schema:
//
//	round:{marketID}:{roundID} - hash with field "data" containing JSON
//	round:{marketID}:current   - string value of the current round ID
type RoundCache struct {
	rdb *redis.Client
}

// NewRoundCache creates a RoundCache backed by the given Client.
func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying()}
}

func roundKey(marketID string, roundID uint64) string {
	return fmt.Sprintf("round:%s:%d", marketID, roundID)
}

func currentRoundKey(marketID string) string {
	return "round:" + marketID + ":current"
}

// SetRound stores a round snapshot in the cache with a 15-minute TTL. The
// engine refreshes it on every state transition, so the TTL only bounds
// staleness after a market goes quiet.
func (rc *RoundCache) SetRound(ctx context.Context, marketID string, b domain.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("redis: marshal round %s/%d: %w", marketID, b.ID, err)
	}

	key := roundKey(marketID, b.ID)

	pipe := rc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, roundTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set round %s/%d: %w", marketID, b.ID, err)
	}
	return nil
}

// GetRound retrieves a round snapshot by market and round ID.
// It returns domain.ErrNotFound when the key does not exist.
func (rc *RoundCache) GetRound(ctx context.Context, marketID string, roundID uint64) (domain.Batch, error) {
	data, err := rc.rdb.HGet(ctx, roundKey(marketID, roundID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Batch{}, domain.ErrNotFound
		}
		return domain.Batch{}, fmt.Errorf("redis: get round %s/%d: %w", marketID, roundID, err)
	}

	var b domain.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.Batch{}, fmt.Errorf("redis: unmarshal round %s/%d: %w", marketID, roundID, err)
	}
	return b, nil
}

// SetCurrent records the active round ID for a market.
func (rc *RoundCache) SetCurrent(ctx context.Context, marketID string, roundID uint64) error {
	err := rc.rdb.Set(ctx, currentRoundKey(marketID), strconv.FormatUint(roundID, 10), roundTTL).Err()
	if err != nil {
		return fmt.Errorf("redis: set current round %s: %w", marketID, err)
	}
	return nil
}

// GetCurrent returns the active round ID for a market.
// It returns domain.ErrNotFound if no current round is recorded.
func (rc *RoundCache) GetCurrent(ctx context.Context, marketID string) (uint64, error) {
	val, err := rc.rdb.Get(ctx, currentRoundKey(marketID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("redis: get current round %s: %w", marketID, err)
	}

	roundID, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse current round %s: %w", marketID, err)
	}
	return roundID, nil
}

// Compile-time interface check.
var _ domain.RoundCache = (*RoundCache)(nil)
