// Package cache provides a Redis-backed cache for the global
// leaderboard. The cache is strictly an accelerator: every operation
// fails open so a Redis outage only costs latency, never correctness.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/config"
	"asteroid-arcade/internal/model"
)

const topScoresKey = "leaderboard:top"

// LeaderboardCache caches the top-scores response.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLeaderboardCache connects to Redis and verifies the connection.
func NewLeaderboardCache(ctx context.Context, cfg *config.RedisConfig) (*LeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info().Str("addr", cfg.Addr).Dur("ttl", cfg.TTL).Msg("Connected to Redis leaderboard cache")
	return &LeaderboardCache{client: client, ttl: cfg.TTL}, nil
}

// GetTopScores returns the cached leaderboard, or (nil, false) on a
// miss or any Redis failure.
func (c *LeaderboardCache) GetTopScores(ctx context.Context) ([]*model.ScoreWithUsername, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, topScoresKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("Leaderboard cache read failed")
		}
		return nil, false
	}

	var scores []*model.ScoreWithUsername
	if err := json.Unmarshal(raw, &scores); err != nil {
		log.Warn().Err(err).Msg("Leaderboard cache entry corrupt, dropping")
		c.Invalidate(ctx)
		return nil, false
	}
	return scores, true
}

// SetTopScores stores the leaderboard with the configured TTL.
func (c *LeaderboardCache) SetTopScores(ctx context.Context, scores []*model.ScoreWithUsername) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(scores)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, topScoresKey, raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Leaderboard cache write failed")
	}
}

// Invalidate drops the cached leaderboard, called after score submits.
func (c *LeaderboardCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, topScoresKey).Err(); err != nil {
		log.Warn().Err(err).Msg("Leaderboard cache invalidation failed")
	}
}

// Close releases the Redis connection.
func (c *LeaderboardCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
