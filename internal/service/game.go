// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/model"
	"asteroid-arcade/internal/repository"
)

// Common errors for service operations.
var (
	// ErrNotSessionOwner is returned when a session belongs to a different user.
	ErrNotSessionOwner = errors.New("session belongs to a different user")
)

// ConfigVersion tags every generated game config.
const ConfigVersion = "1.0.0"

// configTTL is how long a generated config stays valid.
const configTTL = 5 * time.Minute

// maxLeaderboardSize bounds the leaderboard query. The cache always
// holds the full-size list; callers get a slice of it, so entries
// cached under one requested limit are never served short to another.
const maxLeaderboardSize = 100

// SessionStore is the session persistence surface the game service needs.
type SessionStore interface {
	CreateSession(ctx context.Context, userID int64) (*model.GameSession, error)
	FindSession(ctx context.Context, sessionID string) (*model.GameSession, error)
	RefreshActivity(ctx context.Context, sessionID string) (*model.GameSession, error)
	RecordConfig(ctx context.Context, configID string, userID int64, version string, expiration time.Time) error
}

// ScoreStore is the score persistence surface the game service needs.
type ScoreStore interface {
	SubmitScore(ctx context.Context, userID, score, level, playTime int64) (*model.Score, error)
	TopScores(ctx context.Context, limit int) ([]*model.ScoreWithUsername, error)
	UserScores(ctx context.Context, userID int64, limit int) ([]*model.Score, error)
}

// ScoreCache is the optional leaderboard cache surface. Implementations
// fail open: a miss and an outage look the same to the service.
type ScoreCache interface {
	GetTopScores(ctx context.Context) ([]*model.ScoreWithUsername, bool)
	SetTopScores(ctx context.Context, scores []*model.ScoreWithUsername)
	Invalidate(ctx context.Context)
}

// GameConfigResponse is the gameplay parameter set handed to the client.
// It is recomputed per request from the session's difficulty factor.
type GameConfigResponse struct {
	Version        string          `json:"version"`
	ConfigID       string          `json:"configId"`
	SessionID      string          `json:"sessionId"`
	ExpirationTime int64           `json:"expirationTime"`
	FPS            int64           `json:"fps"`
	Ship           ShipConfig      `json:"ship"`
	Bullets        BulletsConfig   `json:"bullets"`
	Asteroids      AsteroidsConfig `json:"asteroids"`
	Scoring        ScoringConfig   `json:"scoring"`
}

// ShipConfig holds the fixed ship parameters.
type ShipConfig struct {
	Radius              int64   `json:"radius"`
	TurnSpeed           float64 `json:"turnSpeed"`
	Thrust              float64 `json:"thrust"`
	Friction            float64 `json:"friction"`
	InvulnerabilityTime int64   `json:"invulnerabilityTime"`
}

// BulletsConfig holds the fixed bullet parameters.
type BulletsConfig struct {
	Speed    int64 `json:"speed"`
	Radius   int64 `json:"radius"`
	MaxCount int64 `json:"maxCount"`
	LifeTime int64 `json:"lifeTime"`
}

// AsteroidsConfig holds the difficulty-scaled asteroid parameters.
type AsteroidsConfig struct {
	InitialCount int64          `json:"initialCount"`
	Speed        int64          `json:"speed"`
	Size         int64          `json:"size"`
	Vertices     VerticesConfig `json:"vertices"`
}

// VerticesConfig bounds the asteroid polygon complexity.
type VerticesConfig struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// ScoringConfig holds the difficulty-scaled scoring parameters.
type ScoringConfig struct {
	PointsPerAsteroid int64   `json:"pointsPerAsteroid"`
	LevelMultiplier   float64 `json:"levelMultiplier"`
}

// BuildConfig derives the gameplay parameters for a session. Asteroid
// count, asteroid speed and points per asteroid scale with difficulty
// (integer-truncated); everything else is constant.
func BuildConfig(session *model.GameSession, configID string, expiration time.Time) *GameConfigResponse {
	difficulty := session.DifficultyFactor

	return &GameConfigResponse{
		Version:        ConfigVersion,
		ConfigID:       configID,
		SessionID:      session.SessionID,
		ExpirationTime: expiration.UnixMilli(),
		FPS:            60,
		Ship: ShipConfig{
			Radius:              10,
			TurnSpeed:           0.1,
			Thrust:              0.1,
			Friction:            0.05,
			InvulnerabilityTime: 3000,
		},
		Bullets: BulletsConfig{
			Speed:    5,
			Radius:   2,
			MaxCount: 10,
			LifeTime: 60,
		},
		Asteroids: AsteroidsConfig{
			InitialCount: int64(5.0 * difficulty),
			Speed:        int64(1.0 * difficulty),
			Size:         30,
			Vertices:     VerticesConfig{Min: 7, Max: 15},
		},
		Scoring: ScoringConfig{
			PointsPerAsteroid: int64(10.0 * difficulty),
			LevelMultiplier:   1.5,
		},
	}
}

// GameService coordinates sessions, configs, and scores.
type GameService struct {
	sessions SessionStore
	scores   ScoreStore
	cache    ScoreCache
}

// NewGameService creates a new GameService instance. lbCache may be
// nil, in which case the leaderboard is always served from the
// database.
func NewGameService(sessions SessionStore, scores ScoreStore, lbCache ScoreCache) *GameService {
	return &GameService{
		sessions: sessions,
		scores:   scores,
		cache:    lbCache,
	}
}

// NewSession starts a fresh session for a user and generates its config.
func (s *GameService) NewSession(ctx context.Context, userID int64) (*GameConfigResponse, error) {
	session, err := s.sessions.CreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.GenerateConfig(ctx, session)
}

// ConfigForSession refreshes an existing session's activity and
// difficulty and returns a fresh config. The session must belong to the
// requesting user.
func (s *GameService) ConfigForSession(ctx context.Context, userID int64, sessionID string) (*GameConfigResponse, error) {
	session, err := s.sessions.RefreshActivity(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}
	return s.GenerateConfig(ctx, session)
}

// GenerateConfig builds the response payload for a session and persists
// the audit row for the generated config id.
func (s *GameService) GenerateConfig(ctx context.Context, session *model.GameSession) (*GameConfigResponse, error) {
	configID := "config_" + uuid.Must(uuid.NewV7()).String()
	expiration := time.Now().UTC().Add(configTTL)

	if err := s.sessions.RecordConfig(ctx, configID, session.UserID, ConfigVersion, expiration); err != nil {
		return nil, err
	}

	return BuildConfig(session, configID, expiration), nil
}

// SubmitScore records a score against a session owned by the user.
func (s *GameService) SubmitScore(ctx context.Context, userID int64, sessionID string, score, level, playTime int64) (*model.Score, error) {
	session, err := s.sessions.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}

	submitted, err := s.scores.SubmitScore(ctx, userID, score, level, playTime)
	if err != nil {
		return nil, fmt.Errorf("failed to submit score: %w", err)
	}

	// A new score may reshuffle the leaderboard.
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	log.Info().Int64("user_id", userID).Int64("score", score).Msg("Score submitted")
	return submitted, nil
}

// TopScores returns the first limit rows of the global leaderboard.
// The store is always queried (and the cache warmed) at the full size
// so the cached list can serve any limit.
func (s *GameService) TopScores(ctx context.Context, limit int) ([]*model.ScoreWithUsername, error) {
	if limit <= 0 || limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}

	var scores []*model.ScoreWithUsername
	var ok bool
	if s.cache != nil {
		scores, ok = s.cache.GetTopScores(ctx)
	}
	if !ok {
		var err error
		scores, err = s.scores.TopScores(ctx, maxLeaderboardSize)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.SetTopScores(ctx, scores)
		}
	}

	if len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

// UserScores returns a user's personal best list.
func (s *GameService) UserScores(ctx context.Context, userID int64, limit int) ([]*model.Score, error) {
	return s.scores.UserScores(ctx, userID, limit)
}

// IsNotFound reports whether err is a missing-entity repository error.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrSessionNotFound) ||
		errors.Is(err, repository.ErrUserNotFound) ||
		errors.Is(err, repository.ErrPaymentNotFound) ||
		errors.Is(err, repository.ErrPrizeNotFound)
}
