package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"asteroid-arcade/internal/model"
)

// Difficulty curve constants. Difficulty grows 10% per elapsed minute
// from 1.0 and is capped at 3.0, so holding a session open can only
// raise the reward scaling, never lower it.
const (
	BaseDifficulty   = 1.0
	MaxDifficulty    = 3.0
	DifficultyPerMin = 0.1
)

// DifficultyFor returns the difficulty factor for a session started at
// the given time, observed at now.
func DifficultyFor(startTime, now time.Time) float64 {
	elapsedMinutes := now.Sub(startTime).Minutes()
	if elapsedMinutes < 0 {
		elapsedMinutes = 0
	}
	// Whole minutes only, matching the session's coarse clock.
	d := BaseDifficulty + DifficultyPerMin*float64(int64(elapsedMinutes))
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}

// SessionRepository handles game session and config-audit persistence.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// CreateSession starts a fresh session for a user at difficulty 1.0.
func (r *SessionRepository) CreateSession(ctx context.Context, userID int64) (*model.GameSession, error) {
	sessionID := "session_" + uuid.Must(uuid.NewV7()).String()

	const query = `
		INSERT INTO game_sessions (session_id, user_id, start_time, last_active, difficulty_factor)
		VALUES ($1, $2, NOW(), NOW(), $3)
		RETURNING id, session_id, user_id, start_time, last_active, difficulty_factor
	`

	var session model.GameSession
	err := r.pool.QueryRow(ctx, query, sessionID, userID, BaseDifficulty).Scan(
		&session.ID,
		&session.SessionID,
		&session.UserID,
		&session.StartTime,
		&session.LastActive,
		&session.DifficultyFactor,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &session, nil
}

// FindSession retrieves a session by its opaque token.
// Returns ErrSessionNotFound if the session does not exist.
func (r *SessionRepository) FindSession(ctx context.Context, sessionID string) (*model.GameSession, error) {
	const query = `
		SELECT id, session_id, user_id, start_time, last_active, difficulty_factor
		FROM game_sessions
		WHERE session_id = $1
	`

	var session model.GameSession
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.SessionID,
		&session.UserID,
		&session.StartTime,
		&session.LastActive,
		&session.DifficultyFactor,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &session, nil
}

// RefreshActivity recomputes the session's difficulty from elapsed time
// and bumps last_active. Returns ErrSessionNotFound for unknown sessions.
func (r *SessionRepository) RefreshActivity(ctx context.Context, sessionID string) (*model.GameSession, error) {
	session, err := r.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	difficulty := DifficultyFor(session.StartTime, time.Now().UTC())

	const query = `
		UPDATE game_sessions
		SET last_active = NOW(), difficulty_factor = $2
		WHERE session_id = $1
		RETURNING id, session_id, user_id, start_time, last_active, difficulty_factor
	`

	var updated model.GameSession
	err = r.pool.QueryRow(ctx, query, sessionID, difficulty).Scan(
		&updated.ID,
		&updated.SessionID,
		&updated.UserID,
		&updated.StartTime,
		&updated.LastActive,
		&updated.DifficultyFactor,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to refresh session activity: %w", err)
	}

	return &updated, nil
}

// RecordConfig persists the audit row for a generated game config.
func (r *SessionRepository) RecordConfig(ctx context.Context, configID string, userID int64, version string, expiration time.Time) error {
	const query = `
		INSERT INTO game_configs (config_id, user_id, version, created_at, expiration_time)
		VALUES ($1, $2, $3, NOW(), $4)
	`

	if _, err := r.pool.Exec(ctx, query, configID, userID, version, expiration); err != nil {
		return fmt.Errorf("failed to record game config: %w", err)
	}
	return nil
}
