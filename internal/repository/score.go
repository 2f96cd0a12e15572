package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"asteroid-arcade/internal/model"
)

// ScoreRepository handles submitted score persistence and leaderboard
// queries. Scores are immutable once written.
type ScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new ScoreRepository instance.
func NewScoreRepository(pool *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{pool: pool}
}

// SubmitScore inserts a new score row.
func (r *ScoreRepository) SubmitScore(ctx context.Context, userID, score, level, playTime int64) (*model.Score, error) {
	const query = `
		INSERT INTO scores (user_id, score, level, play_time, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, score, level, play_time, created_at
	`

	var s model.Score
	err := r.pool.QueryRow(ctx, query, userID, score, level, playTime).Scan(
		&s.ID,
		&s.UserID,
		&s.Score,
		&s.Level,
		&s.PlayTime,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit score: %w", err)
	}

	return &s, nil
}

// TopScores returns the global leaderboard ordered by score descending.
func (r *ScoreRepository) TopScores(ctx context.Context, limit int) ([]*model.ScoreWithUsername, error) {
	const query = `
		SELECT s.id, u.username, s.score, s.level, s.play_time, s.created_at
		FROM scores s
		JOIN users u ON s.user_id = u.id
		ORDER BY s.score DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top scores: %w", err)
	}
	defer rows.Close()

	var scores []*model.ScoreWithUsername
	for rows.Next() {
		var s model.ScoreWithUsername
		err := rows.Scan(&s.ID, &s.Username, &s.Score, &s.Level, &s.PlayTime, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}

	return scores, nil
}

// UserScores returns a user's personal bests, ordered by score
// descending rather than recency.
func (r *ScoreRepository) UserScores(ctx context.Context, userID int64, limit int) ([]*model.Score, error) {
	const query = `
		SELECT id, user_id, score, level, play_time, created_at
		FROM scores
		WHERE user_id = $1
		ORDER BY score DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get user scores: %w", err)
	}
	defer rows.Close()

	var scores []*model.Score
	for rows.Next() {
		var s model.Score
		err := rows.Scan(&s.ID, &s.UserID, &s.Score, &s.Level, &s.PlayTime, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}

	return scores, nil
}
