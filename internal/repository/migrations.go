package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Migrate applies the database schema. Each statement is idempotent so
// restarts are safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "users table",
			sql: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					pubkey TEXT NOT NULL UNIQUE,
					username TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			name: "game_sessions table",
			sql: `
				CREATE TABLE IF NOT EXISTS game_sessions (
					id BIGSERIAL PRIMARY KEY,
					session_id TEXT NOT NULL UNIQUE,
					user_id BIGINT NOT NULL REFERENCES users(id),
					start_time TIMESTAMPTZ NOT NULL,
					last_active TIMESTAMPTZ NOT NULL,
					difficulty_factor DOUBLE PRECISION NOT NULL DEFAULT 1.0
				);
				CREATE INDEX IF NOT EXISTS idx_game_sessions_user ON game_sessions(user_id);
			`,
		},
		{
			name: "game_configs table",
			sql: `
				CREATE TABLE IF NOT EXISTS game_configs (
					id BIGSERIAL PRIMARY KEY,
					config_id TEXT NOT NULL UNIQUE,
					user_id BIGINT NOT NULL REFERENCES users(id),
					version TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expiration_time TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			name: "scores table",
			sql: `
				CREATE TABLE IF NOT EXISTS scores (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id),
					score BIGINT NOT NULL,
					level BIGINT NOT NULL,
					play_time BIGINT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_scores_score ON scores(score DESC);
				CREATE INDEX IF NOT EXISTS idx_scores_user_time ON scores(user_id, created_at);
			`,
		},
		{
			name: "game_payments table",
			sql: `
				CREATE TABLE IF NOT EXISTS game_payments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id),
					payment_id TEXT NOT NULL UNIQUE,
					invoice TEXT NOT NULL,
					amount_sats BIGINT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					paid_at TIMESTAMPTZ
				);
				CREATE INDEX IF NOT EXISTS idx_game_payments_user_paid ON game_payments(user_id, status, paid_at);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_game_payments_one_pending
					ON game_payments(user_id) WHERE status = 'pending';
			`,
		},
		{
			name: "prize_payouts table",
			sql: `
				CREATE TABLE IF NOT EXISTS prize_payouts (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id),
					date TEXT NOT NULL,
					score BIGINT NOT NULL,
					amount_sats BIGINT NOT NULL,
					payment_request TEXT,
					payment_id TEXT,
					status TEXT NOT NULL DEFAULT 'pending',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					paid_at TIMESTAMPTZ,
					UNIQUE (user_id, date)
				);
			`,
		},
	}

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return err
		}
		log.Info().Str("migration", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
