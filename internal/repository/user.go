// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"asteroid-arcade/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPrizeNotFound   = errors.New("prize payout not found")
)

// UserRepository handles player account persistence. Players are keyed
// by the public key the auth collaborator verified.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByPubkey retrieves a user by their public key.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) FindByPubkey(ctx context.Context, pubkey string) (*model.User, error) {
	const query = `
		SELECT id, pubkey, username, created_at, updated_at
		FROM users
		WHERE pubkey = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, pubkey).Scan(
		&user.ID,
		&user.Pubkey,
		&user.Username,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// Create creates a new user with the given pubkey and username.
func (r *UserRepository) Create(ctx context.Context, pubkey, username string) (*model.User, error) {
	const query = `
		INSERT INTO users (pubkey, username, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, pubkey, username, created_at, updated_at
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, pubkey, username).Scan(
		&user.ID,
		&user.Pubkey,
		&user.Username,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// Register creates a user for a pubkey that has no account yet. An
// empty username falls back to the derived default. Returns
// ErrUserExists when the pubkey is already registered.
func (r *UserRepository) Register(ctx context.Context, pubkey, username string) (*model.User, error) {
	_, err := r.FindByPubkey(ctx, pubkey)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if username == "" {
		username = defaultUsername(pubkey)
	}
	return r.Create(ctx, pubkey, username)
}

// GetOrCreate retrieves a user by pubkey, creating one with a derived
// default username if it doesn't exist. Returns the user and whether it
// was newly created.
func (r *UserRepository) GetOrCreate(ctx context.Context, pubkey string) (*model.User, bool, error) {
	user, err := r.FindByPubkey(ctx, pubkey)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, pubkey, defaultUsername(pubkey))
	if err != nil {
		// Handle race condition: another request might have created the user
		user, err = r.FindByPubkey(ctx, pubkey)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// defaultUsername derives a display name from a pubkey prefix.
func defaultUsername(pubkey string) string {
	prefix := pubkey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "player_" + prefix
}
