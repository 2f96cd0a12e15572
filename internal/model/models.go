// Package model defines the data models for the arcade server.
package model

import "time"

// User represents a player identified by their public key.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Pubkey    string    `db:"pubkey" json:"pubkey"`
	Username  string    `db:"username" json:"username"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// GameSession is an append-only record of a play session. The difficulty
// factor is recomputed from elapsed wall-clock time on every refresh and
// never decreases.
type GameSession struct {
	ID               int64     `db:"id" json:"id"`
	SessionID        string    `db:"session_id" json:"sessionId"`
	UserID           int64     `db:"user_id" json:"userId"`
	StartTime        time.Time `db:"start_time" json:"startTime"`
	LastActive       time.Time `db:"last_active" json:"lastActive"`
	DifficultyFactor float64   `db:"difficulty_factor" json:"difficultyFactor"`
}

// GameConfig is the audit row persisted for every generated config.
// The response payload itself is recomputed per request, not read back.
type GameConfig struct {
	ID             int64     `db:"id" json:"id"`
	ConfigID       string    `db:"config_id" json:"configId"`
	UserID         int64     `db:"user_id" json:"userId"`
	Version        string    `db:"version" json:"version"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	ExpirationTime time.Time `db:"expiration_time" json:"expirationTime"`
}

// Score is an immutable submitted game result.
type Score struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"userId"`
	Score     int64     `db:"score" json:"score"`
	Level     int64     `db:"level" json:"level"`
	PlayTime  int64     `db:"play_time" json:"playTime"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ScoreWithUsername is a leaderboard row joined to the player's username.
type ScoreWithUsername struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Score     int64     `db:"score" json:"score"`
	Level     int64     `db:"level" json:"level"`
	PlayTime  int64     `db:"play_time" json:"playTime"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// GamePayment is an entry-fee payment record tied to a provider payment id.
type GamePayment struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"userId"`
	PaymentID  string     `db:"payment_id" json:"paymentId"`
	Invoice    string     `db:"invoice" json:"invoice"`
	AmountSats int64      `db:"amount_sats" json:"amountSats"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
	PaidAt     *time.Time `db:"paid_at" json:"paidAt,omitempty"`
}

// PrizePayout is the daily winner record. At most one row exists per
// (user_id, date); the storage layer enforces this.
type PrizePayout struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"userId"`
	Date           string     `db:"date" json:"date"`
	Score          int64      `db:"score" json:"score"`
	AmountSats     int64      `db:"amount_sats" json:"amountSats"`
	PaymentRequest *string    `db:"payment_request" json:"paymentRequest,omitempty"`
	PaymentID      *string    `db:"payment_id" json:"paymentId,omitempty"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
	PaidAt         *time.Time `db:"paid_at" json:"paidAt,omitempty"`
}

// TopScorer is the aggregate winner view for one UTC day. It is derived
// from score rows and never persisted on its own.
type TopScorer struct {
	UserID      int64  `db:"user_id" json:"userId"`
	Score       int64  `db:"score" json:"score"`
	GamesPlayed int64  `db:"games_played" json:"gamesPlayed"`
	Username    string `db:"username" json:"username"`
}

// Payment and payout statuses. Transitions are one-way:
// pending -> paid or pending -> failed.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// DateFormat is the calendar-date form used for prize payouts and
// settlement queries (UTC day).
const DateFormat = "2006-01-02"
