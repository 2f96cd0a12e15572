package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"asteroid-arcade/internal/model"
)

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// PaymentRepository handles entry-fee payments and daily prize payouts.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository instance.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

const gamePaymentColumns = `id, user_id, payment_id, invoice, amount_sats, status, created_at, updated_at, paid_at`

func scanGamePayment(row pgx.Row) (*model.GamePayment, error) {
	var p model.GamePayment
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.PaymentID,
		&p.Invoice,
		&p.AmountSats,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateGamePayment records a new pending entry-fee payment.
func (r *PaymentRepository) CreateGamePayment(ctx context.Context, userID int64, paymentID, invoice string, amountSats int64) (*model.GamePayment, error) {
	const query = `
		INSERT INTO game_payments (user_id, payment_id, invoice, amount_sats, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
		RETURNING ` + gamePaymentColumns

	payment, err := scanGamePayment(r.pool.QueryRow(ctx, query, userID, paymentID, invoice, amountSats))
	if err != nil {
		return nil, fmt.Errorf("failed to create game payment: %w", err)
	}
	return payment, nil
}

// GetPaymentByID retrieves a payment by its provider payment id.
// Returns ErrPaymentNotFound if no row matches.
func (r *PaymentRepository) GetPaymentByID(ctx context.Context, paymentID string) (*model.GamePayment, error) {
	const query = `
		SELECT ` + gamePaymentColumns + `
		FROM game_payments
		WHERE payment_id = $1
	`

	payment, err := scanGamePayment(r.pool.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// UpdatePaymentStatus transitions a payment to the given status. paid_at
// is stamped on the first transition to "paid" and never overwritten, so
// repeating a terminal update leaves the row unchanged and returns the
// same value. Returns (nil, nil) when no row matches the payment id.
func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, paymentID, status string) (*model.GamePayment, error) {
	const query = `
		UPDATE game_payments
		SET status = $2,
		    updated_at = CASE WHEN status = $2 THEN updated_at ELSE NOW() END,
		    paid_at = CASE WHEN $2 = 'paid' THEN COALESCE(paid_at, NOW()) ELSE paid_at END
		WHERE payment_id = $1
		RETURNING ` + gamePaymentColumns

	payment, err := scanGamePayment(r.pool.QueryRow(ctx, query, paymentID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	return payment, nil
}

// PendingPaymentForUser returns the user's most recent pending payment,
// or (nil, nil) when none exists. Used to re-present an existing invoice
// instead of issuing a duplicate charge.
func (r *PaymentRepository) PendingPaymentForUser(ctx context.Context, userID int64) (*model.GamePayment, error) {
	const query = `
		SELECT ` + gamePaymentColumns + `
		FROM game_payments
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`

	payment, err := scanGamePayment(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending payment: %w", err)
	}
	return payment, nil
}

// HasValidPayment reports whether the user has a paid entry fee within
// the trailing hour. A single fee grants unlimited sessions inside that
// window.
func (r *PaymentRepository) HasValidPayment(ctx context.Context, userID int64) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM game_payments
			WHERE user_id = $1 AND status = 'paid' AND paid_at > NOW() - INTERVAL '1 hour'
		)
	`

	var valid bool
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&valid); err != nil {
		return false, fmt.Errorf("failed to check valid payment: %w", err)
	}
	return valid, nil
}

// dayRange returns the half-open UTC interval [start, end) covering the
// given calendar date.
func dayRange(date string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(model.DateFormat, date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// CountGamesForDate counts paid entry fees whose paid_at falls within
// the given UTC calendar day.
func (r *PaymentRepository) CountGamesForDate(ctx context.Context, date string) (int64, error) {
	start, end, err := dayRange(date)
	if err != nil {
		return 0, err
	}

	const query = `
		SELECT COUNT(*)
		FROM game_payments
		WHERE status = 'paid' AND paid_at >= $1 AND paid_at < $2
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count games for date: %w", err)
	}
	return count, nil
}

// TopScorerForDate aggregates score rows inside the date's UTC bounds,
// taking each user's best score and returning the single highest. Ties
// go to the user whose first score of the day came earliest. Returns
// (nil, nil) when no scores exist for the date.
func (r *PaymentRepository) TopScorerForDate(ctx context.Context, date string) (*model.TopScorer, error) {
	start, end, err := dayRange(date)
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT s.user_id, COALESCE(MAX(s.score), 0) AS top_score, COUNT(*) AS games_played, u.username
		FROM scores s
		JOIN users u ON s.user_id = u.id
		WHERE s.created_at >= $1 AND s.created_at < $2
		GROUP BY s.user_id, u.username
		ORDER BY top_score DESC, MIN(s.created_at) ASC
		LIMIT 1
	`

	var ts model.TopScorer
	err = r.pool.QueryRow(ctx, query, start, end).Scan(&ts.UserID, &ts.Score, &ts.GamesPlayed, &ts.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get top scorer: %w", err)
	}
	return &ts, nil
}

// CheckTopScorer reports whether the user was the top scorer for the date.
func (r *PaymentRepository) CheckTopScorer(ctx context.Context, userID int64, date string) (bool, error) {
	ts, err := r.TopScorerForDate(ctx, date)
	if err != nil {
		return false, err
	}
	return ts != nil && ts.UserID == userID, nil
}

// CheckPrizeClaimed reports whether a payout row exists for (user, date).
func (r *PaymentRepository) CheckPrizeClaimed(ctx context.Context, userID int64, date string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM prize_payouts WHERE user_id = $1 AND date = $2)`

	var claimed bool
	if err := r.pool.QueryRow(ctx, query, userID, date).Scan(&claimed); err != nil {
		return false, fmt.Errorf("failed to check prize claimed: %w", err)
	}
	return claimed, nil
}

const prizePayoutColumns = `id, user_id, date, score, amount_sats, payment_request, payment_id, status, created_at, updated_at, paid_at`

func scanPrizePayout(row pgx.Row) (*model.PrizePayout, error) {
	var p model.PrizePayout
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Date,
		&p.Score,
		&p.AmountSats,
		&p.PaymentRequest,
		&p.PaymentID,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordDailyWinner inserts a pending payout for (user, date). The
// (user_id, date) uniqueness constraint makes this safe under concurrent
// callers: a second insert is ignored and the existing row is returned.
func (r *PaymentRepository) RecordDailyWinner(ctx context.Context, userID int64, date string, score, amountSats int64) (*model.PrizePayout, error) {
	const insert = `
		INSERT INTO prize_payouts (user_id, date, score, amount_sats, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
		ON CONFLICT (user_id, date) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, insert, userID, date, score, amountSats); err != nil {
		return nil, fmt.Errorf("failed to record daily winner: %w", err)
	}

	const query = `
		SELECT ` + prizePayoutColumns + `
		FROM prize_payouts
		WHERE user_id = $1 AND date = $2
	`

	payout, err := scanPrizePayout(r.pool.QueryRow(ctx, query, userID, date))
	if err != nil {
		return nil, fmt.Errorf("failed to load daily winner: %w", err)
	}
	return payout, nil
}

// UpdatePrizeWithInvoice attaches the winner's invoice to a still-pending
// payout. Returns (nil, nil) when the payout is absent or already settled.
func (r *PaymentRepository) UpdatePrizeWithInvoice(ctx context.Context, userID int64, date, invoice string) (*model.PrizePayout, error) {
	const query = `
		UPDATE prize_payouts
		SET payment_request = $3, updated_at = NOW()
		WHERE user_id = $1 AND date = $2 AND status = 'pending'
		RETURNING ` + prizePayoutColumns

	payout, err := scanPrizePayout(r.pool.QueryRow(ctx, query, userID, date, invoice))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update prize with invoice: %w", err)
	}
	return payout, nil
}

// UpdatePrizeStatus transitions a payout and records the outbound
// provider payment id. paid_at is stamped on the first transition to
// "paid". Returns (nil, nil) when no row matches.
func (r *PaymentRepository) UpdatePrizeStatus(ctx context.Context, id int64, status string, paymentID *string) (*model.PrizePayout, error) {
	const query = `
		UPDATE prize_payouts
		SET status = $2,
		    payment_id = COALESCE($3, payment_id),
		    updated_at = NOW(),
		    paid_at = CASE WHEN $2 = 'paid' THEN COALESCE(paid_at, NOW()) ELSE paid_at END
		WHERE id = $1
		RETURNING ` + prizePayoutColumns

	payout, err := scanPrizePayout(r.pool.QueryRow(ctx, query, id, status, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update prize status: %w", err)
	}
	return payout, nil
}

// PendingPrizeForUser returns the pending payout for (user, date), or
// (nil, nil) when none exists.
func (r *PaymentRepository) PendingPrizeForUser(ctx context.Context, userID int64, date string) (*model.PrizePayout, error) {
	const query = `
		SELECT ` + prizePayoutColumns + `
		FROM prize_payouts
		WHERE user_id = $1 AND date = $2 AND status = 'pending'
	`

	payout, err := scanPrizePayout(r.pool.QueryRow(ctx, query, userID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending prize: %w", err)
	}
	return payout, nil
}
