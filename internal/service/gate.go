package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/lightning"
	"asteroid-arcade/internal/model"
	"asteroid-arcade/internal/pkg/lock"
)

// Gate errors.
var (
	// ErrInvoiceUnavailable is returned when the provider accepted an
	// invoice request but the invoice string never materialized within
	// the polling budget.
	ErrInvoiceUnavailable = errors.New("invoice did not materialize in time")

	// ErrNotPaymentOwner is returned when a payment belongs to a
	// different user.
	ErrNotPaymentOwner = errors.New("payment belongs to another user")
)

// PaymentLedger is the entry-fee persistence surface the gate needs.
type PaymentLedger interface {
	CreateGamePayment(ctx context.Context, userID int64, paymentID, invoice string, amountSats int64) (*model.GamePayment, error)
	GetPaymentByID(ctx context.Context, paymentID string) (*model.GamePayment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID, status string) (*model.GamePayment, error)
	PendingPaymentForUser(ctx context.Context, userID int64) (*model.GamePayment, error)
	HasValidPayment(ctx context.Context, userID int64) (bool, error)
}

// Gateway is the Lightning provider surface the gate needs.
type Gateway interface {
	CreateInvoice(ctx context.Context, amountSats int64, description string) (string, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*lightning.Payment, error)
	GetPaymentInvoice(ctx context.Context, paymentID string) (string, error)
}

// StartOutcome is the gate's decision for a start-session request:
// either a session was granted with a fresh config, or a payment is
// required and the invoice to settle is attached.
type StartOutcome struct {
	Granted bool
	Config  *GameConfigResponse
	Payment *model.GamePayment
}

// PaymentStatusResult is the reconciled view of one entry-fee payment.
type PaymentStatusResult struct {
	Status    string
	PaymentID string
	// Note carries a degraded-mode explanation when the provider could
	// not be reached and the local status is being re-presented.
	Note string
}

// SessionGate decides whether a user may start a session now or owes an
// entry fee first.
type SessionGate struct {
	ledger   PaymentLedger
	gateway  Gateway
	game     *GameService
	userLock *lock.UserLock

	entryFeeSats int64

	// Invoice materialization polling budget.
	invoiceAttempts int
	invoiceInterval time.Duration

	// lockWait bounds how long a request waits for the user's lock
	// behind a concurrent request (which may itself be polling the
	// provider for an invoice).
	lockWait time.Duration
}

// NewSessionGate creates a new SessionGate instance.
func NewSessionGate(ledger PaymentLedger, gateway Gateway, game *GameService, userLock *lock.UserLock, entryFeeSats int64) *SessionGate {
	return &SessionGate{
		ledger:          ledger,
		gateway:         gateway,
		game:            game,
		userLock:        userLock,
		entryFeeSats:    entryFeeSats,
		invoiceAttempts: 10,
		invoiceInterval: 5 * time.Second,
		lockWait:        30 * time.Second,
	}
}

// StartSession runs the gate decision for a user:
//  1. a paid entry fee within the trailing hour grants a session;
//  2. an existing pending payment is re-checked against the provider and
//     either granted, re-presented, or replaced after failure;
//  3. otherwise a fresh invoice is created, polled into existence, and
//     persisted as the user's pending payment.
//
// The user's lock is held across the whole sequence so concurrent
// requests cannot both issue an invoice. Waiting for the lock is
// bounded by the request context and lockWait; a request that cannot
// acquire it gets lock.ErrLockTimeout.
func (g *SessionGate) StartSession(ctx context.Context, userID int64) (*StartOutcome, error) {
	var outcome *StartOutcome
	err := g.userLock.WithLockContext(ctx, userID, g.lockWait, func() error {
		var err error
		outcome, err = g.startSessionLocked(ctx, userID)
		return err
	})
	return outcome, err
}

func (g *SessionGate) startSessionLocked(ctx context.Context, userID int64) (*StartOutcome, error) {
	valid, err := g.ledger.HasValidPayment(ctx, userID)
	if err != nil {
		return nil, err
	}
	if valid {
		config, err := g.game.NewSession(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &StartOutcome{Granted: true, Config: config}, nil
	}

	pending, err := g.ledger.PendingPaymentForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		outcome, handled, err := g.resolvePending(ctx, userID, pending)
		if err != nil {
			return nil, err
		}
		if handled {
			return outcome, nil
		}
		// The pending payment failed provider-side; fall through and
		// issue a fresh invoice.
	}

	return g.issueInvoice(ctx, userID)
}

// resolvePending re-checks a pending payment with the provider. handled
// is false only when the payment failed and a fresh invoice is needed.
func (g *SessionGate) resolvePending(ctx context.Context, userID int64, pending *model.GamePayment) (*StartOutcome, bool, error) {
	payment, err := g.gateway.GetPaymentStatus(ctx, pending.PaymentID)
	if err != nil {
		// Provider ambiguity degrades to re-presenting the known local
		// state; the client can retry the status check later.
		log.Warn().Str("payment_id", pending.PaymentID).Err(err).
			Msg("Could not verify pending payment with provider, re-presenting invoice")
		return &StartOutcome{Payment: pending}, true, nil
	}

	status := ""
	if payment != nil {
		status = payment.Status
	}

	switch status {
	case lightning.StatusCompleted:
		if _, err := g.ledger.UpdatePaymentStatus(ctx, pending.PaymentID, model.StatusPaid); err != nil {
			return nil, false, err
		}
		config, err := g.game.NewSession(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return &StartOutcome{Granted: true, Config: config}, true, nil

	case lightning.StatusFailed:
		if _, err := g.ledger.UpdatePaymentStatus(ctx, pending.PaymentID, model.StatusFailed); err != nil {
			return nil, false, err
		}
		return nil, false, nil

	default:
		// Still pending (or not materialized provider-side yet):
		// idempotent re-presentation, no new charge.
		return &StartOutcome{Payment: pending}, true, nil
	}
}

// issueInvoice creates a provider invoice, polls for the bolt11 string
// to materialize, and persists the pending payment.
func (g *SessionGate) issueInvoice(ctx context.Context, userID int64) (*StartOutcome, error) {
	paymentID, err := g.gateway.CreateInvoice(ctx, g.entryFeeSats, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	invoice, err := g.pollInvoice(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	payment, err := g.ledger.CreateGamePayment(ctx, userID, paymentID, invoice, g.entryFeeSats)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Str("payment_id", paymentID).Msg("Entry-fee invoice issued")
	return &StartOutcome{Payment: payment}, nil
}

// pollInvoice waits for the provider to materialize the invoice string,
// retrying through transient errors up to the polling budget.
func (g *SessionGate) pollInvoice(ctx context.Context, paymentID string) (string, error) {
	for attempt := 1; attempt <= g.invoiceAttempts; attempt++ {
		invoice, err := g.gateway.GetPaymentInvoice(ctx, paymentID)
		if err != nil {
			log.Warn().Str("payment_id", paymentID).Int("attempt", attempt).Err(err).
				Msg("Invoice lookup failed, will retry")
		} else if invoice != "" {
			return invoice, nil
		}

		if attempt < g.invoiceAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.invoiceInterval):
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvoiceUnavailable, paymentID)
}

// PaymentStatus reconciles one payment against the provider. A local
// "paid" short-circuits; provider `completed`/`failed` transition the
// ledger; provider errors degrade to the last known local status.
func (g *SessionGate) PaymentStatus(ctx context.Context, userID int64, paymentID string) (*PaymentStatusResult, error) {
	payment, err := g.ledger.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotPaymentOwner
	}

	if payment.Status == model.StatusPaid {
		return &PaymentStatusResult{Status: model.StatusPaid, PaymentID: paymentID}, nil
	}

	view, err := g.gateway.GetPaymentStatus(ctx, paymentID)
	if err != nil {
		log.Error().Str("payment_id", paymentID).Err(err).Msg("Error checking payment status with provider")
		return &PaymentStatusResult{
			Status:    payment.Status,
			PaymentID: paymentID,
			Note:      "Could not verify payment status with payment provider.",
		}, nil
	}
	if view == nil {
		return &PaymentStatusResult{
			Status:    model.StatusPending,
			PaymentID: paymentID,
			Note:      "Payment not found in Lightning API yet",
		}, nil
	}

	switch view.Status {
	case lightning.StatusCompleted:
		if _, err := g.ledger.UpdatePaymentStatus(ctx, paymentID, model.StatusPaid); err != nil {
			log.Error().Str("payment_id", paymentID).Err(err).Msg("Failed to update payment status")
		}
		return &PaymentStatusResult{Status: model.StatusPaid, PaymentID: paymentID}, nil
	case lightning.StatusFailed:
		if _, err := g.ledger.UpdatePaymentStatus(ctx, paymentID, model.StatusFailed); err != nil {
			log.Error().Str("payment_id", paymentID).Err(err).Msg("Failed to update payment status")
		}
		return &PaymentStatusResult{Status: model.StatusFailed, PaymentID: paymentID}, nil
	default:
		return &PaymentStatusResult{Status: model.StatusPending, PaymentID: paymentID}, nil
	}
}
