package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/lightning"
	"asteroid-arcade/internal/model"
)

// Prize errors.
var (
	// ErrInvalidInvoice is returned for invoices that are not bolt11
	// mainnet payment requests.
	ErrInvalidInvoice = errors.New("invalid Lightning invoice")

	// ErrNotTopScorer is returned when the caller was not the date's
	// top scorer.
	ErrNotTopScorer = errors.New("not the top scorer for this date")

	// ErrNoPendingPrize is returned when no claimable payout exists.
	ErrNoPendingPrize = errors.New("no eligible prize found for this date")

	// ErrPrizeAlreadyPaid is returned when the payout has already been
	// settled.
	ErrPrizeAlreadyPaid = errors.New("prize has already been paid")

	// ErrPrizePaymentFailed is returned when the outbound payment could
	// not be completed. The payout is marked failed only when the
	// provider's failure was definitive; otherwise it stays claimable.
	ErrPrizePaymentFailed = errors.New("failed to send prize payment")
)

// PrizeLedger is the payout persistence surface the prize service needs.
type PrizeLedger interface {
	CountGamesForDate(ctx context.Context, date string) (int64, error)
	TopScorerForDate(ctx context.Context, date string) (*model.TopScorer, error)
	CheckTopScorer(ctx context.Context, userID int64, date string) (bool, error)
	CheckPrizeClaimed(ctx context.Context, userID int64, date string) (bool, error)
	RecordDailyWinner(ctx context.Context, userID int64, date string, score, amountSats int64) (*model.PrizePayout, error)
	UpdatePrizeWithInvoice(ctx context.Context, userID int64, date, invoice string) (*model.PrizePayout, error)
	UpdatePrizeStatus(ctx context.Context, id int64, status string, paymentID *string) (*model.PrizePayout, error)
	PendingPrizeForUser(ctx context.Context, userID int64, date string) (*model.PrizePayout, error)
}

// PrizeGateway is the outbound payment surface the prize service needs.
type PrizeGateway interface {
	PayWinnerInvoice(ctx context.Context, invoice string, amountMsats int64) (*lightning.Payment, error)
}

// Eligibility describes whether a user can claim yesterday's prize and
// why, mirroring what the payment UI consumes.
type Eligibility struct {
	Eligible          bool   `json:"eligible"`
	Date              string `json:"date,omitempty"`
	Amount            int64  `json:"amount,omitempty"`
	Message           string `json:"message"`
	Status            string `json:"status,omitempty"`
	HasPaymentRequest *bool  `json:"has_payment_request,omitempty"`
}

// ClaimResult is the outcome of a successful prize claim.
type ClaimResult struct {
	PaymentID string
	Amount    int64
}

// PrizeService handles daily prize eligibility and claims.
type PrizeService struct {
	ledger          PrizeLedger
	gateway         PrizeGateway
	winnerShareSats int64

	// now is swappable in tests.
	now func() time.Time
}

// NewPrizeService creates a new PrizeService instance. winnerShareSats
// is the per-game slice of the entry fee that funds the pool.
func NewPrizeService(ledger PrizeLedger, gateway PrizeGateway, winnerShareSats int64) *PrizeService {
	return &PrizeService{
		ledger:          ledger,
		gateway:         gateway,
		winnerShareSats: winnerShareSats,
		now:             time.Now,
	}
}

// Yesterday returns the previous UTC calendar day.
func (s *PrizeService) Yesterday() string {
	return s.now().UTC().AddDate(0, 0, -1).Format(model.DateFormat)
}

// CheckEligibility evaluates whether the user can claim yesterday's
// prize. When eligible for an unclaimed prize, the winner row is
// recorded eagerly so a concurrent settlement run cannot double-create
// it.
func (s *PrizeService) CheckEligibility(ctx context.Context, userID int64) (*Eligibility, error) {
	yesterday := s.Yesterday()

	wasTop, err := s.ledger.CheckTopScorer(ctx, userID, yesterday)
	if err != nil {
		return nil, err
	}
	if !wasTop {
		return &Eligibility{
			Eligible: false,
			Message:  "You were not the top scorer for yesterday's games",
		}, nil
	}

	claimed, err := s.ledger.CheckPrizeClaimed(ctx, userID, yesterday)
	if err != nil {
		return nil, err
	}
	if claimed {
		prize, err := s.ledger.PendingPrizeForUser(ctx, userID, yesterday)
		if err != nil {
			return nil, err
		}
		if prize == nil {
			return &Eligibility{
				Eligible: false,
				Message:  "You have already claimed your prize for yesterday",
			}, nil
		}

		hasInvoice := prize.PaymentRequest != nil
		return &Eligibility{
			Eligible:          true,
			Date:              yesterday,
			Amount:            prize.AmountSats,
			Message:           "You can claim your prize by submitting a Lightning invoice",
			Status:            model.StatusPending,
			HasPaymentRequest: &hasInvoice,
		}, nil
	}

	totalGames, err := s.ledger.CountGamesForDate(ctx, yesterday)
	if err != nil {
		return nil, err
	}

	prizeAmount := totalGames * s.winnerShareSats
	if prizeAmount <= 0 {
		return &Eligibility{
			Eligible: false,
			Message:  "No prize pool available for yesterday",
		}, nil
	}

	// The winning score is filled in by the settlement job; recording
	// here only reserves the (user, date) slot.
	if _, err := s.ledger.RecordDailyWinner(ctx, userID, yesterday, 0, prizeAmount); err != nil {
		log.Error().Int64("user_id", userID).Str("date", yesterday).Err(err).
			Msg("Failed to record daily winner, it might already be recorded")
	}

	return &Eligibility{
		Eligible: true,
		Date:     yesterday,
		Amount:   prizeAmount,
		Message:  "You can claim your prize by submitting a Lightning invoice",
	}, nil
}

// Claim pays the prize for (user, date) to the submitted invoice. The
// payout transitions to "paid" on success and "failed" when the outbound
// payment definitively does not settle.
func (s *PrizeService) Claim(ctx context.Context, userID int64, invoice, date string) (*ClaimResult, error) {
	if !strings.HasPrefix(invoice, "lnbc") {
		return nil, ErrInvalidInvoice
	}

	wasTop, err := s.ledger.CheckTopScorer(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if !wasTop {
		return nil, ErrNotTopScorer
	}

	prize, err := s.ledger.PendingPrizeForUser(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if prize == nil {
		return nil, ErrNoPendingPrize
	}
	if prize.Status == model.StatusPaid {
		return nil, ErrPrizeAlreadyPaid
	}

	updated, err := s.ledger.UpdatePrizeWithInvoice(ctx, userID, date, invoice)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrNoPendingPrize
	}

	result, err := s.gateway.PayWinnerInvoice(ctx, invoice, updated.AmountSats*1000)
	if err != nil {
		log.Error().Int64("user_id", userID).Str("date", date).Err(err).Msg("Failed to send prize payment")

		// Only a definitive payment failure settles the payout as
		// failed. An ambiguous provider error leaves it pending so the
		// winner can claim again, with a new invoice if needed.
		if lightning.IsTerminal(err) {
			if _, updateErr := s.ledger.UpdatePrizeStatus(ctx, updated.ID, model.StatusFailed, nil); updateErr != nil {
				log.Error().Int64("payout_id", updated.ID).Err(updateErr).
					Msg("Failed to update prize status after payment failure")
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrPrizePaymentFailed, err)
	}

	paymentID := result.ID
	if _, err := s.ledger.UpdatePrizeStatus(ctx, updated.ID, model.StatusPaid, &paymentID); err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Int64("amount_sats", updated.AmountSats).
		Msg("Prize payment successful")

	return &ClaimResult{PaymentID: paymentID, Amount: updated.AmountSats}, nil
}
