package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asteroid-arcade/internal/lightning"
	"asteroid-arcade/internal/model"
)

// fakePrizeLedger scripts the payout-side ledger answers.
type fakePrizeLedger struct {
	games     int64
	topScorer *model.TopScorer
	claimed   bool
	pending   *model.PrizePayout

	recordedWinner *model.PrizePayout
	statusUpdates  []string
}

func (f *fakePrizeLedger) CountGamesForDate(context.Context, string) (int64, error) {
	return f.games, nil
}

func (f *fakePrizeLedger) TopScorerForDate(context.Context, string) (*model.TopScorer, error) {
	return f.topScorer, nil
}

func (f *fakePrizeLedger) CheckTopScorer(_ context.Context, userID int64, _ string) (bool, error) {
	return f.topScorer != nil && f.topScorer.UserID == userID, nil
}

func (f *fakePrizeLedger) CheckPrizeClaimed(context.Context, int64, string) (bool, error) {
	return f.claimed, nil
}

func (f *fakePrizeLedger) RecordDailyWinner(_ context.Context, userID int64, date string, score, amountSats int64) (*model.PrizePayout, error) {
	f.recordedWinner = &model.PrizePayout{
		ID:         1,
		UserID:     userID,
		Date:       date,
		Score:      score,
		AmountSats: amountSats,
		Status:     model.StatusPending,
	}
	return f.recordedWinner, nil
}

func (f *fakePrizeLedger) UpdatePrizeWithInvoice(_ context.Context, _ int64, _, invoice string) (*model.PrizePayout, error) {
	if f.pending == nil || f.pending.Status != model.StatusPending {
		return nil, nil
	}
	f.pending.PaymentRequest = &invoice
	return f.pending, nil
}

func (f *fakePrizeLedger) UpdatePrizeStatus(_ context.Context, _ int64, status string, paymentID *string) (*model.PrizePayout, error) {
	f.statusUpdates = append(f.statusUpdates, status)
	if f.pending != nil {
		f.pending.Status = status
		f.pending.PaymentID = paymentID
	}
	return f.pending, nil
}

func (f *fakePrizeLedger) PendingPrizeForUser(context.Context, int64, string) (*model.PrizePayout, error) {
	return f.pending, nil
}

// fakePrizeGateway records the outbound payment it was asked to send.
type fakePrizeGateway struct {
	result     *lightning.Payment
	err        error
	gotInvoice string
	gotMsats   int64
}

func (f *fakePrizeGateway) PayWinnerInvoice(_ context.Context, invoice string, amountMsats int64) (*lightning.Payment, error) {
	f.gotInvoice = invoice
	f.gotMsats = amountMsats
	return f.result, f.err
}

func newTestPrizeService(ledger PrizeLedger, gateway PrizeGateway) *PrizeService {
	svc := NewPrizeService(ledger, gateway, 450)
	// Pin the clock so "yesterday" is stable.
	svc.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestPrizeService_Yesterday(t *testing.T) {
	svc := newTestPrizeService(&fakePrizeLedger{}, &fakePrizeGateway{})
	assert.Equal(t, "2025-06-01", svc.Yesterday())
}

func TestPrizeService_CheckEligibility(t *testing.T) {
	ctx := context.Background()

	t.Run("not top scorer", func(t *testing.T) {
		ledger := &fakePrizeLedger{topScorer: &model.TopScorer{UserID: 7}}
		svc := newTestPrizeService(ledger, &fakePrizeGateway{})

		elig, err := svc.CheckEligibility(ctx, 42)
		require.NoError(t, err)
		assert.False(t, elig.Eligible)
		assert.Contains(t, elig.Message, "not the top scorer")
	})

	t.Run("already paid out", func(t *testing.T) {
		ledger := &fakePrizeLedger{
			topScorer: &model.TopScorer{UserID: 42},
			claimed:   true,
			pending:   nil,
		}
		svc := newTestPrizeService(ledger, &fakePrizeGateway{})

		elig, err := svc.CheckEligibility(ctx, 42)
		require.NoError(t, err)
		assert.False(t, elig.Eligible)
		assert.Contains(t, elig.Message, "already claimed")
	})

	t.Run("recorded with pending invoice", func(t *testing.T) {
		invoice := "lnbc13500n1x"
		ledger := &fakePrizeLedger{
			topScorer: &model.TopScorer{UserID: 42},
			claimed:   true,
			pending: &model.PrizePayout{
				ID:             1,
				UserID:         42,
				AmountSats:     1350,
				Status:         model.StatusPending,
				PaymentRequest: &invoice,
			},
		}
		svc := newTestPrizeService(ledger, &fakePrizeGateway{})

		elig, err := svc.CheckEligibility(ctx, 42)
		require.NoError(t, err)
		assert.True(t, elig.Eligible)
		assert.Equal(t, "2025-06-01", elig.Date)
		assert.Equal(t, int64(1350), elig.Amount)
		require.NotNil(t, elig.HasPaymentRequest)
		assert.True(t, *elig.HasPaymentRequest)
	})

	t.Run("empty prize pool", func(t *testing.T) {
		ledger := &fakePrizeLedger{topScorer: &model.TopScorer{UserID: 42}, games: 0}
		svc := newTestPrizeService(ledger, &fakePrizeGateway{})

		elig, err := svc.CheckEligibility(ctx, 42)
		require.NoError(t, err)
		assert.False(t, elig.Eligible)
		assert.Contains(t, elig.Message, "No prize pool")
		assert.Nil(t, ledger.recordedWinner)
	})

	t.Run("eligible reserves winner row", func(t *testing.T) {
		ledger := &fakePrizeLedger{topScorer: &model.TopScorer{UserID: 42}, games: 3}
		svc := newTestPrizeService(ledger, &fakePrizeGateway{})

		elig, err := svc.CheckEligibility(ctx, 42)
		require.NoError(t, err)
		assert.True(t, elig.Eligible)
		assert.Equal(t, int64(1350), elig.Amount)

		require.NotNil(t, ledger.recordedWinner)
		assert.Equal(t, int64(1350), ledger.recordedWinner.AmountSats)
		assert.Equal(t, "2025-06-01", ledger.recordedWinner.Date)
	})
}

func TestPrizeService_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("invoice must be bolt11", func(t *testing.T) {
		// The prefix check runs before any eligibility lookups.
		svc := newTestPrizeService(&fakePrizeLedger{}, &fakePrizeGateway{})
		_, err := svc.Claim(ctx, 42, "lntb5u1testnet", "2025-06-01")
		assert.ErrorIs(t, err, ErrInvalidInvoice)
	})

	t.Run("not top scorer", func(t *testing.T) {
		ledger := &fakePrizeLedger{topScorer: &model.TopScorer{UserID: 7}}
		svc := newTestPrizeService(ledger, &fakePrizeGateway{})

		_, err := svc.Claim(ctx, 42, "lnbc13500n1x", "2025-06-01")
		assert.ErrorIs(t, err, ErrNotTopScorer)
	})

	t.Run("no pending prize", func(t *testing.T) {
		ledger := &fakePrizeLedger{topScorer: &model.TopScorer{UserID: 42}}
		svc := newTestPrizeService(ledger, &fakePrizeGateway{})

		_, err := svc.Claim(ctx, 42, "lnbc13500n1x", "2025-06-01")
		assert.ErrorIs(t, err, ErrNoPendingPrize)
	})

	t.Run("already paid", func(t *testing.T) {
		ledger := &fakePrizeLedger{
			topScorer: &model.TopScorer{UserID: 42},
			pending:   &model.PrizePayout{ID: 1, UserID: 42, Status: model.StatusPaid},
		}
		svc := newTestPrizeService(ledger, &fakePrizeGateway{})

		_, err := svc.Claim(ctx, 42, "lnbc13500n1x", "2025-06-01")
		assert.ErrorIs(t, err, ErrPrizeAlreadyPaid)
	})

	t.Run("successful claim", func(t *testing.T) {
		ledger := &fakePrizeLedger{
			topScorer: &model.TopScorer{UserID: 42},
			pending:   &model.PrizePayout{ID: 1, UserID: 42, AmountSats: 1350, Status: model.StatusPending},
		}
		gateway := &fakePrizeGateway{
			result: &lightning.Payment{ID: "provider-id", Status: lightning.StatusCompleted},
		}
		svc := newTestPrizeService(ledger, gateway)

		result, err := svc.Claim(ctx, 42, "lnbc13500n1x", "2025-06-01")
		require.NoError(t, err)
		assert.Equal(t, "provider-id", result.PaymentID)
		assert.Equal(t, int64(1350), result.Amount)

		// Amount converts to msats on the wire.
		assert.Equal(t, "lnbc13500n1x", gateway.gotInvoice)
		assert.Equal(t, int64(1_350_000), gateway.gotMsats)

		assert.Equal(t, []string{model.StatusPaid}, ledger.statusUpdates)
		require.NotNil(t, ledger.pending.PaymentID)
		assert.Equal(t, "provider-id", *ledger.pending.PaymentID)
	})

	t.Run("definitive payment failure marks payout failed", func(t *testing.T) {
		ledger := &fakePrizeLedger{
			topScorer: &model.TopScorer{UserID: 42},
			pending:   &model.PrizePayout{ID: 1, UserID: 42, AmountSats: 1350, Status: model.StatusPending},
		}
		gateway := &fakePrizeGateway{err: fmt.Errorf("%w: no route to destination", lightning.ErrPaymentFailed)}
		svc := newTestPrizeService(ledger, gateway)

		_, err := svc.Claim(ctx, 42, "lnbc13500n1x", "2025-06-01")
		assert.ErrorIs(t, err, ErrPrizePaymentFailed)
		assert.Equal(t, []string{model.StatusFailed}, ledger.statusUpdates)
	})

	t.Run("ambiguous provider error keeps payout claimable", func(t *testing.T) {
		ledger := &fakePrizeLedger{
			topScorer: &model.TopScorer{UserID: 42},
			pending:   &model.PrizePayout{ID: 1, UserID: 42, AmountSats: 1350, Status: model.StatusPending},
		}
		gateway := &fakePrizeGateway{err: errors.New("connection reset by peer")}
		svc := newTestPrizeService(ledger, gateway)

		_, err := svc.Claim(ctx, 42, "lnbc13500n1x", "2025-06-01")
		assert.ErrorIs(t, err, ErrPrizePaymentFailed)
		// No status transition: the payout stays pending for a retry.
		assert.Empty(t, ledger.statusUpdates)
		assert.Equal(t, model.StatusPending, ledger.pending.Status)

		// The retry can settle the same payout.
		gateway.err = nil
		gateway.result = &lightning.Payment{ID: "provider-id", Status: lightning.StatusCompleted}
		result, err := svc.Claim(ctx, 42, "lnbc13500n1x", "2025-06-01")
		require.NoError(t, err)
		assert.Equal(t, int64(1350), result.Amount)
		assert.Equal(t, []string{model.StatusPaid}, ledger.statusUpdates)
	})
}
