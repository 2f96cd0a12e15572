package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asteroid-arcade/internal/model"
)

type fakeLedger struct {
	topScorer *model.TopScorer
	topErr    error
	games     int64
	gamesErr  error

	recorded []recordedWinner
}

type recordedWinner struct {
	userID int64
	date   string
	score  int64
	amount int64
}

func (f *fakeLedger) TopScorerForDate(context.Context, string) (*model.TopScorer, error) {
	return f.topScorer, f.topErr
}

func (f *fakeLedger) CountGamesForDate(context.Context, string) (int64, error) {
	return f.games, f.gamesErr
}

func (f *fakeLedger) RecordDailyWinner(_ context.Context, userID int64, date string, score, amountSats int64) (*model.PrizePayout, error) {
	f.recorded = append(f.recorded, recordedWinner{userID, date, score, amountSats})
	return &model.PrizePayout{UserID: userID, Date: date, Score: score, AmountSats: amountSats}, nil
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"midnight exactly", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), false},
		{"window opens", time.Date(2025, 6, 2, 0, 5, 0, 0, time.UTC), true},
		{"inside window", time.Date(2025, 6, 2, 0, 10, 30, 0, time.UTC), true},
		{"last minute", time.Date(2025, 6, 2, 0, 14, 59, 0, time.UTC), true},
		{"window closed", time.Date(2025, 6, 2, 0, 15, 0, 0, time.UTC), false},
		{"wrong hour", time.Date(2025, 6, 2, 1, 10, 0, 0, time.UTC), false},
		{"noon", time.Date(2025, 6, 2, 12, 10, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InWindow(tt.at))
		})
	}
}

func TestWorker_SettleDay(t *testing.T) {
	ctx := context.Background()

	t.Run("records winner with prize from game count", func(t *testing.T) {
		ledger := &fakeLedger{
			topScorer: &model.TopScorer{UserID: 42, Score: 500, Username: "alice"},
			games:     3,
		}
		w := NewWorker(ledger, time.Hour, 450)

		require.NoError(t, w.SettleDay(ctx, "2025-06-01"))
		require.Len(t, ledger.recorded, 1)
		assert.Equal(t, recordedWinner{userID: 42, date: "2025-06-01", score: 500, amount: 1350}, ledger.recorded[0])
	})

	t.Run("no scores means nothing to settle", func(t *testing.T) {
		ledger := &fakeLedger{topScorer: nil}
		w := NewWorker(ledger, time.Hour, 450)

		require.NoError(t, w.SettleDay(ctx, "2025-06-01"))
		assert.Empty(t, ledger.recorded)
	})

	t.Run("no paid games means no prize", func(t *testing.T) {
		ledger := &fakeLedger{
			topScorer: &model.TopScorer{UserID: 42, Score: 500},
			games:     0,
		}
		w := NewWorker(ledger, time.Hour, 450)

		require.NoError(t, w.SettleDay(ctx, "2025-06-01"))
		assert.Empty(t, ledger.recorded)
	})

	t.Run("ledger errors surface to the loop", func(t *testing.T) {
		ledger := &fakeLedger{topErr: errors.New("database down")}
		w := NewWorker(ledger, time.Hour, 450)

		assert.Error(t, w.SettleDay(ctx, "2025-06-01"))
	})
}

func TestWorker_RunsInsideWindow(t *testing.T) {
	ledger := &fakeLedger{
		topScorer: &model.TopScorer{UserID: 42, Score: 500},
		games:     2,
	}

	w := NewWorker(ledger, 5*time.Millisecond, 450)
	w.now = func() time.Time { return time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC) }

	w.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	w.Stop()

	// Every tick inside the window settles; RecordDailyWinner absorbs
	// the repeats.
	require.NotEmpty(t, ledger.recorded)
	assert.Equal(t, "2025-06-01", ledger.recorded[0].date)
	assert.Equal(t, int64(900), ledger.recorded[0].amount)
}

func TestWorker_SkipsOutsideWindow(t *testing.T) {
	ledger := &fakeLedger{
		topScorer: &model.TopScorer{UserID: 42, Score: 500},
		games:     2,
	}

	w := NewWorker(ledger, 5*time.Millisecond, 450)
	w.now = func() time.Time { return time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC) }

	w.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	w.Stop()

	assert.Empty(t, ledger.recorded)
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w := NewWorker(&fakeLedger{}, time.Hour, 450)
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}
