// Package settlement runs the unattended daily prize settlement job.
package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/model"
)

// Ledger is the aggregate surface the settlement job reads and writes.
type Ledger interface {
	TopScorerForDate(ctx context.Context, date string) (*model.TopScorer, error)
	CountGamesForDate(ctx context.Context, date string) (int64, error)
	RecordDailyWinner(ctx context.Context, userID int64, date string, score, amountSats int64) (*model.PrizePayout, error)
}

// Worker settles yesterday's prize once per UTC day. It ticks hourly but
// only acts inside a fixed ten-minute window after midnight, so process
// restarts cannot double-process: RecordDailyWinner is insert-or-ignore
// on (user, date) and every step is safe to repeat.
type Worker struct {
	ledger          Ledger
	interval        time.Duration
	winnerShareSats int64

	// now is swappable in tests.
	now func() time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewWorker creates a settlement worker. winnerShareSats is the
// per-game slice of the entry fee paid out to the winner.
func NewWorker(ledger Ledger, interval time.Duration, winnerShareSats int64) *Worker {
	return &Worker{
		ledger:          ledger,
		interval:        interval,
		winnerShareSats: winnerShareSats,
		now:             time.Now,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start begins the background settlement loop.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	log.Info().Dur("interval", w.interval).Msg("Settlement worker started")
	go w.run(ctx)
}

// Stop halts the loop and waits for it to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	log.Info().Msg("Settlement worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if !InWindow(w.now().UTC()) {
				continue
			}
			// Failures are logged, never fatal: the next tick retries.
			if err := w.SettleDay(ctx, yesterday(w.now().UTC())); err != nil {
				log.Error().Err(err).Msg("Daily settlement failed, will retry next tick")
			}
		}
	}
}

// InWindow reports whether t falls inside the daily settlement window,
// 00:05-00:15 UTC.
func InWindow(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() >= 5 && t.Minute() < 15
}

func yesterday(t time.Time) string {
	return t.AddDate(0, 0, -1).Format(model.DateFormat)
}

// SettleDay finds the date's top scorer, computes the prize from that
// day's paid games, and records the payable winner entry. Idempotent:
// the (user, date) uniqueness constraint makes repeated runs no-ops.
func (w *Worker) SettleDay(ctx context.Context, date string) error {
	log.Info().Str("date", date).Msg("Running daily settlement")

	scorer, err := w.ledger.TopScorerForDate(ctx, date)
	if err != nil {
		return err
	}
	if scorer == nil {
		log.Info().Str("date", date).Msg("No scores found, no winner to announce")
		return nil
	}

	gamesCount, err := w.ledger.CountGamesForDate(ctx, date)
	if err != nil {
		return err
	}
	if gamesCount == 0 {
		log.Info().Str("date", date).Msg("No paid games found, no prize to award")
		return nil
	}

	prizeAmount := gamesCount * w.winnerShareSats

	if _, err := w.ledger.RecordDailyWinner(ctx, scorer.UserID, date, scorer.Score, prizeAmount); err != nil {
		return err
	}

	log.Info().
		Str("date", date).
		Int64("user_id", scorer.UserID).
		Int64("score", scorer.Score).
		Int64("prize_sats", prizeAmount).
		Msg("Recorded daily winner")
	return nil
}
