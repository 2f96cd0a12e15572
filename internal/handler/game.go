package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/pkg/lock"
	"asteroid-arcade/internal/service"
)

const defaultLeaderboardSize = 10

// GameConfig returns a refreshed config for an existing session.
func (h *Handler) GameConfig(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	cfg, err := h.game.ConfigForSession(r.Context(), user.ID, sessionID)
	if err != nil {
		switch {
		case service.IsNotFound(err):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, service.ErrNotSessionOwner):
			writeError(w, http.StatusForbidden, "session belongs to another user")
		default:
			log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to refresh game config")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// paymentRequiredResponse carries everything the client needs to keep
// polling the same pending payment without re-deriving state.
type paymentRequiredResponse struct {
	PaymentRequired bool      `json:"payment_required"`
	PaymentID       string    `json:"payment_id"`
	Invoice         string    `json:"invoice"`
	AmountSats      int64     `json:"amount_sats"`
	CreatedAt       time.Time `json:"created_at"`
}

// StartSession either grants a session (201 with config) or demands an
// entry fee (402 with the invoice to settle).
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	outcome, err := h.gate.StartSession(r.Context(), user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvoiceUnavailable):
			writeError(w, http.StatusInternalServerError, "failed to obtain payment invoice")
		case errors.Is(err, lock.ErrLockTimeout):
			writeError(w, http.StatusServiceUnavailable, "another session request for this user is in progress")
		default:
			log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to start session")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if outcome.Granted {
		writeJSON(w, http.StatusCreated, outcome.Config)
		return
	}
	writeJSON(w, http.StatusPaymentRequired, paymentRequiredResponse{
		PaymentRequired: true,
		PaymentID:       outcome.Payment.PaymentID,
		Invoice:         outcome.Payment.Invoice,
		AmountSats:      outcome.Payment.AmountSats,
		CreatedAt:       outcome.Payment.CreatedAt,
	})
}

type submitScoreRequest struct {
	Score     int64  `json:"score"`
	Level     int64  `json:"level"`
	PlayTime  int64  `json:"play_time"`
	SessionID string `json:"session_id"`
}

// SubmitScore records a finished game's result against its session.
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req submitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	score, err := h.game.SubmitScore(r.Context(), user.ID, req.SessionID, req.Score, req.Level, req.PlayTime)
	if err != nil {
		switch {
		case service.IsNotFound(err):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, service.ErrNotSessionOwner):
			writeError(w, http.StatusForbidden, "session belongs to another user")
		default:
			log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to submit score")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, score)
}

// TopScores returns the global leaderboard.
func (h *Handler) TopScores(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	scores, err := h.game.TopScores(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load top scores")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// UserScores returns the calling user's personal bests.
func (h *Handler) UserScores(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	scores, err := h.game.UserScores(r.Context(), user.ID, defaultLeaderboardSize)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to load user scores")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}
