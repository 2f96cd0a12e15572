package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/repository"
	"asteroid-arcade/internal/service"
)

type paymentStatusResponse struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
	Note      string `json:"note,omitempty"`
}

// PaymentStatus reconciles one entry-fee payment against the provider
// and reports its current status.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	paymentID := chi.URLParam(r, "paymentID")

	result, err := h.gate.PaymentStatus(r.Context(), user.ID, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
			writeError(w, http.StatusNotFound, "payment not found")
		case errors.Is(err, service.ErrNotPaymentOwner):
			writeError(w, http.StatusForbidden, "payment belongs to another user")
		default:
			log.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to check payment status")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusResponse{
		Status:    result.Status,
		PaymentID: result.PaymentID,
		Note:      result.Note,
	})
}

// PrizeEligibility reports whether the caller won yesterday's prize and
// whether a claim is still open.
func (h *Handler) PrizeEligibility(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	elig, err := h.prize.CheckEligibility(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to check prize eligibility")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, elig)
}

type claimPrizeRequest struct {
	Invoice string `json:"invoice"`
	Date    string `json:"date"`
}

type claimPrizeResponse struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

// ClaimPrize pays the winner's invoice for a settled day.
func (h *Handler) ClaimPrize(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req claimPrizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	date := req.Date
	if date == "" {
		date = h.prize.Yesterday()
	}

	result, err := h.prize.Claim(r.Context(), user.ID, req.Invoice, date)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInvoice), errors.Is(err, repository.ErrInvalidDate):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotTopScorer), errors.Is(err, service.ErrPrizeAlreadyPaid):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, service.ErrNoPendingPrize):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			log.Error().Err(err).Int64("user_id", user.ID).Str("date", date).Msg("Prize claim failed")
			writeError(w, http.StatusInternalServerError, "failed to send prize payment")
		}
		return
	}
	writeJSON(w, http.StatusOK, claimPrizeResponse{
		Success:   true,
		PaymentID: result.PaymentID,
		Amount:    result.Amount,
	})
}
