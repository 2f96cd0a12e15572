// Package handler wires the HTTP surface of the arcade server.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/auth"
	"asteroid-arcade/internal/model"
	"asteroid-arcade/internal/service"
)

// UserStore is the subset of user storage the HTTP layer needs.
type UserStore interface {
	FindByPubkey(ctx context.Context, pubkey string) (*model.User, error)
	GetOrCreate(ctx context.Context, pubkey string) (*model.User, bool, error)
	Register(ctx context.Context, pubkey, username string) (*model.User, error)
}

// Pinger reports liveness of a backing store.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds the services behind the HTTP routes.
type Handler struct {
	verifier auth.Verifier
	users    UserStore
	game     *service.GameService
	gate     *service.SessionGate
	prize    *service.PrizeService
	db       Pinger
}

// NewHandler creates the HTTP handler set.
func NewHandler(verifier auth.Verifier, users UserStore, game *service.GameService, gate *service.SessionGate, prize *service.PrizeService, db Pinger) *Handler {
	return &Handler{
		verifier: verifier,
		users:    users,
		game:     game,
		gate:     gate,
		prize:    prize,
		db:       db,
	}
}

// Router builds the chi router with all routes mounted under /api/v1.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health_check", h.HealthCheck)

		r.Group(func(r chi.Router) {
			r.Use(h.RequirePubkey)
			r.Post("/users/login", h.Login)
			r.Post("/users/register", h.Register)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.RequirePubkey)
			r.Use(h.RequireUser)

			r.Get("/game/config", h.GameConfig)
			r.Post("/game/session", h.StartSession)
			r.Post("/game/score", h.SubmitScore)
			r.Get("/game/scores/top", h.TopScores)
			r.Get("/game/scores/user", h.UserScores)

			r.Get("/payments/prize/eligibility", h.PrizeEligibility)
			r.Post("/payments/prize/claim", h.ClaimPrize)
			r.Get("/payments/{paymentID}", h.PaymentStatus)
		})
	})

	return r
}

// HealthCheck pings the backing stores.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response body")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
