package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/repository"
)

type registerRequest struct {
	Username string `json:"username"`
}

// userInfoResponse carries the profile plus a freshly minted client
// session token. The token is not a game session; game sessions are
// created when a game starts.
type userInfoResponse struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Pubkey    string `json:"pubkey"`
}

func newUserInfoResponse(username, pubkey string) userInfoResponse {
	return userInfoResponse{
		SessionID: "session_" + uuid.Must(uuid.NewV7()).String(),
		Username:  username,
		Pubkey:    pubkey,
	}
}

// Login returns the profile for the verified pubkey, creating an
// account with a derived username on first contact.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	pubkey := pubkeyFrom(r.Context())

	user, created, err := h.users.GetOrCreate(r.Context(), pubkey)
	if err != nil {
		log.Error().Err(err).Msg("Login failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if created {
		log.Info().Str("username", user.Username).Msg("Auto-created user on login")
	}
	writeJSON(w, http.StatusOK, newUserInfoResponse(user.Username, pubkey))
}

// Register creates a user for the verified pubkey, optionally with a
// chosen username. Registering an existing pubkey is a conflict.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	pubkey := pubkeyFrom(r.Context())

	var req registerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	user, err := h.users.Register(r.Context(), pubkey, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		log.Error().Err(err).Msg("Registration failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, newUserInfoResponse(user.Username, pubkey))
}
