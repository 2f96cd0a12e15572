package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/model"
	"asteroid-arcade/internal/repository"
)

type contextKey string

const (
	pubkeyKey contextKey = "pubkey"
	userKey   contextKey = "user"
)

// RequirePubkey rejects requests without a verified identity.
func (h *Handler) RequirePubkey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pubkey, err := h.verifier.Verify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), pubkeyKey, pubkey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser resolves the verified pubkey to a registered user. A
// pubkey that never registered gets 401, pointing it at /users/register.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pubkey := pubkeyFrom(r.Context())
		user, err := h.users.FindByPubkey(r.Context(), pubkey)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				writeError(w, http.StatusUnauthorized, "user not registered")
				return
			}
			log.Error().Err(err).Msg("Failed to resolve user")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func pubkeyFrom(ctx context.Context) string {
	pubkey, _ := ctx.Value(pubkeyKey).(string)
	return pubkey
}

func userFrom(ctx context.Context) *model.User {
	user, _ := ctx.Value(userKey).(*model.User)
	return user
}
