package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/service"
)

// requireAuth is middleware that checks for a valid bearer token. The user
// is reloaded on every request so deleted accounts lose access at once.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "TokenMissing"))
			return
		}

		claims, err := h.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			slog.Debug("rejected token", "error", err)
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "TokenInvalid"))
			return
		}

		user, err := h.svc.GetUser(claims.Subject)
		if err != nil {
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "TokenInvalid"))
			return
		}

		ctx := model.ContextWithUser(r.Context(), &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has the given role.
// msgID names the localized message sent on refusal.
func requireRole(role model.UserRole, msgID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "TokenMissing"))
				return
			}
			if user.Role != role {
				writeError(w, http.StatusForbidden, appI18n.T(r.Context(), msgID))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.NewUser
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.svc.Signup(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, appI18n.T(r.Context(), "UserCreated"), map[string]any{"user": user})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := h.svc.Authenticate(r.Context(), in.Username, in.Password)
	if errors.Is(err, model.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "InvalidCredentials"))
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("user logged in", "username", user.Username)
	writeOK(w, http.StatusOK, appI18n.T(r.Context(), "LoginSucceeded"), map[string]any{
		"token":     token,
		"expiresIn": int(h.tokens.TTL().Seconds()),
		"user":      user,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "", map[string]any{"user": model.UserFromContext(r.Context())})
}
