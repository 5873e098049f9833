package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examhall/internal/auth"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/llm"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/service"
)

const maxBodyBytes = 1 << 20

// Drafter generates question drafts. It is nil when drafting is disabled.
type Drafter interface {
	DraftQuestion(ctx context.Context, req llm.DraftRequest) (model.QuestionImport, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc     *service.Service
	tokens  *auth.Tokens
	drafter Drafter
	config  model.ServerConfig
}

// New creates a new Handler. drafter may be nil.
func New(svc *service.Service, tokens *auth.Tokens, drafter Drafter, cfg model.ServerConfig) *Handler {
	return &Handler{svc: svc, tokens: tokens, drafter: drafter, config: cfg}
}

// Mount registers the routes on r, under the configured base path if any.
func (h *Handler) Mount(r chi.Router) {
	if h.config.BasePath == "" {
		h.Routes(r)
		return
	}
	r.Route(h.config.BasePath, h.Routes)
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.With(appI18n.Middleware).Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(appI18n.Middleware)

		r.Post("/auth/signup", h.handleSignup)
		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/auth/me", h.handleMe)
			r.Get("/exams", h.handleListExams)
			r.Get("/exams/{examID}", h.handleGetExam)
			r.With(requireRole(model.UserRoleStudent, "StudentRequired")).
				Post("/exams/{examID}/submit", h.handleSubmit)
			r.Get("/results", h.handleListResults)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin, "AdminRequired"))

				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Put("/users/{username}", h.handleUpdateUser)
				r.Delete("/users/{username}", h.handleDeleteUser)

				r.Get("/questions", h.handleListQuestions)
				r.Post("/questions", h.handleCreateQuestion)
				r.Post("/questions/import", h.handleImportQuestions)
				r.Post("/questions/draft", h.handleDraftQuestion)
				r.Get("/questions/{questionID}", h.handleGetQuestion)
				r.Put("/questions/{questionID}", h.handleUpdateQuestion)
				r.Delete("/questions/{questionID}", h.handleDeleteQuestion)

				r.Get("/exams", h.handleAdminListExams)
				r.Post("/exams", h.handleCreateExam)
				r.Get("/exams/{examID}", h.handleAdminGetExam)
				r.Put("/exams/{examID}", h.handleUpdateExam)
				r.Delete("/exams/{examID}", h.handleDeleteExam)

				r.Get("/analytics", h.handleAnalytics)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, appI18n.T(r.Context(), "Healthy"), map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeOK writes a success envelope. fields are merged into the top level.
func writeOK(w http.ResponseWriter, statusCode int, message string, fields map[string]any) {
	body := map[string]any{"success": true}
	if message != "" {
		body["message"] = message
	}
	maps.Copy(body, fields)
	writeJSON(w, statusCode, body)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{"success": false, "message": message})
}

// writeServiceError maps an error class to a status code and a localized message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, model.ErrLengthMismatch):
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "AnswerCountMismatch"))
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "UsernameTaken"))
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "ValidationFailed", map[string]any{"Reason": reason(err)}))
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, appI18n.T(ctx, "NotFound"))
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, appI18n.T(ctx, "TokenInvalid"))
	case errors.Is(err, model.ErrForbidden):
		writeError(w, http.StatusForbidden, appI18n.T(ctx, "Forbidden"))
	case errors.Is(err, model.ErrInactive):
		writeError(w, http.StatusConflict, appI18n.T(ctx, "ExamInactive"))
	case errors.Is(err, model.ErrOutsideWindow):
		writeError(w, http.StatusConflict, appI18n.T(ctx, "ExamOutsideWindow"))
	case errors.Is(err, model.ErrState):
		writeError(w, http.StatusConflict, appI18n.T(ctx, "ExamNotOpen"))
	case errors.Is(err, model.ErrPersistence):
		slog.Error("request failed to persist", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "StorageFailed"))
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
	}
}

// reason strips the error class suffix so only the specific cause is shown.
func reason(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+model.ErrValidation.Error())
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		slog.Debug("invalid request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequestBody"))
		return false
	}
	return true
}
