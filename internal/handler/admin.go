package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/llm"
	"github.com/pavelanni/examhall/internal/llm/prompts"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/service"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "", map[string]any{"users": h.svc.ListUsers()})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.NewUser
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.svc.CreateUser(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, appI18n.T(r.Context(), "UserCreated"), map[string]any{"user": user})
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var upd service.UserUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	user, err := h.svc.UpdateUser(r.Context(), chi.URLParam(r, "username"), upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appI18n.T(r.Context(), "UserUpdated"), map[string]any{"user": user})
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	affected, err := h.svc.DeleteUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appI18n.Tp(r.Context(), "UserDeleted", affected), map[string]any{"resultsAffected": affected})
}

func questionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		return 0, model.Invalid("invalid question ID")
	}
	return id, nil
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "", map[string]any{"questions": h.svc.ListQuestions()})
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := questionID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q, err := h.svc.GetQuestion(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", map[string]any{"question": q})
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in model.QuestionImport
	if !decodeJSON(w, r, &in) {
		return
	}
	q, err := h.svc.CreateQuestion(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, appI18n.T(r.Context(), "QuestionCreated"), map[string]any{"question": q})
}

func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	var in []model.QuestionImport
	if !decodeJSON(w, r, &in) {
		return
	}
	created, err := h.svc.ImportQuestions(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, appI18n.Tp(r.Context(), "QuestionsImported", len(created)), map[string]any{
		"questions": created,
		"count":     len(created),
	})
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := questionID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in model.QuestionImport
	if !decodeJSON(w, r, &in) {
		return
	}
	q, err := h.svc.UpdateQuestion(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appI18n.T(r.Context(), "QuestionUpdated"), map[string]any{"question": q})
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := questionID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.svc.DeleteQuestion(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appI18n.T(r.Context(), "QuestionDeleted"), nil)
}

type draftInput struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Options    int    `json:"options"`
}

// handleDraftQuestion returns an LLM-drafted question for the admin to review.
// Nothing is stored.
func (h *Handler) handleDraftQuestion(w http.ResponseWriter, r *http.Request) {
	if h.drafter == nil {
		writeError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "DraftingDisabled"))
		return
	}
	var in draftInput
	if !decodeJSON(w, r, &in) {
		return
	}
	difficulty, err := prompts.ParseDifficulty(in.Difficulty)
	if err != nil {
		writeServiceError(w, r, model.Invalid("%v", err))
		return
	}

	existing := h.svc.ListQuestions()
	avoid := make([]string, len(existing))
	for i, q := range existing {
		avoid[i] = q.Text
	}

	draft, err := h.drafter.DraftQuestion(r.Context(), llm.DraftRequest{
		Topic:      in.Topic,
		Difficulty: difficulty,
		Options:    in.Options,
		Avoid:      avoid,
	})
	if errors.Is(err, model.ErrValidation) {
		writeServiceError(w, r, err)
		return
	}
	if err == nil {
		draft, err = service.ValidateQuestion(draft)
	}
	if err != nil {
		slog.Error("question drafting failed", "topic", in.Topic, "error", err)
		writeError(w, http.StatusBadGateway, appI18n.T(r.Context(), "DraftingFailed"))
		return
	}
	writeOK(w, http.StatusOK, appI18n.T(r.Context(), "QuestionDrafted"), map[string]any{"draft": draft})
}

func (h *Handler) handleAdminListExams(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "", map[string]any{"exams": h.svc.ListExams()})
}

func (h *Handler) handleAdminGetExam(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetExam(chi.URLParam(r, "examID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", map[string]any{"exam": e})
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var in service.ExamInput
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := h.svc.CreateExam(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, appI18n.T(r.Context(), "ExamCreated"), map[string]any{"exam": e})
}

func (h *Handler) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	var in service.ExamInput
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := h.svc.UpdateExam(r.Context(), chi.URLParam(r, "examID"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appI18n.T(r.Context(), "ExamUpdated"), map[string]any{"exam": e})
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteExam(r.Context(), chi.URLParam(r, "examID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, appI18n.T(r.Context(), "ExamDeleted"), nil)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Analytics()
	writeOK(w, http.StatusOK, "", map[string]any{
		"overview":       report.Overview,
		"topStudents":    report.TopStudents,
		"examStatistics": report.ExamStatistics,
	})
}
