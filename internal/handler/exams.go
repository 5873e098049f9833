package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examhall/internal/analytics"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/service"
)

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var exams []model.Exam
	if user.Role == model.UserRoleAdmin {
		exams = h.svc.ListExams()
	} else {
		exams = h.svc.ListAvailable()
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeOK(w, http.StatusOK, "", map[string]any{"exams": exams})
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	t, err := h.svc.GetTakeable(chi.URLParam(r, "examID"), user.Role != model.UserRoleAdmin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", map[string]any{"exam": t.Exam, "questions": t.Questions})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub service.Submission
	if !decodeJSON(w, r, &sub) {
		return
	}
	user := model.UserFromContext(r.Context())
	res, err := h.svc.Submit(r.Context(), user.Username, chi.URLParam(r, "examID"), sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	msg := appI18n.Td(r.Context(), "ExamSubmitted", map[string]any{"Score": res.Score})
	writeOK(w, http.StatusCreated, msg, map[string]any{
		"score":           res.Score,
		"correctCount":    res.CorrectCount,
		"totalQuestions":  res.TotalQuestions,
		"detailedResults": res.DetailedResults,
		"result":          res,
	})
}

func (h *Handler) handleListResults(w http.ResponseWriter, r *http.Request) {
	f, err := parseResultFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	results, err := h.svc.Results(*model.UserFromContext(r.Context()), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", map[string]any{"results": results, "count": len(results)})
}

// parseResultFilter reads studentId, examId, from, to, minScore, sort and limit.
func parseResultFilter(r *http.Request) (analytics.ResultFilter, error) {
	q := r.URL.Query()
	f := analytics.ResultFilter{
		StudentID: q.Get("studentId"),
		ExamID:    q.Get("examId"),
	}
	var err error
	if f.Sort, err = analytics.ParseSortOrder(q.Get("sort")); err != nil {
		return f, err
	}
	if f.From, err = parseTimeParam(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTimeParam(q.Get("to"), "to"); err != nil {
		return f, err
	}
	if v := q.Get("minScore"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, model.Invalid("minScore must be an integer")
		}
		f.MinScore = &n
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, model.Invalid("limit must be an integer")
		}
	}
	return f, nil
}

// parseTimeParam accepts RFC 3339 timestamps and plain dates. A plain date
// used as an upper bound covers the whole day.
func parseTimeParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, model.Invalid("%s must be an RFC 3339 timestamp or a YYYY-MM-DD date", name)
	}
	if name == "to" {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
