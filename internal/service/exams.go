package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examhall/internal/event"
	"github.com/pavelanni/examhall/internal/exam"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

// ExamInput carries the editable fields of an exam. A nil Active means true
// on create and unchanged on update.
type ExamInput struct {
	Title       string     `json:"title"`
	Duration    int        `json:"duration"`
	QuestionIDs []int64    `json:"questionIds"`
	Active      *bool      `json:"active"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Description string     `json:"description"`
}

// validateExam checks in against the current questions. Every id must exist
// at the time of the write.
func validateExam(snap *store.Snapshot, in ExamInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return model.Invalid("title is required")
	}
	if in.Duration <= 0 {
		return model.Invalid("duration must be a positive number of minutes")
	}
	if len(in.QuestionIDs) == 0 {
		return model.Invalid("at least one question is required")
	}
	seen := make(map[int64]bool, len(in.QuestionIDs))
	for _, id := range in.QuestionIDs {
		if seen[id] {
			return model.Invalid("question %d is listed twice", id)
		}
		seen[id] = true
		if snap.Question(id) < 0 {
			return model.Invalid("question %d does not exist", id)
		}
	}
	if in.StartDate != nil && in.EndDate != nil && !in.StartDate.Before(*in.EndDate) {
		return model.Invalid("startDate must be before endDate")
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ListExams returns every exam.
func (s *Service) ListExams() []model.Exam {
	var exams []model.Exam
	_ = s.store.View(func(snap *store.Snapshot) error {
		exams = snap.Clone().Exams
		return nil
	})
	return exams
}

// ListAvailable returns the exams that accept submissions now.
func (s *Service) ListAvailable() []model.Exam {
	now := s.now()
	var open []model.Exam
	for _, e := range s.ListExams() {
		if exam.CheckOpen(e, now) == nil {
			open = append(open, e)
		}
	}
	return open
}

// GetExam returns one exam regardless of its state.
func (s *Service) GetExam(id string) (model.Exam, error) {
	var e model.Exam
	err := s.store.View(func(snap *store.Snapshot) error {
		i := snap.Exam(id)
		if i < 0 {
			return fmt.Errorf("exam %s: %w", id, model.ErrNotFound)
		}
		e = snap.Exams[i]
		e.QuestionIDs = slices.Clone(e.QuestionIDs)
		return nil
	})
	return e, err
}

// GetTakeable returns an open exam with its resolved questions. When redact
// is set the correct answers are removed.
func (s *Service) GetTakeable(id string, redact bool) (exam.Takeable, error) {
	var t exam.Takeable
	err := s.store.View(func(snap *store.Snapshot) error {
		var err error
		t, err = exam.Resolve(snap.Exams, snap.Questions, id, s.now())
		return err
	})
	if err != nil {
		return exam.Takeable{}, err
	}
	t.Exam.QuestionIDs = slices.Clone(t.Exam.QuestionIDs)
	for i, q := range t.Questions {
		if redact {
			t.Questions[i] = q.Redacted()
		} else {
			q.Options = slices.Clone(q.Options)
			t.Questions[i] = q
		}
	}
	return t, nil
}

// CreateExam validates in and stores a new exam.
func (s *Service) CreateExam(ctx context.Context, in ExamInput) (model.Exam, error) {
	now := s.now().UTC()
	e := model.Exam{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Duration:    in.Duration,
		QuestionIDs: slices.Clone(in.QuestionIDs),
		Active:      in.Active == nil || *in.Active,
		StartDate:   utc(in.StartDate),
		EndDate:     utc(in.EndDate),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.Update(ctx, store.Exams, func(snap *store.Snapshot) error {
		if err := validateExam(snap, in); err != nil {
			return err
		}
		snap.Exams = append(snap.Exams, e)
		return nil
	})
	if err != nil {
		return model.Exam{}, err
	}
	slog.Info("created exam", "id", e.ID, "title", e.Title, "questions", len(e.QuestionIDs))
	s.publish(ctx, event.ExamCreated, e)
	return e, nil
}

// UpdateExam replaces the editable fields of an exam.
func (s *Service) UpdateExam(ctx context.Context, id string, in ExamInput) (model.Exam, error) {
	var updated model.Exam
	err := s.store.Update(ctx, store.Exams, func(snap *store.Snapshot) error {
		i := snap.Exam(id)
		if i < 0 {
			return fmt.Errorf("exam %s: %w", id, model.ErrNotFound)
		}
		if err := validateExam(snap, in); err != nil {
			return err
		}
		e := &snap.Exams[i]
		e.Title = strings.TrimSpace(in.Title)
		e.Duration = in.Duration
		e.QuestionIDs = slices.Clone(in.QuestionIDs)
		if in.Active != nil {
			e.Active = *in.Active
		}
		e.StartDate = utc(in.StartDate)
		e.EndDate = utc(in.EndDate)
		e.Description = strings.TrimSpace(in.Description)
		e.UpdatedAt = s.now().UTC()
		updated = *e
		return nil
	})
	if err != nil {
		return model.Exam{}, err
	}
	slog.Info("updated exam", "id", id)
	s.publish(ctx, event.ExamUpdated, updated)
	return updated, nil
}

// DeleteExam removes an exam. Its results are kept.
func (s *Service) DeleteExam(ctx context.Context, id string) error {
	err := s.store.Update(ctx, store.Exams, func(snap *store.Snapshot) error {
		i := snap.Exam(id)
		if i < 0 {
			return fmt.Errorf("exam %s: %w", id, model.ErrNotFound)
		}
		snap.Exams = slices.Delete(snap.Exams, i, i+1)
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("deleted exam", "id", id)
	s.publish(ctx, event.ExamDeleted, map[string]any{"id": id})
	return nil
}
