package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pavelanni/examhall/internal/event"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

// ValidateQuestion trims q and checks that it has a prompt, at least two
// distinct non-empty options, and a correct answer among them.
func ValidateQuestion(q model.QuestionImport) (model.QuestionImport, error) {
	out := model.QuestionImport{
		Text:          strings.TrimSpace(q.Text),
		CorrectAnswer: strings.TrimSpace(q.CorrectAnswer),
		Options:       make([]string, 0, len(q.Options)),
	}
	if out.Text == "" {
		return out, model.Invalid("question text is required")
	}
	if len(q.Options) < 2 {
		return out, model.Invalid("at least two options are required")
	}
	for i, o := range q.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return out, model.Invalid("option %d is empty", i+1)
		}
		if slices.Contains(out.Options, o) {
			return out, model.Invalid("option %q is listed twice", o)
		}
		out.Options = append(out.Options, o)
	}
	if !slices.Contains(out.Options, out.CorrectAnswer) {
		return out, model.Invalid("correct answer %q is not one of the options", out.CorrectAnswer)
	}
	return out, nil
}

// ListQuestions returns every question in creation order.
func (s *Service) ListQuestions() []model.Question {
	var qs []model.Question
	_ = s.store.View(func(snap *store.Snapshot) error {
		qs = snap.Clone().Questions
		return nil
	})
	return qs
}

// GetQuestion returns one question.
func (s *Service) GetQuestion(id int64) (model.Question, error) {
	var q model.Question
	err := s.store.View(func(snap *store.Snapshot) error {
		i := snap.Question(id)
		if i < 0 {
			return fmt.Errorf("question %d: %w", id, model.ErrNotFound)
		}
		q = snap.Questions[i]
		q.Options = slices.Clone(q.Options)
		return nil
	})
	return q, err
}

// CreateQuestion validates and stores a new question.
func (s *Service) CreateQuestion(ctx context.Context, in model.QuestionImport) (model.Question, error) {
	created, err := s.ImportQuestions(ctx, []model.QuestionImport{in})
	if err != nil {
		return model.Question{}, err
	}
	return created[0], nil
}

// ImportQuestions validates every question and stores them all in a single
// commit. One invalid question rejects the whole batch.
func (s *Service) ImportQuestions(ctx context.Context, in []model.QuestionImport) ([]model.Question, error) {
	if len(in) == 0 {
		return nil, model.Invalid("no questions to import")
	}
	valid := make([]model.QuestionImport, len(in))
	for i, q := range in {
		v, err := ValidateQuestion(q)
		if err != nil {
			if len(in) > 1 {
				return nil, fmt.Errorf("question %d: %w", i+1, err)
			}
			return nil, err
		}
		valid[i] = v
	}

	var created []model.Question
	err := s.store.Update(ctx, store.Questions, func(snap *store.Snapshot) error {
		created = make([]model.Question, 0, len(valid))
		for _, v := range valid {
			q := model.Question{
				ID:            snap.AllocQuestionID(),
				Text:          v.Text,
				Options:       v.Options,
				CorrectAnswer: v.CorrectAnswer,
			}
			snap.Questions = append(snap.Questions, q)
			created = append(created, q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, q := range created {
		slog.Info("created question", "id", q.ID)
		s.publish(ctx, event.QuestionCreated, q)
	}
	return created, nil
}

// UpdateQuestion replaces the content of a question, keeping its id.
func (s *Service) UpdateQuestion(ctx context.Context, id int64, in model.QuestionImport) (model.Question, error) {
	v, err := ValidateQuestion(in)
	if err != nil {
		return model.Question{}, err
	}
	q := model.Question{ID: id, Text: v.Text, Options: v.Options, CorrectAnswer: v.CorrectAnswer}
	err = s.store.Update(ctx, store.Questions, func(snap *store.Snapshot) error {
		i := snap.Question(id)
		if i < 0 {
			return fmt.Errorf("question %d: %w", id, model.ErrNotFound)
		}
		snap.Questions[i] = q
		return nil
	})
	if err != nil {
		return model.Question{}, err
	}
	slog.Info("updated question", "id", id)
	s.publish(ctx, event.QuestionUpdated, q)
	return q, nil
}

// DeleteQuestion removes a question. Exams that reference it keep the
// dangling id; it is skipped when the exam is taken.
func (s *Service) DeleteQuestion(ctx context.Context, id int64) error {
	var referencedBy []string
	err := s.store.Update(ctx, store.Questions, func(snap *store.Snapshot) error {
		i := snap.Question(id)
		if i < 0 {
			return fmt.Errorf("question %d: %w", id, model.ErrNotFound)
		}
		snap.Questions = slices.Delete(snap.Questions, i, i+1)
		for _, e := range snap.Exams {
			if slices.Contains(e.QuestionIDs, id) {
				referencedBy = append(referencedBy, e.ID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("deleted question", "id", id)
	if len(referencedBy) > 0 {
		slog.Warn("deleted question is still referenced", "id", id, "exams", referencedBy)
	}
	s.publish(ctx, event.QuestionDeleted, map[string]any{"id": id})
	return nil
}
