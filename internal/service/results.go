package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/examhall/internal/analytics"
	"github.com/pavelanni/examhall/internal/event"
	"github.com/pavelanni/examhall/internal/exam"
	"github.com/pavelanni/examhall/internal/metrics"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

// Submission is a student's answer sheet, one answer per resolved question.
type Submission struct {
	Answers   []string `json:"answers"`
	TimeTaken *int     `json:"timeTaken"`
}

// Submit grades a submission and records the result. Resolving, scoring and
// persisting happen under one store update.
func (s *Service) Submit(ctx context.Context, username, examID string, sub Submission) (model.Result, error) {
	var res model.Result
	err := s.store.Update(ctx, store.Results, func(snap *store.Snapshot) error {
		i := snap.User(username)
		if i < 0 {
			return fmt.Errorf("user %s: %w", username, model.ErrUnauthorized)
		}
		if snap.Users[i].Role != model.UserRoleStudent {
			return fmt.Errorf("only students submit exams: %w", model.ErrForbidden)
		}
		if sub.TimeTaken != nil && *sub.TimeTaken < 0 {
			return model.Invalid("timeTaken must not be negative")
		}

		now := s.now()
		t, err := exam.Resolve(snap.Exams, snap.Questions, examID, now)
		if err != nil {
			return err
		}
		if len(t.Questions) == 0 {
			return fmt.Errorf("exam %s has no questions: %w", examID, model.ErrState)
		}
		scored, err := exam.Score(t.Questions, sub.Answers)
		if err != nil {
			return err
		}

		var taken *int
		if sub.TimeTaken != nil {
			v := *sub.TimeTaken
			taken = &v
		}
		res = model.Result{
			ID:              uuid.NewString(),
			StudentID:       username,
			ExamID:          examID,
			Score:           scored.Percentage,
			CorrectCount:    scored.CorrectCount,
			TotalQuestions:  scored.Total,
			SubmittedAt:     now.UTC(),
			Answers:         append([]string(nil), sub.Answers...),
			TimeTaken:       taken,
			DetailedResults: scored.Details,
		}
		snap.Results = append(snap.Results, res)
		return nil
	})
	if err != nil {
		outcome := "rejected"
		if errors.Is(err, model.ErrPersistence) {
			outcome = "failed"
		}
		metrics.Submissions.WithLabelValues(outcome).Inc()
		return model.Result{}, err
	}

	metrics.Submissions.WithLabelValues("scored").Inc()
	metrics.SubmissionScore.Observe(float64(res.Score))
	slog.Info("recorded result", "id", res.ID, "student", username, "exam_id", examID, "score", res.Score)
	s.publish(ctx, event.ResultCreated, res)
	return res, nil
}

// Results lists results matching f. Students only ever see their own.
func (s *Service) Results(viewer model.User, f analytics.ResultFilter) ([]model.Result, error) {
	if viewer.Role != model.UserRoleAdmin {
		f.StudentID = viewer.Username
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var out []model.Result
	_ = s.store.View(func(snap *store.Snapshot) error {
		out = analytics.Filter(snap.Clone().Results, f)
		return nil
	})
	return out, nil
}

// Analytics computes the report over a consistent snapshot.
func (s *Service) Analytics() model.AnalyticsReport {
	var report model.AnalyticsReport
	_ = s.store.View(func(snap *store.Snapshot) error {
		report = analytics.Aggregate(snap.Results, snap.Users, snap.Exams)
		return nil
	})
	return report
}

// Export joins results with student names and exam titles and attaches the
// analytics report. Empty ids select everything.
func (s *Service) Export(examID, studentID string) model.ResultsExport {
	out := model.ResultsExport{
		ExportedAt: s.now().UTC(),
		ExamID:     examID,
		StudentID:  studentID,
		Results:    []model.ExportedRow{},
	}
	_ = s.store.View(func(snap *store.Snapshot) error {
		names := make(map[string]string, len(snap.Users))
		for _, u := range snap.Users {
			names[u.Username] = u.Name
		}
		titles := make(map[string]string, len(snap.Exams))
		for _, e := range snap.Exams {
			titles[e.ID] = e.Title
		}

		filtered := analytics.Filter(snap.Clone().Results, analytics.ResultFilter{
			StudentID: studentID,
			ExamID:    examID,
		})
		for _, r := range filtered {
			name, ok := names[r.StudentID]
			if !ok {
				name = analytics.UnknownStudent
			}
			out.Results = append(out.Results, model.ExportedRow{
				Result:      r,
				StudentName: name,
				ExamTitle:   titles[r.ExamID],
			})
		}
		out.Analytics = analytics.Aggregate(snap.Results, snap.Users, snap.Exams)
		return nil
	})
	return out
}
