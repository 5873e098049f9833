// Package exam decides whether an exam can be taken and grades submissions.
package exam

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

// Takeable is an exam that is open for submissions, with its questions resolved.
type Takeable struct {
	Exam      model.Exam
	Questions []model.Question
}

// CheckOpen reports whether e accepts submissions at now. An inactive exam is
// closed whatever its window; the window applies only when both bounds are set
// and is inclusive at both ends.
func CheckOpen(e model.Exam, now time.Time) error {
	if !e.Active {
		return fmt.Errorf("exam %s: %w", e.ID, model.ErrInactive)
	}
	if e.HasWindow() && (now.Before(*e.StartDate) || now.After(*e.EndDate)) {
		return fmt.Errorf("exam %s: %w", e.ID, model.ErrOutsideWindow)
	}
	return nil
}

// ResolveQuestions looks up e's question ids in order. Ids with no matching
// question are dropped and returned in missing.
func ResolveQuestions(e model.Exam, questions []model.Question) (resolved []model.Question, missing []int64) {
	byID := make(map[int64]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	resolved = make([]model.Question, 0, len(e.QuestionIDs))
	for _, id := range e.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		resolved = append(resolved, q)
	}
	if len(missing) > 0 {
		slog.Warn("exam references missing questions", "exam_id", e.ID, "missing", missing)
	}
	return resolved, missing
}

// Resolve finds examID among exams, checks that it is open at now and
// resolves its questions.
func Resolve(exams []model.Exam, questions []model.Question, examID string, now time.Time) (Takeable, error) {
	var found *model.Exam
	for i := range exams {
		if exams[i].ID == examID {
			found = &exams[i]
			break
		}
	}
	if found == nil {
		return Takeable{}, fmt.Errorf("exam %s: %w", examID, model.ErrNotFound)
	}
	if err := CheckOpen(*found, now); err != nil {
		return Takeable{}, err
	}
	resolved, _ := ResolveQuestions(*found, questions)
	return Takeable{Exam: *found, Questions: resolved}, nil
}
