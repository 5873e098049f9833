package exam

import (
	"fmt"

	"github.com/pavelanni/examhall/internal/model"
)

// ScoreResult is the outcome of grading one submission.
type ScoreResult struct {
	Percentage   int                  `json:"percentage"`
	CorrectCount int                  `json:"correctCount"`
	Total        int                  `json:"total"`
	Details      []model.AnswerDetail `json:"detailedResults"`
}

// Score grades answers against questions position by position. An answer is
// correct only when it equals the correct answer exactly.
func Score(questions []model.Question, answers []string) (ScoreResult, error) {
	if len(answers) != len(questions) {
		return ScoreResult{}, fmt.Errorf("got %d answers for %d questions: %w",
			len(answers), len(questions), model.ErrLengthMismatch)
	}

	res := ScoreResult{
		Total:   len(questions),
		Details: make([]model.AnswerDetail, len(questions)),
	}
	for i, q := range questions {
		correct := answers[i] == q.CorrectAnswer
		if correct {
			res.CorrectCount++
		}
		res.Details[i] = model.AnswerDetail{
			QuestionID:    q.ID,
			Question:      q.Text,
			UserAnswer:    answers[i],
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     correct,
		}
	}
	res.Percentage = Percentage(res.CorrectCount, res.Total)
	return res, nil
}

// Percentage returns correct/total as a whole percentage, rounding halves away
// from zero. Integer arithmetic keeps ties such as 23/40 exact. A zero total
// yields 0.
func Percentage(correct, total int) int {
	if total == 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}
