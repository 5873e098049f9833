package analytics

import (
	"slices"
	"strings"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

// SortOrder selects how filtered results are ordered.
type SortOrder string

const (
	// SortByDate lists the newest submissions first.
	SortByDate SortOrder = "date"
	// SortByScore lists the highest scores first.
	SortByScore SortOrder = "score"
)

// ParseSortOrder accepts "", "date" and "score".
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByDate:
		return SortByDate, nil
	case SortByScore:
		return SortByScore, nil
	}
	return "", model.Invalid("sort must be %q or %q", SortByDate, SortByScore)
}

// ResultFilter narrows a result listing. Zero values disable a criterion.
type ResultFilter struct {
	StudentID string
	ExamID    string
	From      *time.Time // inclusive
	To        *time.Time // inclusive
	MinScore  *int
	Sort      SortOrder
	Limit     int
}

// Validate rejects inverted date ranges and out-of-range scores.
func (f ResultFilter) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return model.Invalid("from must not be after to")
	}
	if f.MinScore != nil && (*f.MinScore < 0 || *f.MinScore > 100) {
		return model.Invalid("minScore must be between 0 and 100")
	}
	if f.Limit < 0 {
		return model.Invalid("limit must not be negative")
	}
	return nil
}

// Filter returns the results matching f in the requested order. The input
// slice is not modified.
func Filter(results []model.Result, f ResultFilter) []model.Result {
	out := make([]model.Result, 0, len(results))
	for _, r := range results {
		if f.StudentID != "" && r.StudentID != f.StudentID {
			continue
		}
		if f.ExamID != "" && r.ExamID != f.ExamID {
			continue
		}
		if f.From != nil && r.SubmittedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && r.SubmittedAt.After(*f.To) {
			continue
		}
		if f.MinScore != nil && r.Score < *f.MinScore {
			continue
		}
		out = append(out, r)
	}

	switch f.Sort {
	case SortByScore:
		slices.SortStableFunc(out, func(a, b model.Result) int { return b.Score - a.Score })
	default:
		slices.SortStableFunc(out, func(a, b model.Result) int { return b.SubmittedAt.Compare(a.SubmittedAt) })
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
