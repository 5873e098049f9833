// Package analytics derives summary statistics and filtered listings from results.
package analytics

import (
	"math"
	"slices"

	"github.com/pavelanni/examhall/internal/model"
)

// TopStudentsLimit caps the topStudents list.
const TopStudentsLimit = 5

// UnknownStudent labels results whose student account no longer exists.
const UnknownStudent = "Unknown Student"

// Aggregate builds the analytics report. It never divides by zero: empty
// groups report zeros.
func Aggregate(results []model.Result, users []model.User, exams []model.Exam) model.AnalyticsReport {
	return model.AnalyticsReport{
		Overview:       overview(results, users, exams),
		TopStudents:    topStudents(results, users),
		ExamStatistics: examStatistics(results, exams),
	}
}

func overview(results []model.Result, users []model.User, exams []model.Exam) model.AnalyticsOverview {
	o := model.AnalyticsOverview{
		TotalExams:   len(exams),
		TotalResults: len(results),
	}
	for _, u := range users {
		if u.Role == model.UserRoleStudent {
			o.TotalStudents++
		}
	}
	for _, e := range exams {
		if e.Active {
			o.ActiveExams++
		}
	}
	o.AverageScore = average(scores(results))
	return o
}

func topStudents(results []model.Result, users []model.User) []model.StudentSummary {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.Username] = u.Name
	}

	// Group in first-seen order so ties keep a stable, reproducible order.
	var order []string
	groups := make(map[string][]int)
	for _, r := range results {
		if _, ok := groups[r.StudentID]; !ok {
			order = append(order, r.StudentID)
		}
		groups[r.StudentID] = append(groups[r.StudentID], r.Score)
	}

	summaries := make([]model.StudentSummary, 0, len(order))
	for _, id := range order {
		s := groups[id]
		name, ok := names[id]
		if !ok {
			name = UnknownStudent
		}
		summaries = append(summaries, model.StudentSummary{
			StudentID:    id,
			Name:         name,
			AverageScore: average(s),
			ExamsTaken:   len(s),
			HighestScore: slices.Max(s),
			LowestScore:  slices.Min(s),
		})
	}
	slices.SortStableFunc(summaries, func(a, b model.StudentSummary) int {
		return b.AverageScore - a.AverageScore
	})
	if len(summaries) > TopStudentsLimit {
		summaries = summaries[:TopStudentsLimit]
	}
	return summaries
}

func examStatistics(results []model.Result, exams []model.Exam) []model.ExamSummary {
	stats := make([]model.ExamSummary, 0, len(exams))
	for _, e := range exams {
		var s []int
		for _, r := range results {
			if r.ExamID == e.ID {
				s = append(s, r.Score)
			}
		}
		summary := model.ExamSummary{
			ExamID:       e.ID,
			Title:        e.Title,
			Participants: len(s),
			AverageScore: average(s),
		}
		if len(s) > 0 {
			summary.HighestScore = slices.Max(s)
			summary.LowestScore = slices.Min(s)
		}
		stats = append(stats, summary)
	}
	slices.SortStableFunc(stats, func(a, b model.ExamSummary) int {
		return b.Participants - a.Participants
	})
	return stats
}

func scores(results []model.Result) []int {
	s := make([]int, len(results))
	for i, r := range results {
		s[i] = r.Score
	}
	return s
}

// average is the mean rounded half away from zero, or 0 for no values.
func average(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(values))))
}
