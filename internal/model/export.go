package model

import "time"

// ResultsExport is the top-level JSON structure written by the export command.
type ResultsExport struct {
	ExportedAt time.Time       `json:"exportedAt"`
	ExamID     string          `json:"examId,omitempty"`
	StudentID  string          `json:"studentId,omitempty"`
	Results    []ExportedRow   `json:"results"`
	Analytics  AnalyticsReport `json:"analytics"`
}

// ExportedRow is one result joined with the names a reader needs.
type ExportedRow struct {
	Result
	StudentName string `json:"studentName"`
	ExamTitle   string `json:"examTitle"`
}

// AnalyticsOverview holds platform-wide counters.
type AnalyticsOverview struct {
	TotalStudents int `json:"totalStudents"`
	TotalExams    int `json:"totalExams"`
	ActiveExams   int `json:"activeExams"`
	TotalResults  int `json:"totalResults"`
	AverageScore  int `json:"averageScore"`
}

// StudentSummary aggregates one student's results.
type StudentSummary struct {
	StudentID    string `json:"studentId"`
	Name         string `json:"name"`
	AverageScore int    `json:"averageScore"`
	ExamsTaken   int    `json:"examsTaken"`
	HighestScore int    `json:"highestScore"`
	LowestScore  int    `json:"lowestScore"`
}

// ExamSummary aggregates the results of one exam.
type ExamSummary struct {
	ExamID       string `json:"examId"`
	Title        string `json:"title"`
	Participants int    `json:"participants"`
	AverageScore int    `json:"averageScore"`
	HighestScore int    `json:"highestScore"`
	LowestScore  int    `json:"lowestScore"`
}

// AnalyticsReport is the admin dashboard payload.
type AnalyticsReport struct {
	Overview       AnalyticsOverview `json:"overview"`
	TopStudents    []StudentSummary  `json:"topStudents"`
	ExamStatistics []ExamSummary     `json:"examStatistics"`
}
