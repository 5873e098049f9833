package model

import (
	"context"
	"slices"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == UserRoleStudent || r == UserRoleAdmin
}

// ReservedAdmin is the administrator account that can never be deleted.
const ReservedAdmin = "admin"

// User represents a system user. PasswordHash is persisted but cleared by Public.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password,omitempty"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public returns a copy of the user safe to send to clients.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Question is a multiple-choice question.
type Question struct {
	ID            int64    `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Redacted returns a copy without the correct answer, for students taking an exam.
func (q Question) Redacted() Question {
	q.CorrectAnswer = ""
	q.Options = slices.Clone(q.Options)
	return q
}

// Exam groups questions under a time limit and an optional availability window.
type Exam struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Duration    int        `json:"duration"`
	QuestionIDs []int64    `json:"questionIds"`
	Active      bool       `json:"active"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// HasWindow reports whether both window bounds are set.
func (e Exam) HasWindow() bool {
	return e.StartDate != nil && e.EndDate != nil
}

// AnswerDetail records how a single question was answered.
type AnswerDetail struct {
	QuestionID    int64  `json:"questionId"`
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// Result is an immutable record of one graded submission.
type Result struct {
	ID              string         `json:"id"`
	StudentID       string         `json:"studentId"`
	ExamID          string         `json:"examId"`
	Score           int            `json:"score"`
	CorrectCount    int            `json:"correctCount"`
	TotalQuestions  int            `json:"totalQuestions"`
	SubmittedAt     time.Time      `json:"submittedAt"`
	Answers         []string       `json:"answers"`
	TimeTaken       *int           `json:"timeTaken,omitempty"`
	DetailedResults []AnswerDetail `json:"detailedResults"`
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath string        // URL prefix for sub-path deployments
	TokenTTL time.Duration // lifetime of issued bearer tokens
	Lang     string        // default message language
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
