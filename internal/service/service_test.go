package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/examhall/internal/analytics"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

// recorder collects published event types.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(_ context.Context, eventType string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// flakyBackend fails commits while fail is set.
type flakyBackend struct {
	store.Backend
	fail bool
}

func (f *flakyBackend) Commit(ctx context.Context, coll store.Collection, snap *store.Snapshot) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Backend.Commit(ctx, coll, snap)
}

type fixture struct {
	svc     *Service
	events  *recorder
	backend *flakyBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqlite, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	backend := &flakyBackend{Backend: sqlite}
	st, err := store.Open(context.Background(), backend, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rec := &recorder{}
	svc := New(st, WithPublisher(rec), WithClock(func() time.Time { return testNow }))
	return &fixture{svc: svc, events: rec, backend: backend}
}

func (f *fixture) student(t *testing.T, username string) model.User {
	t.Helper()
	u, err := f.svc.Signup(context.Background(), NewUser{
		Username: username,
		Password: "password",
		Name:     "Student " + username,
	})
	if err != nil {
		t.Fatalf("Signup(%s): %v", username, err)
	}
	return u
}

func (f *fixture) questions(t *testing.T, correct ...string) []int64 {
	t.Helper()
	in := make([]model.QuestionImport, len(correct))
	for i, c := range correct {
		in[i] = model.QuestionImport{
			Text:          "Question " + c,
			Options:       []string{"A", "B", "C"},
			CorrectAnswer: c,
		}
	}
	created, err := f.svc.ImportQuestions(context.Background(), in)
	if err != nil {
		t.Fatalf("ImportQuestions: %v", err)
	}
	ids := make([]int64, len(created))
	for i, q := range created {
		ids[i] = q.ID
	}
	return ids
}

func (f *fixture) exam(t *testing.T, in ExamInput) model.Exam {
	t.Helper()
	if in.Title == "" {
		in.Title = "Exam"
	}
	if in.Duration == 0 {
		in.Duration = 30
	}
	e, err := f.svc.CreateExam(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	return e
}

func ptr[T any](v T) *T { return &v }

func TestSubmitScoresAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.student(t, "ann")
	e := f.exam(t, ExamInput{QuestionIDs: f.questions(t, "A", "B")})

	res, err := f.svc.Submit(ctx, "ann", e.ID, Submission{Answers: []string{"A", "C"}, TimeTaken: ptr(90)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score != 50 || res.CorrectCount != 1 || res.TotalQuestions != 2 {
		t.Errorf("result = %d%% %d/%d, want 50%% 1/2", res.Score, res.CorrectCount, res.TotalQuestions)
	}
	if len(res.DetailedResults) != 2 || !res.DetailedResults[0].IsCorrect || res.DetailedResults[1].IsCorrect {
		t.Errorf("unexpected details: %+v", res.DetailedResults)
	}
	if res.ID == "" || !res.SubmittedAt.Equal(testNow) || res.TimeTaken == nil || *res.TimeTaken != 90 {
		t.Errorf("unexpected result metadata: %+v", res)
	}

	listed, err := f.svc.Results(model.User{Username: "ann", Role: model.UserRoleStudent}, analytics.ResultFilter{})
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != res.ID {
		t.Errorf("expected the new result to be listed, got %+v", listed)
	}

	types := f.events.types()
	if types[len(types)-1] != "result.created" {
		t.Errorf("last event = %s, want result.created", types[len(types)-1])
	}
}

func TestSubmitRejected(t *testing.T) {
	past := testNow.Add(-48 * time.Hour)
	yesterday := testNow.Add(-24 * time.Hour)
	later := testNow.Add(time.Hour)

	tests := []struct {
		name    string
		input   ExamInput
		user    string
		answers []string
		wantErr error
	}{
		{"window ended", ExamInput{StartDate: &past, EndDate: &yesterday}, "ann", []string{"A"}, model.ErrOutsideWindow},
		{"window not started", ExamInput{StartDate: &later, EndDate: ptr(later.Add(time.Hour))}, "ann", []string{"A"}, model.ErrOutsideWindow},
		{"inactive", ExamInput{Active: ptr(false)}, "ann", []string{"A"}, model.ErrInactive},
		{"too few answers", ExamInput{}, "ann", nil, model.ErrLengthMismatch},
		{"too many answers", ExamInput{}, "ann", []string{"A", "B"}, model.ErrLengthMismatch},
		{"admin", ExamInput{}, "boss", []string{"A"}, model.ErrForbidden},
		{"unknown user", ExamInput{}, "ghost", []string{"A"}, model.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.student(t, "ann")
			if _, err := f.svc.CreateUser(ctx, NewUser{Username: "boss", Password: "password", Name: "Boss", Role: model.UserRoleAdmin}); err != nil {
				t.Fatalf("CreateUser: %v", err)
			}
			tt.input.QuestionIDs = f.questions(t, "A")
			e := f.exam(t, tt.input)

			_, err := f.svc.Submit(ctx, tt.user, e.ID, Submission{Answers: tt.answers})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if n := len(f.svc.Export("", "").Results); n != 0 {
				t.Errorf("expected no results, got %d", n)
			}
		})
	}
}

func TestSubmitUnknownExam(t *testing.T) {
	f := newFixture(t)
	f.student(t, "ann")
	_, err := f.svc.Submit(context.Background(), "ann", "nope", Submission{Answers: []string{"A"}})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSubmitCommitFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.student(t, "ann")
	e := f.exam(t, ExamInput{QuestionIDs: f.questions(t, "A")})

	f.backend.fail = true
	_, err := f.svc.Submit(context.Background(), "ann", e.ID, Submission{Answers: []string{"A"}})
	if !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if n := len(f.svc.Analytics().TopStudents); n != 0 {
		t.Errorf("failed submission is visible: %d students with results", n)
	}

	f.backend.fail = false
	if _, err := f.svc.Submit(context.Background(), "ann", e.ID, Submission{Answers: []string{"A"}}); err != nil {
		t.Fatalf("Submit after recovery: %v", err)
	}
	if got := f.svc.Analytics().Overview.TotalResults; got != 1 {
		t.Errorf("totalResults = %d, want 1", got)
	}
}

func TestSubmitSkipsDeletedQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.student(t, "ann")
	ids := f.questions(t, "A", "B", "C")
	e := f.exam(t, ExamInput{QuestionIDs: ids})

	if err := f.svc.DeleteQuestion(ctx, ids[1]); err != nil {
		t.Fatalf("DeleteQuestion: %v", err)
	}

	taken, err := f.svc.GetTakeable(e.ID, true)
	if err != nil {
		t.Fatalf("GetTakeable: %v", err)
	}
	if len(taken.Questions) != 2 || taken.Questions[0].ID != ids[0] || taken.Questions[1].ID != ids[2] {
		t.Fatalf("unexpected resolved questions: %+v", taken.Questions)
	}

	res, err := f.svc.Submit(ctx, "ann", e.ID, Submission{Answers: []string{"A", "C"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score != 100 || res.TotalQuestions != 2 {
		t.Errorf("result = %d%% of %d, want 100%% of 2", res.Score, res.TotalQuestions)
	}
}

func TestGetTakeableRedaction(t *testing.T) {
	f := newFixture(t)
	e := f.exam(t, ExamInput{QuestionIDs: f.questions(t, "B")})

	redacted, err := f.svc.GetTakeable(e.ID, true)
	if err != nil {
		t.Fatalf("GetTakeable: %v", err)
	}
	if redacted.Questions[0].CorrectAnswer != "" {
		t.Error("expected the correct answer to be hidden")
	}
	full, _ := f.svc.GetTakeable(e.ID, false)
	if full.Questions[0].CorrectAnswer != "B" {
		t.Errorf("correct answer = %q, want B", full.Questions[0].CorrectAnswer)
	}
}

func TestResultsStudentsSeeOnlyTheirOwn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.student(t, "ann")
	f.student(t, "bob")
	e := f.exam(t, ExamInput{QuestionIDs: f.questions(t, "A")})
	for _, u := range []string{"ann", "bob", "bob"} {
		if _, err := f.svc.Submit(ctx, u, e.ID, Submission{Answers: []string{"A"}}); err != nil {
			t.Fatalf("Submit(%s): %v", u, err)
		}
	}

	own, err := f.svc.Results(model.User{Username: "ann", Role: model.UserRoleStudent}, analytics.ResultFilter{StudentID: "bob"})
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(own) != 1 || own[0].StudentID != "ann" {
		t.Errorf("student saw %+v", own)
	}

	all, _ := f.svc.Results(model.User{Username: "admin", Role: model.UserRoleAdmin}, analytics.ResultFilter{})
	if len(all) != 3 {
		t.Errorf("admin saw %d results, want 3", len(all))
	}

	if _, err := f.svc.Results(model.User{Role: model.UserRoleAdmin}, analytics.ResultFilter{Limit: -1}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.student(t, "ann")
	f.student(t, "bob")
	e := f.exam(t, ExamInput{Title: "Algebra", QuestionIDs: f.questions(t, "A", "B")})
	f.svc.Submit(ctx, "ann", e.ID, Submission{Answers: []string{"A", "B"}})
	f.svc.Submit(ctx, "bob", e.ID, Submission{Answers: []string{"A", "A"}})
	if _, err := f.svc.DeleteUser(ctx, "bob"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	out := f.svc.Export(e.ID, "")
	if len(out.Results) != 2 {
		t.Fatalf("exported %d rows, want 2", len(out.Results))
	}
	names := map[string]string{}
	for _, row := range out.Results {
		names[row.StudentID] = row.StudentName
		if row.ExamTitle != "Algebra" {
			t.Errorf("exam title = %q", row.ExamTitle)
		}
	}
	if names["ann"] != "Student ann" || names["bob"] != analytics.UnknownStudent {
		t.Errorf("unexpected names: %v", names)
	}
	if out.Analytics.Overview.TotalResults != 2 || out.Analytics.Overview.AverageScore != 75 {
		t.Errorf("unexpected overview: %+v", out.Analytics.Overview)
	}
	if len(f.svc.Export("", "ann").Results) != 1 {
		t.Error("expected student filter to apply")
	}
}

func TestConcurrentSubmitsAndReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.exam(t, ExamInput{QuestionIDs: f.questions(t, "A", "B")})

	const n = 12
	students := make([]string, n)
	for i := range students {
		students[i] = "student" + string(rune('a'+i))
		f.student(t, students[i])
	}
	admin := model.User{Username: model.ReservedAdmin, Role: model.UserRoleAdmin}

	var wg sync.WaitGroup
	for _, username := range students {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Submit(ctx, username, e.ID, Submission{Answers: []string{"A", "C"}}); err != nil {
				t.Errorf("Submit(%s): %v", username, err)
			}
		}()
		go func() {
			defer wg.Done()
			report := f.svc.Analytics()
			ov := report.Overview
			if ov.TotalResults < 0 || ov.TotalResults > n {
				t.Errorf("totalResults = %d, want 0..%d", ov.TotalResults, n)
			}
			if ov.TotalResults > 0 && ov.AverageScore != 50 {
				t.Errorf("averageScore = %d over %d results, want 50", ov.AverageScore, ov.TotalResults)
			}
			results, err := f.svc.Results(admin, analytics.ResultFilter{})
			if err != nil {
				t.Errorf("Results: %v", err)
				return
			}
			for _, r := range results {
				if len(r.DetailedResults) != 2 || r.Score != 50 {
					t.Errorf("partial result visible: %+v", r)
				}
			}
		}()
	}
	wg.Wait()

	report := f.svc.Analytics()
	if report.Overview.TotalResults != n || report.Overview.AverageScore != 50 {
		t.Errorf("overview = %+v, want %d results averaging 50", report.Overview, n)
	}
	results, err := f.svc.Results(admin, analytics.ResultFilter{})
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	seen := make(map[string]bool)
	for _, r := range results {
		if seen[r.ID] {
			t.Errorf("duplicate result id %s", r.ID)
		}
		seen[r.ID] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct results, want %d", len(seen), n)
	}
}
