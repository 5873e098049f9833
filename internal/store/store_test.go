package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

func newTestStore(t *testing.T) (*Store, *SQLite) {
	t.Helper()
	backend, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	s, err := Open(context.Background(), backend, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, backend
}

func insertTestQuestion(t *testing.T, s *Store, text string) int64 {
	t.Helper()
	var id int64
	err := s.Update(context.Background(), Questions, func(snap *Snapshot) error {
		id = snap.AllocQuestionID()
		snap.Questions = append(snap.Questions, model.Question{
			ID:            id,
			Text:          text,
			Options:       []string{"A", "B", "C"},
			CorrectAnswer: "A",
		})
		return nil
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return id
}

// flakyBackend wraps a backend and fails commits on demand.
type flakyBackend struct {
	Backend
	fail bool
}

func (f *flakyBackend) Commit(ctx context.Context, coll Collection, snap *Snapshot) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Backend.Commit(ctx, coll, snap)
}

func TestEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.View(func(snap *Snapshot) error {
		if len(snap.Users) != 0 || len(snap.Questions) != 0 || len(snap.Exams) != 0 || len(snap.Results) != 0 {
			t.Errorf("expected empty snapshot, got %+v", snap)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestUpdatePersistsAcrossReopen(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	start := created.Add(time.Hour)
	end := created.Add(48 * time.Hour)
	elapsed := 95

	err := s.Update(ctx, Users, func(snap *Snapshot) error {
		snap.Users = append(snap.Users, model.User{
			Username: "alice", PasswordHash: "hash", Name: "Alice", Role: model.UserRoleStudent, CreatedAt: created,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Update users: %v", err)
	}
	q1 := insertTestQuestion(t, s, "Q1")
	q2 := insertTestQuestion(t, s, "Q2")

	err = s.Update(ctx, Exams, func(snap *Snapshot) error {
		snap.Exams = append(snap.Exams, model.Exam{
			ID: "exam-1", Title: "Midterm", Duration: 30, QuestionIDs: []int64{q2, q1}, Active: true,
			StartDate: &start, EndDate: &end, CreatedAt: created, UpdatedAt: created,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Update exams: %v", err)
	}
	err = s.Update(ctx, Results, func(snap *Snapshot) error {
		snap.Results = append(snap.Results, model.Result{
			ID: "r1", StudentID: "alice", ExamID: "exam-1", Score: 50, CorrectCount: 1, TotalQuestions: 2,
			SubmittedAt: created, Answers: []string{"A", "C"}, TimeTaken: &elapsed,
			DetailedResults: []model.AnswerDetail{
				{QuestionID: q2, Question: "Q2", UserAnswer: "A", CorrectAnswer: "A", IsCorrect: true},
				{QuestionID: q1, Question: "Q1", UserAnswer: "C", CorrectAnswer: "A", IsCorrect: false},
			},
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Update results: %v", err)
	}

	reopened, err := Open(ctx, backend, ":memory:")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	err = reopened.View(func(snap *Snapshot) error {
		if len(snap.Users) != 1 || snap.Users[0].Username != "alice" || snap.Users[0].Role != model.UserRoleStudent {
			t.Errorf("unexpected users: %+v", snap.Users)
		}
		if !snap.Users[0].CreatedAt.Equal(created) {
			t.Errorf("created_at = %v, want %v", snap.Users[0].CreatedAt, created)
		}
		if len(snap.Questions) != 2 || snap.Questions[0].Text != "Q1" || len(snap.Questions[1].Options) != 3 {
			t.Errorf("unexpected questions: %+v", snap.Questions)
		}
		if len(snap.Exams) != 1 {
			t.Fatalf("expected 1 exam, got %d", len(snap.Exams))
		}
		e := snap.Exams[0]
		if e.QuestionIDs[0] != q2 || e.QuestionIDs[1] != q1 {
			t.Errorf("question order lost: %v", e.QuestionIDs)
		}
		if e.StartDate == nil || !e.StartDate.Equal(start) || e.EndDate == nil || !e.EndDate.Equal(end) {
			t.Errorf("window lost: %v %v", e.StartDate, e.EndDate)
		}
		if !e.Active {
			t.Error("expected active exam")
		}
		if len(snap.Results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(snap.Results))
		}
		r := snap.Results[0]
		if r.TimeTaken == nil || *r.TimeTaken != 95 {
			t.Errorf("time taken = %v, want 95", r.TimeTaken)
		}
		if len(r.DetailedResults) != 2 || !r.DetailedResults[0].IsCorrect || r.DetailedResults[1].IsCorrect {
			t.Errorf("unexpected details: %+v", r.DetailedResults)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestFailedCommitRollsBack(t *testing.T) {
	sqlite, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	backend := &flakyBackend{Backend: sqlite}
	s, err := Open(context.Background(), backend, "flaky")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	insertTestQuestion(t, s, "kept")

	backend.fail = true
	err = s.Update(context.Background(), Questions, func(snap *Snapshot) error {
		snap.Questions = snap.Questions[:0]
		return nil
	})
	if !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	_ = s.View(func(snap *Snapshot) error {
		if len(snap.Questions) != 1 || snap.Questions[0].Text != "kept" {
			t.Errorf("in-memory state diverged after failed commit: %+v", snap.Questions)
		}
		return nil
	})
}

func TestMutationErrorSkipsCommit(t *testing.T) {
	s, _ := newTestStore(t)
	wantErr := model.Invalid("nope")

	err := s.Update(context.Background(), Users, func(snap *Snapshot) error {
		snap.Users = append(snap.Users, model.User{Username: "ghost"})
		return wantErr
	})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_ = s.View(func(snap *Snapshot) error {
		if snap.User("ghost") != -1 {
			t.Error("aborted mutation is visible")
		}
		return nil
	})
}

func TestQuestionIDsAreNeverReused(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	insertTestQuestion(t, s, "Q1")
	q2 := insertTestQuestion(t, s, "Q2")

	err := s.Update(ctx, Questions, func(snap *Snapshot) error {
		i := snap.Question(q2)
		snap.Questions = append(snap.Questions[:i], snap.Questions[i+1:]...)
		return nil
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	q3 := insertTestQuestion(t, s, "Q3")
	if q3 <= q2 {
		t.Errorf("expected id greater than %d, got %d", q2, q3)
	}

	reopened, err := Open(ctx, backend, ":memory:")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	var next int64
	_ = reopened.Update(ctx, Questions, func(snap *Snapshot) error {
		next = snap.AllocQuestionID()
		return nil
	})
	if next <= q3 {
		t.Errorf("expected id after reopen greater than %d, got %d", q3, next)
	}
}

func TestCloneIsDeep(t *testing.T) {
	start := time.Now()
	snap := &Snapshot{
		Questions: []model.Question{{ID: 1, Options: []string{"a", "b"}}},
		Exams:     []model.Exam{{ID: "e", QuestionIDs: []int64{1}, StartDate: &start}},
		Results:   []model.Result{{ID: "r", Answers: []string{"a"}}},
	}
	c := snap.Clone()
	c.Questions[0].Options[0] = "changed"
	c.Exams[0].QuestionIDs[0] = 99
	*c.Exams[0].StartDate = start.Add(time.Hour)
	c.Results[0].Answers[0] = "changed"

	if snap.Questions[0].Options[0] != "a" || snap.Exams[0].QuestionIDs[0] != 1 ||
		!snap.Exams[0].StartDate.Equal(start) || snap.Results[0].Answers[0] != "a" {
		t.Errorf("clone shares memory with original: %+v", snap)
	}
}

func TestJSONFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	s, err := Open(ctx, NewJSONFile(path), path)
	if err != nil {
		t.Fatalf("Open missing file: %v", err)
	}
	insertTestQuestion(t, s, "What is Go?")

	reopened, err := Open(ctx, NewJSONFile(path), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened.View(func(snap *Snapshot) error {
		if len(snap.Questions) != 1 || snap.Questions[0].Text != "What is Go?" {
			t.Errorf("unexpected questions: %+v", snap.Questions)
		}
		return nil
	})
}

func TestOpenRejectsCorruptData(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"users": [`},
		{"duplicate usernames", `{"users": [{"username": "bob"}, {"username": "bob"}]}`},
		{"duplicate question ids", `{"questions": [{"id": 1}, {"id": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := Open(ctx, NewJSONFile(path), path)
			if err == nil {
				t.Fatal("expected load error")
			}
			if !IsLoadError(err) {
				t.Errorf("expected *LoadError, got %T: %v", err, err)
			}
		})
	}
}
