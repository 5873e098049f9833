package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pavelanni/examhall/internal/metrics"
	"github.com/pavelanni/examhall/internal/model"
)

// Collection names one of the record collections a mutation touches.
type Collection string

const (
	Users     Collection = "users"
	Questions Collection = "questions"
	Exams     Collection = "exams"
	Results   Collection = "results"
)

// Backend is the durable mirror of the in-memory records.
type Backend interface {
	// Load reads every collection. A missing store yields an empty snapshot;
	// unreadable or corrupt data is an error.
	Load(ctx context.Context) (*Snapshot, error)
	// Commit persists the named collection of snap.
	Commit(ctx context.Context, coll Collection, snap *Snapshot) error
	Close() error
}

// LoadError reports that the backend could not produce a usable snapshot.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load records from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Store owns the records. Writers hold the lock across check, mutate and
// commit; readers see the last committed snapshot.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	data    *Snapshot
}

// Open loads all records from the backend. It fails instead of starting empty
// when the backend holds data it cannot read.
func Open(ctx context.Context, backend Backend, source string) (*Store, error) {
	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if err := snap.check(); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if snap.NextQuestionID <= snap.maxQuestionID() {
		snap.NextQuestionID = snap.maxQuestionID() + 1
	}
	slog.Info("loaded records",
		"source", source,
		"users", len(snap.Users),
		"questions", len(snap.Questions),
		"exams", len(snap.Exams),
		"results", len(snap.Results),
	)
	return &Store{backend: backend, data: snap}, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// View runs fn against the current snapshot under the read lock.
// fn must not modify the snapshot or retain slices beyond the call.
func (s *Store) View(fn func(*Snapshot) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// Update runs fn against a private copy of the records, commits the copy's
// coll collection and swaps it in. If fn or the commit fails the copy is
// discarded and the committed state is left untouched.
func (s *Store) Update(ctx context.Context, coll Collection, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := s.data.Clone()
	if err := fn(scratch); err != nil {
		return err
	}
	if err := s.backend.Commit(ctx, coll, scratch); err != nil {
		metrics.StoreCommits.WithLabelValues(string(coll), "failure").Inc()
		slog.Error("commit failed, discarding mutation", "collection", coll, "error", err)
		return fmt.Errorf("commit %s: %w: %w", coll, model.ErrPersistence, err)
	}
	metrics.StoreCommits.WithLabelValues(string(coll), "success").Inc()
	s.data = scratch
	return nil
}

// Snapshot is a full copy of the records.
type Snapshot struct {
	Users          []model.User     `json:"users"`
	Questions      []model.Question `json:"questions"`
	Exams          []model.Exam     `json:"exams"`
	Results        []model.Result   `json:"results"`
	NextQuestionID int64            `json:"nextQuestionId,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Users:          slices.Clone(s.Users),
		Questions:      make([]model.Question, len(s.Questions)),
		Exams:          make([]model.Exam, len(s.Exams)),
		Results:        make([]model.Result, len(s.Results)),
		NextQuestionID: s.NextQuestionID,
	}
	for i, q := range s.Questions {
		q.Options = slices.Clone(q.Options)
		c.Questions[i] = q
	}
	for i, e := range s.Exams {
		e.QuestionIDs = slices.Clone(e.QuestionIDs)
		if e.StartDate != nil {
			t := *e.StartDate
			e.StartDate = &t
		}
		if e.EndDate != nil {
			t := *e.EndDate
			e.EndDate = &t
		}
		c.Exams[i] = e
	}
	for i, r := range s.Results {
		r.Answers = slices.Clone(r.Answers)
		r.DetailedResults = slices.Clone(r.DetailedResults)
		if r.TimeTaken != nil {
			v := *r.TimeTaken
			r.TimeTaken = &v
		}
		c.Results[i] = r
	}
	return c
}

// User returns the index of the user with the given username, or -1.
func (s *Snapshot) User(username string) int {
	return slices.IndexFunc(s.Users, func(u model.User) bool { return u.Username == username })
}

// Question returns the index of the question with the given id, or -1.
func (s *Snapshot) Question(id int64) int {
	return slices.IndexFunc(s.Questions, func(q model.Question) bool { return q.ID == id })
}

// Exam returns the index of the exam with the given id, or -1.
func (s *Snapshot) Exam(id string) int {
	return slices.IndexFunc(s.Exams, func(e model.Exam) bool { return e.ID == id })
}

// ResultsForStudent counts results submitted by username.
func (s *Snapshot) ResultsForStudent(username string) int {
	n := 0
	for _, r := range s.Results {
		if r.StudentID == username {
			n++
		}
	}
	return n
}

// AllocQuestionID hands out the next question id. Ids are never reused.
func (s *Snapshot) AllocQuestionID() int64 {
	if s.NextQuestionID <= s.maxQuestionID() {
		s.NextQuestionID = s.maxQuestionID() + 1
	}
	id := s.NextQuestionID
	s.NextQuestionID++
	return id
}

func (s *Snapshot) maxQuestionID() int64 {
	var top int64
	for _, q := range s.Questions {
		if q.ID > top {
			top = q.ID
		}
	}
	return top
}

// check rejects snapshots whose identities collide.
func (s *Snapshot) check() error {
	users := make(map[string]bool, len(s.Users))
	for _, u := range s.Users {
		if users[u.Username] {
			return fmt.Errorf("duplicate username %q", u.Username)
		}
		users[u.Username] = true
	}
	questions := make(map[int64]bool, len(s.Questions))
	for _, q := range s.Questions {
		if questions[q.ID] {
			return fmt.Errorf("duplicate question id %d", q.ID)
		}
		questions[q.ID] = true
	}
	exams := make(map[string]bool, len(s.Exams))
	for _, e := range s.Exams {
		if exams[e.ID] {
			return fmt.Errorf("duplicate exam id %q", e.ID)
		}
		exams[e.ID] = true
	}
	return nil
}

// IsLoadError reports whether err came from loading the backend.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
