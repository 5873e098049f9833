package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pavelanni/examhall/internal/model"

	_ "modernc.org/sqlite"
)

// SQLite mirrors the records into a SQLite database, one table per collection.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY,
		text TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		duration INTEGER NOT NULL,
		question_ids TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		start_date DATETIME,
		end_date DATETIME,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		exam_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		correct_count INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		submitted_at DATETIME NOT NULL,
		answers TEXT NOT NULL,
		time_taken INTEGER,
		detailed_results TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads every table into a snapshot.
func (s *SQLite) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var err error
	if snap.Users, err = s.loadUsers(ctx); err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	if snap.Questions, err = s.loadQuestions(ctx); err != nil {
		return nil, fmt.Errorf("questions: %w", err)
	}
	if snap.Exams, err = s.loadExams(ctx); err != nil {
		return nil, fmt.Errorf("exams: %w", err)
	}
	if snap.Results, err = s.loadResults(ctx); err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	if snap.NextQuestionID, err = s.nextQuestionID(ctx); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return snap, nil
}

func (s *SQLite) loadUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, password_hash, name, role, email, created_at FROM users ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.Username, &u.PasswordHash, &u.Name, &u.Role, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLite) loadQuestions(ctx context.Context) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, options, correct_answer FROM questions ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options string
		if err := rows.Scan(&q.ID, &q.Text, &options, &q.CorrectAnswer); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("question %d options: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *SQLite) loadExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, duration, question_ids, active, start_date, end_date, description, created_at, updated_at
		 FROM exams ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		var questionIDs string
		var start, end sql.NullTime
		if err := rows.Scan(&e.ID, &e.Title, &e.Duration, &questionIDs, &e.Active, &start, &end,
			&e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(questionIDs), &e.QuestionIDs); err != nil {
			return nil, fmt.Errorf("exam %s question ids: %w", e.ID, err)
		}
		if start.Valid {
			e.StartDate = &start.Time
		}
		if end.Valid {
			e.EndDate = &end.Time
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

func (s *SQLite) loadResults(ctx context.Context) ([]model.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, exam_id, score, correct_count, total_questions, submitted_at, answers, time_taken, detailed_results
		 FROM results ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.Result
	for rows.Next() {
		var r model.Result
		var answers, details string
		var timeTaken sql.NullInt64
		if err := rows.Scan(&r.ID, &r.StudentID, &r.ExamID, &r.Score, &r.CorrectCount, &r.TotalQuestions,
			&r.SubmittedAt, &answers, &timeTaken, &details); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("result %s answers: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(details), &r.DetailedResults); err != nil {
			return nil, fmt.Errorf("result %s details: %w", r.ID, err)
		}
		if timeTaken.Valid {
			v := int(timeTaken.Int64)
			r.TimeTaken = &v
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLite) nextQuestionID(ctx context.Context) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'next_question_id'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// Commit replaces the rows of one table with the snapshot's collection inside
// a single transaction.
func (s *SQLite) Commit(ctx context.Context, coll Collection, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch coll {
	case Users:
		err = commitUsers(ctx, tx, snap.Users)
	case Questions:
		err = commitQuestions(ctx, tx, snap.Questions, snap.NextQuestionID)
	case Exams:
		err = commitExams(ctx, tx, snap.Exams)
	case Results:
		err = commitResults(ctx, tx, snap.Results)
	default:
		err = fmt.Errorf("unknown collection %q", coll)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func commitUsers(ctx context.Context, tx *sql.Tx, users []model.User) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return err
	}
	for i, u := range users {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, password_hash, name, role, email, created_at, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.Username, u.PasswordHash, u.Name, u.Role, u.Email, u.CreatedAt, i,
		)
		if err != nil {
			return fmt.Errorf("insert user %s: %w", u.Username, err)
		}
	}
	return nil
}

func commitQuestions(ctx context.Context, tx *sql.Tx, questions []model.Question, nextID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions`); err != nil {
		return err
	}
	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO questions (id, text, options, correct_answer, position) VALUES (?, ?, ?, ?, ?)`,
			q.ID, q.Text, string(options), q.CorrectAnswer, i,
		)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", q.ID, err)
		}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES ('next_question_id', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.FormatInt(nextID, 10),
	)
	return err
}

func commitExams(ctx context.Context, tx *sql.Tx, exams []model.Exam) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM exams`); err != nil {
		return err
	}
	for i, e := range exams {
		questionIDs, err := json.Marshal(e.QuestionIDs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO exams (id, title, duration, question_ids, active, start_date, end_date, description, created_at, updated_at, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Title, e.Duration, string(questionIDs), e.Active, nullTime(e.StartDate), nullTime(e.EndDate),
			e.Description, e.CreatedAt, e.UpdatedAt, i,
		)
		if err != nil {
			return fmt.Errorf("insert exam %s: %w", e.ID, err)
		}
	}
	return nil
}

// commitResults appends the rows that are not stored yet. Results are never
// modified or removed, so existing rows are left as they are.
func commitResults(ctx context.Context, tx *sql.Tx, results []model.Result) error {
	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&stored); err != nil {
		return err
	}
	if stored > len(results) {
		return fmt.Errorf("results table holds %d rows, snapshot %d", stored, len(results))
	}
	for i := stored; i < len(results); i++ {
		r := results[i]
		answers, err := json.Marshal(r.Answers)
		if err != nil {
			return err
		}
		details, err := json.Marshal(r.DetailedResults)
		if err != nil {
			return err
		}
		var timeTaken sql.NullInt64
		if r.TimeTaken != nil {
			timeTaken = sql.NullInt64{Int64: int64(*r.TimeTaken), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (id, student_id, exam_id, score, correct_count, total_questions, submitted_at, answers, time_taken, detailed_results, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.StudentID, r.ExamID, r.Score, r.CorrectCount, r.TotalQuestions, r.SubmittedAt,
			string(answers), timeTaken, string(details), i,
		)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", r.ID, err)
		}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
