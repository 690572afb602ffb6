// Package sqlite is a single-file store for running the quiz API without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"khodkquiz/internal/domain"

	_ "modernc.org/sqlite" // driver: sqlite
)

// Store implements both the quiz loader and the attempt store on one SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// one writer keeps attempt numbering serialised
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  data TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  attempt_number INTEGER NOT NULL,
  score INTEGER NOT NULL,
  correct_answers INTEGER NOT NULL,
  total_questions INTEGER NOT NULL,
  accuracy INTEGER NOT NULL,
  time_taken REAL NOT NULL,
  answers_json TEXT NOT NULL,
  started_at INTEGER,
  submitted_at INTEGER NOT NULL,
  UNIQUE (quiz_id, user_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS quiz_attempts_quiz_idx ON quiz_attempts (quiz_id, score DESC);
`

func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM quizzes WHERE id = ?`, quizID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	return quiz, nil
}

// SaveQuiz inserts or replaces a quiz document.
func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := domain.ValidateQuestions(quiz.Questions); err != nil {
		return err
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quizzes (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		quiz.ID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}

func (s *Store) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM quiz_attempts WHERE quiz_id = ? AND user_id = ?`, quizID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) SaveAttempt(ctx context.Context, attempt *domain.Attempt, maxAttempts int) (err error) {
	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	if err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM quiz_attempts WHERE quiz_id = ? AND user_id = ?`,
		attempt.QuizID, attempt.UserID).Scan(&count); err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}
	if maxAttempts > 0 && count >= maxAttempts {
		return domain.ErrAttemptLimit
	}
	attempt.Number = count + 1

	var startedAt sql.NullInt64
	if !attempt.StartedAt.IsZero() {
		startedAt = sql.NullInt64{Int64: attempt.StartedAt.UnixMilli(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO quiz_attempts (
			id, quiz_id, user_id, display_name, attempt_number, score, correct_answers,
			total_questions, accuracy, time_taken, answers_json, started_at, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.QuizID, attempt.UserID, attempt.DisplayName, attempt.Number,
		attempt.Score, attempt.CorrectAnswers, attempt.TotalQuestions, attempt.Accuracy,
		attempt.TimeTaken, string(answers), startedAt, attempt.SubmittedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) BestAttempts(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, display_name, score, accuracy, submitted_at
		FROM quiz_attempts WHERE quiz_id = ?`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var (
			a           domain.Attempt
			submittedAt int64
		)
		if err := rows.Scan(&a.UserID, &a.DisplayName, &a.Score, &a.Accuracy, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.SubmittedAt = time.UnixMilli(submittedAt).UTC()
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.BestAttempts(attempts), nil
}
