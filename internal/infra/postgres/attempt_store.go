package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"khodkquiz/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttemptStore persists attempts in the quiz_attempts table.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM quiz_attempts WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

// SaveAttempt numbers and inserts the attempt inside a transaction holding an advisory
// lock per (quiz, user), so concurrent submissions cannot exceed maxAttempts.
func (s *AttemptStore) SaveAttempt(ctx context.Context, attempt *domain.Attempt, maxAttempts int) error {
	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, attempt.QuizID, attempt.UserID); err != nil {
			return fmt.Errorf("lock attempts: %w", err)
		}

		var count int
		err := tx.QueryRow(ctx,
			`SELECT count(*) FROM quiz_attempts WHERE quiz_id=$1 AND user_id=$2`,
			attempt.QuizID, attempt.UserID).Scan(&count)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if maxAttempts > 0 && count >= maxAttempts {
			return domain.ErrAttemptLimit
		}
		attempt.Number = count + 1

		_, err = tx.Exec(ctx, `
			INSERT INTO quiz_attempts (
				id, quiz_id, user_id, display_name, attempt_number, score, correct_answers,
				total_questions, accuracy, time_taken, answers, started_at, submitted_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13)`,
			attempt.ID, attempt.QuizID, attempt.UserID, attempt.DisplayName, attempt.Number,
			attempt.Score, attempt.CorrectAnswers, attempt.TotalQuestions, attempt.Accuracy,
			attempt.TimeTaken, string(answers), attempt.StartedAt, attempt.SubmittedAt)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) BestAttempts(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (user_id) user_id, display_name, score, accuracy, submitted_at
		FROM quiz_attempts
		WHERE quiz_id=$1
		ORDER BY user_id, score DESC, submitted_at ASC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Score, &e.Accuracy, &e.AchievedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	domain.SortLeaderboard(entries)
	return entries, nil
}
