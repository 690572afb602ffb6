package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"khodkquiz/internal/domain"
)

// ResultAPI is the quiz API operation that stores a finished attempt.
type ResultAPI interface {
	SubmitResult(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error)
}

// Submitter forwards a submission to the quiz API with a bounded timeout and no retries.
type Submitter struct {
	api     ResultAPI
	timeout time.Duration
	log     *slog.Logger
}

// NewSubmitter wraps api. A non-positive timeout disables the deadline.
func NewSubmitter(api ResultAPI, timeout time.Duration, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{api: api, timeout: timeout, log: logger}
}

// Submit sends sub once. Expiry of the timeout is reported as an error like any other failure.
func (s *Submitter) Submit(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.api.SubmitResult(ctx, sub)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.SubmissionResult{}, fmt.Errorf("submit result: no response within %s: %w", s.timeout, err)
		}
		return domain.SubmissionResult{}, fmt.Errorf("submit result: %w", err)
	}
	s.log.Debug("result submitted", "quiz_id", sub.QuizID, "attempt", res.AttemptNumber, "took", time.Since(start))
	return res, nil
}

// BuildSubmission assembles the payload for a finished session.
func BuildSubmission(quizID string, st State, now time.Time) domain.Submission {
	elapsed := now.Sub(st.SessionStartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return domain.Submission{
		QuizID:         quizID,
		Score:          st.Score,
		CorrectAnswers: st.CorrectCount,
		TotalQuestions: len(st.Answers),
		TimeTaken:      seconds(elapsed).InexactFloat64(),
		Answers:        append([]domain.AnswerRecord(nil), st.Answers...),
		StartedAt:      st.SessionStartedAt,
	}
}
