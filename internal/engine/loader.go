package engine

import (
	"context"
	"fmt"

	"khodkquiz/internal/domain"

	"golang.org/x/sync/errgroup"
)

// QuestionSource fetches the questions of a quiz.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, quizID string) ([]domain.QuizQuestion, error)
}

// EligibilitySource fetches whether the signed-in user may start an attempt.
type EligibilitySource interface {
	FetchEligibility(ctx context.Context, quizID string) (domain.AttemptEligibility, error)
}

// Setup is everything a session needs before it may leave the intro phase.
type Setup struct {
	Questions   []domain.QuizQuestion
	Eligibility *domain.AttemptEligibility
}

// Load fetches questions and, for signed-in users, eligibility concurrently.
// Either failure fails the whole load with domain.ErrFetch.
func Load(ctx context.Context, quizID string, authenticated bool, questions QuestionSource, eligibility EligibilitySource) (Setup, error) {
	var setup Setup
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		qs, err := questions.FetchQuestions(gctx, quizID)
		if err != nil {
			return fmt.Errorf("%w: questions for %s: %w", domain.ErrFetch, quizID, err)
		}
		setup.Questions = qs
		return nil
	})

	if authenticated && eligibility != nil {
		g.Go(func() error {
			e, err := eligibility.FetchEligibility(gctx, quizID)
			if err != nil {
				return fmt.Errorf("%w: eligibility for %s: %w", domain.ErrFetch, quizID, err)
			}
			setup.Eligibility = &e
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Setup{}, err
	}
	return setup, nil
}
