package engine

import (
	"context"
	"errors"
	"testing"

	"khodkquiz/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	questions   []domain.QuizQuestion
	eligibility domain.AttemptEligibility
	qErr, eErr  error
	eCalls      int
}

func (s *stubSource) FetchQuestions(context.Context, string) ([]domain.QuizQuestion, error) {
	return s.questions, s.qErr
}

func (s *stubSource) FetchEligibility(context.Context, string) (domain.AttemptEligibility, error) {
	s.eCalls++
	return s.eligibility, s.eErr
}

func TestLoadFetchesBothForSignedInUser(t *testing.T) {
	src := &stubSource{
		questions:   questionSet(2),
		eligibility: domain.AttemptEligibility{CanAttempt: true, AttemptCount: 1, MaxAttempts: 3, RemainingAttempts: 2},
	}

	setup, err := Load(context.Background(), "quiz-1", true, src, src)
	require.NoError(t, err)
	assert.Len(t, setup.Questions, 2)
	require.NotNil(t, setup.Eligibility)
	assert.Equal(t, 2, setup.Eligibility.RemainingAttempts)
}

func TestLoadSkipsEligibilityForGuests(t *testing.T) {
	src := &stubSource{questions: questionSet(1)}

	setup, err := Load(context.Background(), "quiz-1", false, src, src)
	require.NoError(t, err)
	assert.Nil(t, setup.Eligibility)
	assert.Equal(t, 0, src.eCalls)
}

func TestLoadFailsWhenEitherFetchFails(t *testing.T) {
	boom := errors.New("503")

	_, err := Load(context.Background(), "quiz-1", true, &stubSource{qErr: boom}, &stubSource{})
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.ErrorIs(t, err, boom)

	_, err = Load(context.Background(), "quiz-1", true, &stubSource{questions: questionSet(1)}, &stubSource{eErr: boom})
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.Contains(t, err.Error(), "eligibility")
}
