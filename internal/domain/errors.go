package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidQuestion is returned when question content breaks the one-correct-option rule.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrAttemptLimit is returned when a user has no attempts left.
	ErrAttemptLimit = errors.New("attempt limit reached")
	// ErrInvalidSubmission is returned for inconsistent result payloads.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrUnauthenticated is returned when an operation needs a signed-in user.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrFetch wraps failures to load questions or eligibility.
	ErrFetch = errors.New("fetch failed")
)
