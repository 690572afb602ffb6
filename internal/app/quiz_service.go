package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"khodkquiz/internal/domain"
	"khodkquiz/internal/engine"

	"github.com/google/uuid"
)

// HubRepository abstracts where live leaderboard hubs are tracked (in-memory, Redis, etc).
type HubRepository interface {
	GetOrCreate(quizID string) *Hub
	Get(quizID string) (*Hub, bool)
	// DeleteIfEmpty unregisters hub if it is still the registered hub of its quiz
	// and has no subscribers.
	DeleteIfEmpty(hub *Hub)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptStore persists submitted attempts.
type AttemptStore interface {
	CountAttempts(ctx context.Context, quizID, userID string) (int, error)
	// SaveAttempt assigns attempt.Number and stores the attempt. When maxAttempts is positive
	// and the user already used them all, it returns domain.ErrAttemptLimit and stores nothing.
	SaveAttempt(ctx context.Context, attempt *domain.Attempt, maxAttempts int) error
	BestAttempts(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
}

// Publisher announces stored attempts to other systems.
type Publisher interface {
	PublishAttempt(ctx context.Context, ev domain.AttemptSubmitted) error
}

// Options tune a QuizService.
type Options struct {
	// DefaultMaxAttempts applies to quizzes without their own limit; 0 means unlimited.
	DefaultMaxAttempts int
	Publisher          Publisher
	Now                func() time.Time
	Logger             *slog.Logger
}

// QuizService contains the quiz API use cases.
type QuizService struct {
	quizzes            QuizRepository
	attempts           AttemptStore
	hubs               HubRepository
	publisher          Publisher
	defaultMaxAttempts int
	now                func() time.Time
	log                *slog.Logger
}

func NewQuizService(quizzes QuizRepository, attempts AttemptStore, hubs HubRepository, opts Options) *QuizService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &QuizService{
		quizzes:            quizzes,
		attempts:           attempts,
		hubs:               hubs,
		publisher:          opts.Publisher,
		defaultMaxAttempts: opts.DefaultMaxAttempts,
		now:                opts.Now,
		log:                opts.Logger,
	}
}

// Questions returns the questions of a quiz in presentation order.
func (s *QuizService) Questions(ctx context.Context, quizID string) ([]domain.QuizQuestion, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.Questions == nil {
		return []domain.QuizQuestion{}, nil
	}
	return quiz.Questions, nil
}

// Eligibility reports whether userID may start another attempt on quizID.
func (s *QuizService) Eligibility(ctx context.Context, quizID, userID string) (domain.AttemptEligibility, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptEligibility{}, err
	}
	count, err := s.attempts.CountAttempts(ctx, quizID, userID)
	if err != nil {
		return domain.AttemptEligibility{}, fmt.Errorf("count attempts: %w", err)
	}
	return eligibility(count, s.maxAttempts(quiz)), nil
}

// Submit validates and stores a finished attempt, then refreshes the live leaderboard.
func (s *QuizService) Submit(ctx context.Context, user domain.User, sub domain.Submission) (domain.SubmissionResult, error) {
	if user.ID == "" {
		return domain.SubmissionResult{}, domain.ErrUnauthenticated
	}
	quiz, err := s.quizzes.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if err := validateSubmission(quiz, sub); err != nil {
		return domain.SubmissionResult{}, err
	}

	limit := s.maxAttempts(quiz)
	attempt := domain.Attempt{
		ID:             uuid.NewString(),
		QuizID:         quiz.ID,
		UserID:         user.ID,
		DisplayName:    user.DisplayName,
		Score:          sub.Score,
		CorrectAnswers: sub.CorrectAnswers,
		TotalQuestions: sub.TotalQuestions,
		Accuracy:       engine.LocalAccuracy(sub.CorrectAnswers, sub.TotalQuestions),
		TimeTaken:      sub.TimeTaken,
		Answers:        sub.Answers,
		StartedAt:      sub.StartedAt,
		SubmittedAt:    s.now(),
	}
	if err := s.attempts.SaveAttempt(ctx, &attempt, limit); err != nil {
		return domain.SubmissionResult{}, err
	}
	s.log.Info("attempt stored", "quiz_id", quiz.ID, "user_id", user.ID, "attempt", attempt.Number, "score", attempt.Score)

	if s.publisher != nil {
		ev := domain.AttemptSubmitted{
			AttemptID:     attempt.ID,
			QuizID:        attempt.QuizID,
			UserID:        attempt.UserID,
			DisplayName:   attempt.DisplayName,
			AttemptNumber: attempt.Number,
			Score:         attempt.Score,
			Accuracy:      attempt.Accuracy,
			SubmittedAt:   attempt.SubmittedAt,
		}
		if err := s.publisher.PublishAttempt(ctx, ev); err != nil {
			s.log.Warn("publish attempt failed", "quiz_id", quiz.ID, "err", err)
		}
	}

	if hub, ok := s.hubs.Get(quiz.ID); ok {
		if err := s.refresh(ctx, hub, quiz.ID); err != nil {
			s.log.Warn("refresh leaderboard failed", "quiz_id", quiz.ID, "err", err)
		}
	}

	return domain.SubmissionResult{
		AttemptNumber:     attempt.Number,
		Score:             attempt.Score,
		Accuracy:          attempt.Accuracy,
		CorrectAnswers:    attempt.CorrectAnswers,
		TotalQuestions:    attempt.TotalQuestions,
		RemainingAttempts: eligibility(attempt.Number, limit).RemainingAttempts,
	}, nil
}

// Leaderboard returns the best attempt per user, highest score first.
func (s *QuizService) Leaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Leaderboard{}, err
	}
	entries, err := s.attempts.BestAttempts(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	domain.SortLeaderboard(entries)
	return domain.Leaderboard{QuizID: quizID, Entries: entries, UpdatedAt: s.now()}, nil
}

// Subscribe returns a channel that receives leaderboard updates for a quiz.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, nil, err
	}
	for {
		hub := s.hubs.GetOrCreate(quizID)
		if err := s.refresh(ctx, hub, quizID); err != nil {
			s.hubs.DeleteIfEmpty(hub)
			return nil, nil, err
		}

		ch, unsubscribe := hub.subscribe()
		// the last subscriber may have left while we refreshed; a hub that is no
		// longer registered never sees another Submit
		if current, ok := s.hubs.Get(quizID); !ok || current != hub {
			unsubscribe()
			continue
		}
		cancel := func() {
			if unsubscribe() {
				s.hubs.DeleteIfEmpty(hub)
			}
		}
		return ch, cancel, nil
	}
}

func (s *QuizService) refresh(ctx context.Context, hub *Hub, quizID string) error {
	entries, err := s.attempts.BestAttempts(ctx, quizID)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	hub.publish(entries)
	return nil
}

func (s *QuizService) maxAttempts(quiz domain.Quiz) int {
	if quiz.MaxAttempts > 0 {
		return quiz.MaxAttempts
	}
	return s.defaultMaxAttempts
}

func eligibility(count, limit int) domain.AttemptEligibility {
	if limit <= 0 {
		return domain.AttemptEligibility{CanAttempt: true, AttemptCount: count, MaxAttempts: 0, RemainingAttempts: -1}
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.AttemptEligibility{
		CanAttempt:        remaining > 0,
		AttemptCount:      count,
		MaxAttempts:       limit,
		RemainingAttempts: remaining,
	}
}

// validateSubmission checks that the payload is consistent with the quiz content.
func validateSubmission(quiz domain.Quiz, sub domain.Submission) error {
	if sub.Score < 0 || sub.CorrectAnswers < 0 || sub.TotalQuestions < 0 || sub.TimeTaken < 0 {
		return fmt.Errorf("%w: negative values", domain.ErrInvalidSubmission)
	}
	if sub.TotalQuestions != len(quiz.Questions) {
		return fmt.Errorf("%w: quiz has %d questions, got %d", domain.ErrInvalidSubmission, len(quiz.Questions), sub.TotalQuestions)
	}
	if len(sub.Answers) != sub.TotalQuestions {
		return fmt.Errorf("%w: %d answers for %d questions", domain.ErrInvalidSubmission, len(sub.Answers), sub.TotalQuestions)
	}
	if sub.CorrectAnswers > sub.TotalQuestions {
		return fmt.Errorf("%w: more correct answers than questions", domain.ErrInvalidSubmission)
	}
	if sub.Score > engine.MaxQuestionScore*sub.CorrectAnswers {
		return fmt.Errorf("%w: score %d exceeds maximum for %d correct answers", domain.ErrInvalidSubmission, sub.Score, sub.CorrectAnswers)
	}

	questions := make(map[string]domain.QuizQuestion, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions[q.ID] = q
	}
	seen := make(map[string]struct{}, len(sub.Answers))
	correct := 0
	for _, ans := range sub.Answers {
		q, ok := questions[ans.QuestionID]
		if !ok {
			return fmt.Errorf("%w: %w %q", domain.ErrInvalidSubmission, domain.ErrQuestionNotFound, ans.QuestionID)
		}
		if _, dup := seen[ans.QuestionID]; dup {
			return fmt.Errorf("%w: question %q answered twice", domain.ErrInvalidSubmission, ans.QuestionID)
		}
		seen[ans.QuestionID] = struct{}{}
		if ans.SelectedOptionID == nil {
			continue
		}
		if !hasOption(q, *ans.SelectedOptionID) {
			return fmt.Errorf("%w: %w %q", domain.ErrInvalidSubmission, domain.ErrOptionNotFound, *ans.SelectedOptionID)
		}
		if ans.IsCorrect {
			correct++
		}
	}
	if correct != sub.CorrectAnswers {
		return fmt.Errorf("%w: correct answers %d do not match records (%d)", domain.ErrInvalidSubmission, sub.CorrectAnswers, correct)
	}
	return nil
}

func hasOption(q domain.QuizQuestion, optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}
