package memory

import (
	"context"
	"sync"

	"khodkquiz/internal/domain"
)

// AttemptStore keeps submitted attempts in process memory.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string][]domain.Attempt // by quiz ID, in submission order
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string][]domain.Attempt)}
}

func (s *AttemptStore) CountAttempts(_ context.Context, quizID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(quizID, userID), nil
}

func (s *AttemptStore) SaveAttempt(_ context.Context, attempt *domain.Attempt, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.countLocked(attempt.QuizID, attempt.UserID)
	if maxAttempts > 0 && count >= maxAttempts {
		return domain.ErrAttemptLimit
	}
	attempt.Number = count + 1
	stored := *attempt
	stored.Answers = append([]domain.AnswerRecord(nil), attempt.Answers...)
	s.attempts[attempt.QuizID] = append(s.attempts[attempt.QuizID], stored)
	return nil
}

func (s *AttemptStore) BestAttempts(_ context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.BestAttempts(s.attempts[quizID]), nil
}

func (s *AttemptStore) countLocked(quizID, userID string) int {
	n := 0
	for _, a := range s.attempts[quizID] {
		if a.UserID == userID {
			n++
		}
	}
	return n
}
