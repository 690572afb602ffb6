package domain

import (
	"fmt"
	"sort"
)

// ValidateQuestions checks that question content can be played.
// An empty set is valid and yields a zero-score session.
func ValidateQuestions(questions []QuizQuestion) error {
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidQuestion, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}

		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %q needs at least two options", ErrInvalidQuestion, q.ID)
		}
		optionIDs := make(map[string]struct{}, len(q.Options))
		correct := 0
		for _, opt := range q.Options {
			if _, dup := optionIDs[opt.ID]; dup || opt.ID == "" {
				return fmt.Errorf("%w: question %q has a missing or duplicate option id", ErrInvalidQuestion, q.ID)
			}
			optionIDs[opt.ID] = struct{}{}
			if opt.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %q has %d correct options", ErrInvalidQuestion, q.ID, correct)
		}
	}
	return nil
}

// SortLeaderboard orders entries by score desc, then whoever reached the score first, then name.
func SortLeaderboard(entries []LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].AchievedAt.Equal(entries[j].AchievedAt) {
			return entries[i].AchievedAt.Before(entries[j].AchievedAt)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
}

// BestAttempts reduces attempts to one leaderboard entry per user and sorts them.
func BestAttempts(attempts []Attempt) []LeaderboardEntry {
	best := make(map[string]LeaderboardEntry)
	for _, a := range attempts {
		current, ok := best[a.UserID]
		if ok && (current.Score > a.Score || (current.Score == a.Score && !a.SubmittedAt.Before(current.AchievedAt))) {
			continue
		}
		best[a.UserID] = LeaderboardEntry{
			UserID:      a.UserID,
			DisplayName: a.DisplayName,
			Score:       a.Score,
			Accuracy:    a.Accuracy,
			AchievedAt:  a.SubmittedAt,
		}
	}
	entries := make([]LeaderboardEntry, 0, len(best))
	for _, e := range best {
		entries = append(entries, e)
	}
	SortLeaderboard(entries)
	return entries
}
