package domain

import "time"

// AnswerOption is one selectable answer of a question.
type AnswerOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// QuizQuestion models a multiple-choice or true/false question with exactly one correct option.
// Option order is the presentation order and is kept for result display.
type QuizQuestion struct {
	ID      string         `json:"id"`
	Text    string         `json:"questionText"`
	Options []AnswerOption `json:"options"`
}

// Quiz is a collection of questions plus its attempt policy.
type Quiz struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	MaxAttempts int            `json:"maxAttempts"` // 0 falls back to the configured default
	Questions   []QuizQuestion `json:"questions"`
}

// AnswerRecord is appended once per question transition and never changes afterwards.
type AnswerRecord struct {
	QuestionID       string  `json:"questionId"`
	SelectedOptionID *string `json:"selectedOptionId"` // nil on timeout
	IsCorrect        bool    `json:"isCorrect"`
	TimeTakenSeconds float64 `json:"timeTaken"`
}

// AttemptEligibility tells whether a user may start another attempt.
// RemainingAttempts is -1 when the quiz has no attempt limit.
type AttemptEligibility struct {
	CanAttempt        bool `json:"canAttempt"`
	AttemptCount      int  `json:"attemptCount"`
	MaxAttempts       int  `json:"maxAttempts"`
	RemainingAttempts int  `json:"remainingAttempts"`
}

// Submission is the result payload sent once a session finishes.
type Submission struct {
	QuizID         string         `json:"quizId"`
	Score          int            `json:"score"`
	CorrectAnswers int            `json:"correctAnswers"`
	TotalQuestions int            `json:"totalQuestions"`
	TimeTaken      float64        `json:"timeTaken"`
	Answers        []AnswerRecord `json:"answers"`
	StartedAt      time.Time      `json:"startedAt"`
}

// SubmissionResult is the authoritative record returned for a stored attempt.
type SubmissionResult struct {
	AttemptNumber     int `json:"attemptNumber"`
	Score             int `json:"score"`
	Accuracy          int `json:"accuracy"`
	CorrectAnswers    int `json:"correctAnswers"`
	TotalQuestions    int `json:"totalQuestions"`
	RemainingAttempts int `json:"remainingAttempts"`
}

// Attempt is a persisted submission.
type Attempt struct {
	ID             string         `json:"id"`
	QuizID         string         `json:"quizId"`
	UserID         string         `json:"userId"`
	DisplayName    string         `json:"displayName"`
	Number         int            `json:"attemptNumber"`
	Score          int            `json:"score"`
	CorrectAnswers int            `json:"correctAnswers"`
	TotalQuestions int            `json:"totalQuestions"`
	Accuracy       int            `json:"accuracy"`
	TimeTaken      float64        `json:"timeTaken"`
	Answers        []AnswerRecord `json:"answers"`
	StartedAt      time.Time      `json:"startedAt"`
	SubmittedAt    time.Time      `json:"submittedAt"`
}

// User identifies the caller of an authenticated operation.
type User struct {
	ID          string
	DisplayName string
}

// LeaderboardEntry is a user's best attempt on a quiz.
type LeaderboardEntry struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	Accuracy    int       `json:"accuracy"`
	AchievedAt  time.Time `json:"achievedAt"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AttemptSubmitted is published after an attempt has been stored.
type AttemptSubmitted struct {
	AttemptID     string    `json:"attemptId"`
	QuizID        string    `json:"quizId"`
	UserID        string    `json:"userId"`
	DisplayName   string    `json:"displayName"`
	AttemptNumber int       `json:"attemptNumber"`
	Score         int       `json:"score"`
	Accuracy      int       `json:"accuracy"`
	SubmittedAt   time.Time `json:"submittedAt"`
}
