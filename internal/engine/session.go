package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"khodkquiz/internal/domain"

	"github.com/shopspring/decimal"
)

// Phase is the position of a session in its lifecycle.
type Phase int

const (
	PhaseIntro Phase = iota
	PhasePlaying
	PhaseFeedback
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIntro:
		return "intro"
	case PhasePlaying:
		return "playing"
	case PhaseFeedback:
		return "feedback"
	case PhaseFinished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// EventKind names what a session is reporting to its observer.
type EventKind string

const (
	EventPhase        EventKind = "phase"
	EventTick         EventKind = "tick"
	EventAnswer       EventKind = "answer"
	EventAuthRequired EventKind = "auth_required"
	EventAttemptLimit EventKind = "attempt_limit"
	EventSubmitted    EventKind = "submitted"
	EventSubmitFailed EventKind = "submit_failed"
)

// Event is delivered to Options.Notify outside the session lock.
type Event struct {
	Kind          EventKind
	Phase         Phase
	QuestionIndex int
	Seconds       int
	Record        *domain.AnswerRecord
	Result        *domain.SubmissionResult
	Message       string
	Err           error
}

// Config holds the timing rules of a session.
type Config struct {
	TimeLimit     time.Duration
	Tick          time.Duration
	FeedbackDelay time.Duration
	SubmitTimeout time.Duration
	// AllowGuest lets unauthenticated users play with local scoring only.
	AllowGuest bool
}

// DefaultConfig returns the standard quiz timing.
func DefaultConfig() Config {
	return Config{
		TimeLimit:     25 * time.Second,
		Tick:          10 * time.Millisecond,
		FeedbackDelay: 2 * time.Second,
		SubmitTimeout: 10 * time.Second,
	}
}

// AuthGateway asks the user to sign in.
type AuthGateway interface {
	PromptSignIn()
}

// ResultSubmitter sends a finished session to the quiz API.
type ResultSubmitter interface {
	Submit(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error)
}

// Options wires a session to its collaborators.
type Options struct {
	QuizID        string
	Questions     []domain.QuizQuestion
	Authenticated bool
	Auth          AuthGateway
	Eligibility   *domain.AttemptEligibility
	Submitter     ResultSubmitter
	Clock         Clock
	Notify        func(Event)
	Logger        *slog.Logger
}

// State is a point-in-time copy of a session.
type State struct {
	Phase             Phase
	QuestionIndex     int
	Score             int
	CorrectCount      int
	Answers           []domain.AnswerRecord
	SessionStartedAt  time.Time
	QuestionStartedAt time.Time
	Remaining         decimal.Decimal
	LastAnswerCorrect bool
	Accuracy          int
	Submission        *domain.SubmissionResult
	SubmitErr         error
}

// Session is the quiz-taking state machine: intro, playing, feedback, finished.
// Timer callbacks and user input may arrive from different goroutines; the first
// event to leave the playing phase wins and later ones are discarded.
type Session struct {
	cfg           Config
	quizID        string
	questions     []domain.QuizQuestion
	authenticated bool
	auth          AuthGateway
	submitter     ResultSubmitter
	clock         Clock
	notify        func(Event)
	log           *slog.Logger
	limit         decimal.Decimal

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	countdown     *Countdown
	state         State
	eligibility   *domain.AttemptEligibility
	run           int
	cancelAdvance CancelFunc
	closed        bool
	pending       []Event
	effects       []func()
}

// NewSession validates the questions and returns a session in the intro phase.
func NewSession(cfg Config, opts Options) (*Session, error) {
	if err := domain.ValidateQuestions(opts.Questions); err != nil {
		return nil, err
	}
	if cfg.TimeLimit <= 0 {
		return nil, errors.New("time limit must be positive")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:           cfg,
		quizID:        opts.QuizID,
		questions:     opts.Questions,
		authenticated: opts.Authenticated,
		auth:          opts.Auth,
		submitter:     opts.Submitter,
		clock:         opts.Clock,
		notify:        opts.Notify,
		log:           opts.Logger.With("quiz_id", opts.QuizID),
		limit:         decimal.New(int64(cfg.TimeLimit/Resolution), -2),
		ctx:           ctx,
		cancel:        cancel,
		state:         State{Phase: PhaseIntro},
	}
	if opts.Eligibility != nil {
		e := *opts.Eligibility
		s.eligibility = &e
	}
	s.countdown = NewCountdown(opts.Clock, cfg.Tick, s.onSecond)
	return s, nil
}

// Start leaves the intro phase if the user is signed in and has attempts left.
func (s *Session) Start() bool {
	s.mu.Lock()
	if s.state.Phase != PhaseIntro {
		s.mu.Unlock()
		return false
	}
	ok := s.startLocked()
	s.unlockAndFlush()
	return ok
}

// Restart begins a fresh attempt after the session finished.
func (s *Session) Restart() bool {
	s.mu.Lock()
	if s.state.Phase != PhaseFinished {
		s.mu.Unlock()
		return false
	}
	ok := s.startLocked()
	s.unlockAndFlush()
	return ok
}

// Answer selects the option at index for the current question.
func (s *Session) Answer(index int) bool {
	s.mu.Lock()
	if !s.acceptingAnswerLocked() {
		s.mu.Unlock()
		return false
	}
	options := s.questions[s.state.QuestionIndex].Options
	if index < 0 || index >= len(options) {
		s.mu.Unlock()
		return false
	}
	s.answerLocked(options[index])
	s.unlockAndFlush()
	return true
}

// AnswerByID selects the option with the given ID for the current question.
func (s *Session) AnswerByID(optionID string) bool {
	s.mu.Lock()
	if !s.acceptingAnswerLocked() {
		s.mu.Unlock()
		return false
	}
	for _, opt := range s.questions[s.state.QuestionIndex].Options {
		if opt.ID == optionID {
			s.answerLocked(opt)
			s.unlockAndFlush()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// Reset returns to the intro phase and clears every accumulator.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopTimersLocked()
	s.run++
	s.state = State{Phase: PhaseIntro}
	s.emitLocked(Event{Kind: EventPhase, Phase: PhaseIntro})
	s.unlockAndFlush()
}

// Close cancels pending timers and any in-flight submission. The session ignores all later events.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.run++
	s.stopTimersLocked()
	s.cancel()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Answers = append([]domain.AnswerRecord(nil), s.state.Answers...)
	if st.Phase == PhasePlaying {
		st.Remaining = s.countdown.Remaining()
	}
	if st.Submission != nil {
		res := *st.Submission
		st.Submission = &res
		st.Accuracy = res.Accuracy
	} else {
		st.Accuracy = LocalAccuracy(st.CorrectCount, len(s.questions))
	}
	return st
}

// Eligibility returns the attempt eligibility currently known to the session.
func (s *Session) Eligibility() (domain.AttemptEligibility, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eligibility == nil {
		return domain.AttemptEligibility{}, false
	}
	return *s.eligibility, true
}

// Questions returns the questions of the session in presentation order.
func (s *Session) Questions() []domain.QuizQuestion {
	return s.questions
}

// TimeLimit returns the per-question time limit.
func (s *Session) TimeLimit() time.Duration {
	return s.cfg.TimeLimit
}

func (s *Session) startLocked() bool {
	if s.closed {
		return false
	}
	if !s.authenticated && !s.cfg.AllowGuest {
		s.emitLocked(Event{Kind: EventAuthRequired, Phase: s.state.Phase, Message: "sign in to take this quiz"})
		if s.auth != nil {
			s.effects = append(s.effects, s.auth.PromptSignIn)
		}
		return false
	}
	if s.authenticated && s.eligibility != nil && !s.eligibility.CanAttempt {
		s.emitLocked(Event{
			Kind:    EventAttemptLimit,
			Phase:   s.state.Phase,
			Message: fmt.Sprintf("attempt limit reached: %d of %d attempts used", s.eligibility.AttemptCount, s.eligibility.MaxAttempts),
		})
		return false
	}

	s.stopTimersLocked()
	s.run++
	now := s.clock.Now()
	s.state = State{
		Phase:             PhasePlaying,
		Answers:           make([]domain.AnswerRecord, 0, len(s.questions)),
		SessionStartedAt:  now,
		QuestionStartedAt: now,
	}

	if len(s.questions) == 0 {
		s.state.Phase = PhaseFinished
		s.log.Warn("quiz has no questions, finishing immediately")
		s.emitLocked(Event{Kind: EventPhase, Phase: PhaseFinished})
		return true
	}

	s.log.Debug("session started", "questions", len(s.questions), "run", s.run)
	s.emitLocked(Event{Kind: EventPhase, Phase: PhasePlaying})
	s.startQuestionLocked()
	return true
}

func (s *Session) startQuestionLocked() {
	run, index := s.run, s.state.QuestionIndex
	s.state.Remaining = s.limit
	s.countdown.Start(s.cfg.TimeLimit, func() { s.onTimeout(run, index) })
	s.emitLocked(Event{
		Kind:          EventTick,
		Phase:         PhasePlaying,
		QuestionIndex: index,
		Seconds:       displaySeconds(int64(s.cfg.TimeLimit / Resolution)),
	})
}

// acceptingAnswerLocked is false once the countdown has reached zero: the
// timeout callback may still be on its way, and it owns the transition.
func (s *Session) acceptingAnswerLocked() bool {
	if s.closed || s.state.Phase != PhasePlaying {
		return false
	}
	return !s.countdown.Remaining().IsZero()
}

func (s *Session) answerLocked(opt domain.AnswerOption) {
	s.countdown.Stop()
	remaining := s.countdown.Remaining()

	elapsed := s.clock.Now().Sub(s.state.QuestionStartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.cfg.TimeLimit {
		elapsed = s.cfg.TimeLimit
	}

	optionID := opt.ID
	record := domain.AnswerRecord{
		QuestionID:       s.questions[s.state.QuestionIndex].ID,
		SelectedOptionID: &optionID,
		IsCorrect:        opt.IsCorrect,
		TimeTakenSeconds: seconds(elapsed).InexactFloat64(),
	}
	if opt.IsCorrect {
		s.state.Score += QuestionScore(remaining, s.limit)
		s.state.CorrectCount++
	}
	s.state.Remaining = remaining
	s.enterFeedbackLocked(record)
}

func (s *Session) onTimeout(run, index int) {
	s.mu.Lock()
	if s.closed || run != s.run || s.state.Phase != PhasePlaying || index != s.state.QuestionIndex {
		s.mu.Unlock()
		return
	}
	record := domain.AnswerRecord{
		QuestionID:       s.questions[index].ID,
		SelectedOptionID: nil,
		IsCorrect:        false,
		TimeTakenSeconds: seconds(s.cfg.TimeLimit).InexactFloat64(),
	}
	s.state.Remaining = decimal.Zero
	s.enterFeedbackLocked(record)
	s.unlockAndFlush()
}

func (s *Session) onSecond(display int) {
	s.mu.Lock()
	if s.closed || s.state.Phase != PhasePlaying {
		s.mu.Unlock()
		return
	}
	s.emitLocked(Event{Kind: EventTick, Phase: PhasePlaying, QuestionIndex: s.state.QuestionIndex, Seconds: display})
	s.unlockAndFlush()
}

func (s *Session) enterFeedbackLocked(record domain.AnswerRecord) {
	s.state.Answers = append(s.state.Answers, record)
	s.state.LastAnswerCorrect = record.IsCorrect
	s.state.Phase = PhaseFeedback

	rec := record
	s.emitLocked(Event{Kind: EventAnswer, Phase: PhaseFeedback, QuestionIndex: s.state.QuestionIndex, Record: &rec})
	s.emitLocked(Event{Kind: EventPhase, Phase: PhaseFeedback, QuestionIndex: s.state.QuestionIndex})

	run := s.run
	s.cancelAdvance = s.clock.ScheduleAfter(s.cfg.FeedbackDelay, func() { s.advance(run) })
}

func (s *Session) advance(run int) {
	s.mu.Lock()
	if s.closed || run != s.run || s.state.Phase != PhaseFeedback {
		s.mu.Unlock()
		return
	}
	s.cancelAdvance = nil

	if s.state.QuestionIndex+1 < len(s.questions) {
		s.state.QuestionIndex++
		s.state.QuestionStartedAt = s.clock.Now()
		s.state.Phase = PhasePlaying
		s.emitLocked(Event{Kind: EventPhase, Phase: PhasePlaying, QuestionIndex: s.state.QuestionIndex})
		s.startQuestionLocked()
		s.unlockAndFlush()
		return
	}

	s.state.Phase = PhaseFinished
	s.log.Info("session finished", "score", s.state.Score, "correct", s.state.CorrectCount, "total", len(s.questions))
	s.emitLocked(Event{Kind: EventPhase, Phase: PhaseFinished, QuestionIndex: s.state.QuestionIndex})

	if s.authenticated && s.submitter != nil {
		sub := BuildSubmission(s.quizID, s.state, s.clock.Now())
		s.effects = append(s.effects, func() { s.submit(run, sub) })
	}
	s.unlockAndFlush()
}

func (s *Session) submit(run int, sub domain.Submission) {
	res, err := s.submitter.Submit(s.ctx, sub)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.log.Error("submit result failed", "err", err)
		if run == s.run {
			s.state.SubmitErr = err
		}
		s.emitLocked(Event{Kind: EventSubmitFailed, Phase: s.state.Phase, Message: "could not save your result", Err: err})
		s.unlockAndFlush()
		return
	}

	maxAttempts := 0
	if s.eligibility != nil {
		maxAttempts = s.eligibility.MaxAttempts
	}
	s.eligibility = &domain.AttemptEligibility{
		CanAttempt:        res.RemainingAttempts != 0,
		AttemptCount:      res.AttemptNumber,
		MaxAttempts:       maxAttempts,
		RemainingAttempts: res.RemainingAttempts,
	}
	if run == s.run {
		stored := res
		s.state.Submission = &stored
	}
	s.log.Info("result saved", "attempt", res.AttemptNumber, "accuracy", res.Accuracy)
	out := res
	s.emitLocked(Event{Kind: EventSubmitted, Phase: s.state.Phase, Result: &out, Message: "result saved"})
	s.unlockAndFlush()
}

func (s *Session) stopTimersLocked() {
	s.countdown.Stop()
	if s.cancelAdvance != nil {
		s.cancelAdvance()
		s.cancelAdvance = nil
	}
}

func (s *Session) emitLocked(ev Event) {
	s.pending = append(s.pending, ev)
}

func (s *Session) unlockAndFlush() {
	events := s.pending
	effects := s.effects
	s.pending = nil
	s.effects = nil
	s.mu.Unlock()

	if s.notify != nil {
		for _, ev := range events {
			s.notify(ev)
		}
	}
	for _, fn := range effects {
		fn()
	}
}
