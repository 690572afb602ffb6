package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"khodkquiz/internal/client"
	"khodkquiz/internal/config"
	"khodkquiz/internal/domain"
	"khodkquiz/internal/engine"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewPlayCmd runs an interactive quiz session in the terminal against the quiz API.
func NewPlayCmd(configPath *string) *cobra.Command {
	var quizID, baseURL, token string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take a timed quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(*configPath)
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.Client.BaseURL = baseURL
			}
			if token != "" {
				cfg.Client.Token = token
			}
			return runPlay(cmd.Context(), cfg, quizID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "quiz-1", "quiz id")
	cmd.Flags().StringVar(&baseURL, "api", "", "quiz API base URL (overrides client.base_url)")
	cmd.Flags().StringVar(&token, "token", os.Getenv("KHODKQUIZ_TOKEN"), "bearer token; omit to play as a guest")
	return cmd
}

func runPlay(ctx context.Context, cfg config.Config, quizID string, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	log := slog.Default()
	api := client.NewHTTPClient(cfg.Client.BaseURL, cfg.Client.Token, config.TTLDuration(cfg.Client.Timeout, 10*time.Second))
	sessionCfg := cfg.SessionConfig()

	setup, err := engine.Load(ctx, quizID, api.IsAuthenticated(), api, api)
	switch {
	case client.IsStatus(err, http.StatusNotFound):
		return fmt.Errorf("quiz %q does not exist: %w", quizID, err)
	case client.IsStatus(err, http.StatusUnauthorized):
		return fmt.Errorf("token rejected, mint a new one with `khodkquiz token`: %w", err)
	case err != nil:
		return err
	}

	term := newTerminal(out, setup.Questions, api.IsAuthenticated(), sessionCfg.AllowGuest)
	term.leaderboard = func() (domain.Leaderboard, error) { return api.Leaderboard(ctx, quizID) }
	session, err := engine.NewSession(sessionCfg, engine.Options{
		QuizID:        quizID,
		Questions:     setup.Questions,
		Authenticated: api.IsAuthenticated(),
		Auth:          term,
		Eligibility:   setup.Eligibility,
		Submitter:     engine.NewSubmitter(api, sessionCfg.SubmitTimeout, log),
		Notify:        term.notify,
		Logger:        log,
	})
	if err != nil {
		return err
	}
	defer session.Close()
	term.session = session

	term.intro(sessionCfg.TimeLimit)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "q" {
				return nil
			}
			term.handle(line)
		}
	}
}

// terminal renders session events and implements engine.AuthGateway.
type terminal struct {
	out           io.Writer
	questions     int
	authenticated bool
	allowGuest    bool
	session       *engine.Session
	leaderboard   func() (domain.Leaderboard, error)

	mu sync.Mutex
}

func newTerminal(out io.Writer, questions []domain.QuizQuestion, authenticated, allowGuest bool) *terminal {
	return &terminal{out: out, questions: len(questions), authenticated: authenticated, allowGuest: allowGuest}
}

func (t *terminal) PromptSignIn() {
	t.printf("%s\n", color.YellowString("Sign in to take this quiz: run `khodkquiz token --user <id>` and pass it with --token."))
}

func (t *terminal) intro(limit time.Duration) {
	t.printf("%s\n", color.New(color.Bold).Sprintf("%d questions, %s each. Press Enter to start, q to quit.", t.questions, limit))
	if e, ok := t.session.Eligibility(); ok && e.MaxAttempts > 0 {
		t.printf("Attempts used: %d of %d\n", e.AttemptCount, e.MaxAttempts)
	}
	if !t.authenticated && t.allowGuest {
		t.printf("%s\n", color.HiBlackString("Playing as a guest: your score will not be saved."))
	}
}

func (t *terminal) handle(line string) {
	st := t.session.Snapshot()
	switch st.Phase {
	case engine.PhaseIntro:
		t.session.Start()
	case engine.PhasePlaying:
		n, err := strconv.Atoi(line)
		if err != nil || !t.session.Answer(n-1) {
			t.printf("%s\n", color.RedString("Enter an option number."))
		}
	case engine.PhaseFinished:
		if line == "r" {
			t.session.Restart()
		}
	}
}

func (t *terminal) notify(ev engine.Event) {
	switch ev.Kind {
	case engine.EventPhase:
		switch ev.Phase {
		case engine.PhasePlaying:
			t.showQuestion(ev.QuestionIndex)
		case engine.PhaseFinished:
			if !t.authenticated || t.questions == 0 {
				t.summary()
			} else {
				t.printf("Saving your result...\n")
			}
		}
	case engine.EventTick:
		if ev.Seconds <= 5 || ev.Seconds%5 == 0 {
			t.printf("%s ", color.HiBlackString("%ds", ev.Seconds))
		}
	case engine.EventAnswer:
		switch {
		case ev.Record.SelectedOptionID == nil:
			t.printf("\n%s\n", color.YellowString("Time is up."))
		case ev.Record.IsCorrect:
			t.printf("\n%s\n", color.GreenString("Correct! (%.2fs)", ev.Record.TimeTakenSeconds))
		default:
			t.printf("\n%s\n", color.RedString("Wrong answer."))
		}
	case engine.EventAuthRequired, engine.EventAttemptLimit:
		t.printf("%s\n", color.YellowString("%s", ev.Message))
	case engine.EventSubmitted:
		t.summary()
	case engine.EventSubmitFailed:
		t.printf("%s\n", color.RedString("%s: %v", ev.Message, ev.Err))
		t.summary()
	}
}

func (t *terminal) showQuestion(index int) {
	q := t.session.Questions()[index]
	t.printf("\n%s\n", color.New(color.Bold).Sprintf("Question %d/%d: %s", index+1, t.questions, q.Text))
	for i, opt := range q.Options {
		t.printf("  %d) %s\n", i+1, opt.Text)
	}
}

func (t *terminal) summary() {
	st := t.session.Snapshot()
	t.printf("\n%s\n", color.New(color.Bold, color.FgCyan).Sprintf("Score %d, %d of %d correct, accuracy %d%%", st.Score, st.CorrectCount, t.questions, st.Accuracy))
	if st.Submission != nil {
		t.printf("Attempt #%d saved.", st.Submission.AttemptNumber)
		if st.Submission.RemainingAttempts >= 0 {
			t.printf(" %d attempts left.", st.Submission.RemainingAttempts)
		}
		t.printf("\n")
	}
	t.standings()
	t.printf("Press r then Enter to try again, q to quit.\n")
}

const standingsShown = 5

func (t *terminal) standings() {
	if t.leaderboard == nil {
		return
	}
	lb, err := t.leaderboard()
	if err != nil {
		t.printf("%s\n", color.HiBlackString("Leaderboard unavailable: %v", err))
		return
	}
	if len(lb.Entries) == 0 {
		return
	}
	t.printf("%s\n", color.New(color.Bold).Sprint("Leaderboard"))
	for i, e := range lb.Entries {
		if i == standingsShown {
			break
		}
		t.printf("  %d. %s %d (%d%%)\n", i+1, e.DisplayName, e.Score, e.Accuracy)
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}
