package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"khodkquiz/internal/app"
	"khodkquiz/internal/config"
	"khodkquiz/internal/domain"
	"khodkquiz/internal/engine"
	"khodkquiz/internal/infra/memory"
	"khodkquiz/internal/infra/sqlite"
	transport "khodkquiz/internal/transport/http"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleQuizzesAreValid(t *testing.T) {
	for id, quiz := range sampleQuizzes() {
		assert.Equal(t, id, quiz.ID)
		assert.NoError(t, domain.ValidateQuestions(quiz.Questions), id)
	}
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  secret: s3cret\n  issuer: khodkquiz\n"), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", path, "--user", "u1", "--name", "Alice", "--log-level", "error"})
	require.NoError(t, cmd.Execute())

	user, err := transport.NewAuthenticator("s3cret", "khodkquiz", time.Hour).Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, domain.User{ID: "u1", DisplayName: "Alice"}, user)
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"token", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--user", "u1"})
	assert.ErrorContains(t, cmd.Execute(), "auth.secret")
}

func TestOpenBackendRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "cassandra"
	_, err := openBackend(context.Background(), cfg, slog.Default())
	assert.ErrorContains(t, err, "unknown storage driver")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPlaySubmitsFinishedSession(t *testing.T) {
	color.NoColor = true

	quiz := domain.Quiz{
		ID:          "quiz-1",
		MaxAttempts: 2,
		Questions: []domain.QuizQuestion{{
			ID:   "q1",
			Text: "What is 2 + 2?",
			Options: []domain.AnswerOption{
				{ID: "o1", Text: "3"},
				{ID: "o2", Text: "4", IsCorrect: true},
			},
		}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewQuizService(
		memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{quiz.ID: quiz}), time.Minute),
		memory.NewAttemptStore(), memory.NewHubStore(), app.Options{Logger: logger},
	)
	auth := transport.NewAuthenticator("secret", "khodkquiz", time.Hour)
	server := httptest.NewServer(transport.NewAPI(service, auth, transport.NewMetrics(), transport.APIOptions{Logger: logger}).Routes())
	defer server.Close()

	token, err := auth.IssueToken("u1", "Alice")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Client.BaseURL = server.URL
	cfg.Client.Token = token
	cfg.Engine.TimeLimit = "5s"
	cfg.Engine.FeedbackDelay = "10ms"

	in, input := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runPlay(context.Background(), cfg, "quiz-1", in, out) }()

	_, _ = io.WriteString(input, "\n")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Question 1/1") }, 2*time.Second, 5*time.Millisecond)
	_, _ = io.WriteString(input, "2\n")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Attempt #1 saved.") }, 5*time.Second, 5*time.Millisecond)
	_, _ = io.WriteString(input, "q\n")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("play did not exit after q")
	}
	_ = input.Close()

	text := out.String()
	assert.Contains(t, text, "Correct!")
	assert.Contains(t, text, "1 of 1 correct, accuracy 100%")
	assert.Contains(t, text, "1 attempts left.")
	assert.Contains(t, text, "Leaderboard")
	assert.Contains(t, text, "1. Alice")

	lb, err := service.Leaderboard(context.Background(), "quiz-1")
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "Alice", lb.Entries[0].DisplayName)
}

func TestPlayReportsUnknownQuiz(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewQuizService(
		memory.NewQuizRepository(memory.NewStaticQuizLoader(nil), time.Minute),
		memory.NewAttemptStore(), memory.NewHubStore(), app.Options{Logger: logger},
	)
	auth := transport.NewAuthenticator("secret", "khodkquiz", time.Hour)
	server := httptest.NewServer(transport.NewAPI(service, auth, transport.NewMetrics(), transport.APIOptions{Logger: logger}).Routes())
	defer server.Close()

	token, err := auth.IssueToken("u1", "Alice")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Client.BaseURL = server.URL
	cfg.Client.Token = token

	err = runPlay(context.Background(), cfg, "nope", strings.NewReader(""), io.Discard)
	assert.ErrorContains(t, err, `quiz "nope" does not exist`)
}

func TestGuestNoticeOnlyWhenGuestsMayPlay(t *testing.T) {
	color.NoColor = true
	questions := sampleQuizzes()["quiz-1"].Questions

	for _, allowGuest := range []bool{false, true} {
		cfg := engine.DefaultConfig()
		cfg.AllowGuest = allowGuest
		session, err := engine.NewSession(cfg, engine.Options{QuizID: "quiz-1", Questions: questions})
		require.NoError(t, err)

		var out bytes.Buffer
		term := newTerminal(&out, questions, false, allowGuest)
		term.session = session
		term.intro(cfg.TimeLimit)
		session.Close()

		assert.Equal(t, allowGuest, strings.Contains(out.String(), "Playing as a guest"), "allowGuest=%v", allowGuest)
	}
}

func TestSeedQuizzesRefreshesCache(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer store.Close()

	stale := sampleQuizzes()["quiz-1"]
	stale.Title = "Stale"
	require.NoError(t, store.SaveQuiz(ctx, stale))

	cache := memory.NewQuizRepository(store, time.Hour)
	cached, err := cache.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	require.Equal(t, "Stale", cached.Title)

	require.NoError(t, seedQuizzes(ctx, store, cache))

	fresh, err := cache.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Warm-up", fresh.Title)
}

func TestSeedQuizzesNeedsPersistentStorage(t *testing.T) {
	loader := memory.NewStaticQuizLoader(sampleQuizzes())
	err := seedQuizzes(context.Background(), loader, memory.NewQuizRepository(loader, time.Minute))
	assert.ErrorContains(t, err, "does not persist")
}
