package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"khodkquiz/internal/app"
	"khodkquiz/internal/domain"
	pgstore "khodkquiz/internal/infra/postgres"
	pgmigrations "khodkquiz/internal/infra/postgres/migrations"
	infraredis "khodkquiz/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestSubmitResultEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute, nil)
	hubs := infraredis.NewHubStore(redisClient, 5*time.Minute, nil)
	service := app.NewQuizService(quizRepo, pgstore.NewAttemptStore(pool), hubs, app.Options{})

	updates, cancel, err := service.Subscribe(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-updates

	if n, err := redisClient.Exists(ctx, "quiz:live:quiz-1").Result(); err != nil || n != 1 {
		t.Fatalf("expected live hub key, got n=%d err=%v", n, err)
	}

	res, err := service.Submit(ctx, domain.User{ID: "u1", DisplayName: "Alice"}, submission(true, 820))
	if err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if res.AttemptNumber != 1 || res.Accuracy != 100 || res.RemainingAttempts != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := service.Submit(ctx, domain.User{ID: "u2", DisplayName: "Bob"}, submission(false, 0)); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	var lb domain.Leaderboard
	for len(updates) > 0 {
		lb = <-updates
	}
	if len(lb.Entries) != 2 || lb.Entries[0].UserID != "u1" || lb.Entries[0].Score != 820 {
		t.Fatalf("expected alice leading, got %+v", lb.Entries)
	}

	stored, err := service.Leaderboard(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(stored.Entries) != 2 || stored.Entries[1].DisplayName != "Bob" {
		t.Fatalf("unexpected stored leaderboard %+v", stored.Entries)
	}
}

func TestConcurrentSubmissionsRespectAttemptLimit(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	attempts := pgstore.NewAttemptStore(pool)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		stored  int
		limited int
	)
	for i := 0; i < 6; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempt := &domain.Attempt{
				ID:             uuidFor(i),
				QuizID:         "quiz-1",
				UserID:         "u1",
				DisplayName:    "Alice",
				Score:          500,
				CorrectAnswers: 1,
				TotalQuestions: 1,
				Accuracy:       100,
				SubmittedAt:    time.Now(),
			}
			err := attempts.SaveAttempt(ctx, attempt, 2)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stored++
			case errors.Is(err, domain.ErrAttemptLimit):
				limited++
			default:
				t.Errorf("save attempt: %v", err)
			}
		}()
	}
	wg.Wait()

	if stored != 2 || limited != 4 {
		t.Fatalf("expected 2 stored and 4 limited, got %d and %d", stored, limited)
	}
	count, err := attempts.CountAttempts(ctx, "quiz-1", "u1")
	if err != nil || count != 2 {
		t.Fatalf("expected 2 attempts in the database, got %d (%v)", count, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:          "quiz-1",
		Title:       "Arithmetic",
		MaxAttempts: 2,
		Questions: []domain.QuizQuestion{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.AnswerOption{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", IsCorrect: true},
					{ID: "o3", Text: "5"},
				},
			},
		},
	}
}

func submission(correct bool, score int) domain.Submission {
	option := "o1"
	n := 0
	if correct {
		option, n = "o2", 1
	}
	return domain.Submission{
		QuizID:         "quiz-1",
		Score:          score,
		CorrectAnswers: n,
		TotalQuestions: 1,
		TimeTaken:      6.5,
		Answers:        []domain.AnswerRecord{{QuestionID: "q1", SelectedOptionID: &option, IsCorrect: correct, TimeTakenSeconds: 4.5}},
		StartedAt:      time.Now().Add(-time.Minute),
	}
}

func uuidFor(i int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", i+1)
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
