package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"khodkquiz/internal/app"
	"khodkquiz/internal/config"
	"khodkquiz/internal/domain"
	"khodkquiz/internal/events"
	"khodkquiz/internal/infra/memory"
	pgstore "khodkquiz/internal/infra/postgres"
	rediscache "khodkquiz/internal/infra/redis"
	"khodkquiz/internal/infra/sqlite"
	transport "khodkquiz/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "store the built-in sample quizzes in the database on startup")
	return cmd
}

// quizSaver is implemented by the database-backed quiz loaders.
type quizSaver interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// quizCache is a QuizRepository whose entries can be dropped after the backing store changes.
type quizCache interface {
	app.QuizRepository
	Invalidate(ctx context.Context, quizID string) error
}

// seedQuizzes stores the sample quizzes and drops stale cached copies, which a
// shared Redis cache keeps across restarts.
func seedQuizzes(ctx context.Context, loader memory.QuizLoader, cache quizCache) error {
	saver, ok := loader.(quizSaver)
	if !ok {
		return errors.New("storage driver does not persist quizzes")
	}
	for _, quiz := range sampleQuizzes() {
		if err := saver.SaveQuiz(ctx, quiz); err != nil {
			return fmt.Errorf("seed quiz %s: %w", quiz.ID, err)
		}
		if err := cache.Invalidate(ctx, quiz.ID); err != nil {
			return fmt.Errorf("invalidate quiz %s: %w", quiz.ID, err)
		}
	}
	return nil
}

// backend is the storage selected by storage.driver.
type backend struct {
	loader   memory.QuizLoader
	attempts app.AttemptStore
	closers  []io.Closer
}

func (b *backend) Close() {
	for _, c := range b.closers {
		_ = c.Close()
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func runServer(ctx context.Context, configPath, portFlag string, seed bool) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	log := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizRepo quizCache
		hubs     app.HubRepository
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		quizRepo = rediscache.NewQuizRepository(redisClient, store.loader, quizTTL, log)
		redisHubs := rediscache.NewHubStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute), log)
		go redisHubs.KeepAlive(ctx)
		hubs = redisHubs
	} else {
		quizRepo = memory.NewQuizRepository(store.loader, quizTTL)
		hubs = memory.NewHubStore()
	}

	switch {
	case seed && (cfg.Storage.Driver == "" || cfg.Storage.Driver == "memory"):
		log.Info("memory driver serves the sample quizzes already, nothing to seed")
	case seed:
		if err := seedQuizzes(ctx, store.loader, quizRepo); err != nil {
			return err
		}
		log.Info("sample quizzes stored", "count", len(sampleQuizzes()))
	}

	publisher, err := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	service := app.NewQuizService(quizRepo, store.attempts, hubs, app.Options{
		DefaultMaxAttempts: cfg.Quiz.DefaultMaxAttempts,
		Publisher:          publisher,
		Logger:             log,
	})

	if cfg.Auth.Secret == "" {
		return errors.New("auth.secret is not configured")
	}
	api := transport.NewAPI(service, newAuthenticator(cfg), transport.NewMetrics(), transport.APIOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	})

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz api", "port", finalPort, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return &backend{
			loader:   memory.NewStaticQuizLoader(sampleQuizzes()),
			attempts: memory.NewAttemptStore(),
		}, nil
	case "postgres":
		if cfg.Postgres.URL == "" {
			return nil, errors.New("postgres url not configured")
		}
		if cfg.Postgres.RunMigrations {
			if err := runMigrations(ctx, cfg); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return &backend{
			loader:   pgstore.NewQuizLoader(pool),
			attempts: pgstore.NewAttemptStore(pool),
			closers:  []io.Closer{closerFunc(func() error { pool.Close(); return nil })},
		}, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info("using sqlite storage", "path", cfg.SQLite.Path)
		return &backend{loader: db, attempts: db, closers: []io.Closer{db}}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// sampleQuizzes is served by the memory driver and stored by --seed.
func sampleQuizzes() map[string]domain.Quiz {
	opts := func(correct int, texts ...string) []domain.AnswerOption {
		out := make([]domain.AnswerOption, len(texts))
		for i, t := range texts {
			out[i] = domain.AnswerOption{ID: fmt.Sprintf("o%d", i+1), Text: t, IsCorrect: i == correct}
		}
		return out
	}
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:          "quiz-1",
			Title:       "Warm-up",
			MaxAttempts: 3,
			Questions: []domain.QuizQuestion{
				{ID: "q1", Text: "What is 2 + 2?", Options: opts(1, "3", "4", "5")},
				{ID: "q2", Text: "The Go gopher was designed by Renee French.", Options: opts(0, "True", "False")},
				{ID: "q3", Text: "Which keyword starts a goroutine?", Options: opts(2, "async", "spawn", "go", "defer")},
				{ID: "q4", Text: "A nil map can be read from.", Options: opts(0, "True", "False")},
				{ID: "q5", Text: "How many bits are in a byte?", Options: opts(3, "2", "4", "16", "8")},
			},
		},
	}
}
