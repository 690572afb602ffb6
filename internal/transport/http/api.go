package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"khodkquiz/internal/app"
	"khodkquiz/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// API serves the quiz REST endpoints and the leaderboard stream.
type API struct {
	service *app.QuizService
	auth    *Authenticator
	metrics *Metrics
	ws      *WSHandler
	origins []string
	log     *slog.Logger
}

type APIOptions struct {
	CORSOrigins []string
	Logger      *slog.Logger
}

func NewAPI(service *app.QuizService, auth *Authenticator, metrics *Metrics, opts APIOptions) *API {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:3000"}
	}
	return &API{
		service: service,
		auth:    auth,
		metrics: metrics,
		ws:      NewWSHandler(service, opts.Logger),
		origins: opts.CORSOrigins,
		log:     opts.Logger,
	}
}

// Routes builds the chi router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(a.metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Get("/ws/leaderboard", a.ws.ServeWS)

	r.Route("/api/quizzes/{quizID}", func(qr chi.Router) {
		qr.Use(middleware.Timeout(30 * time.Second))
		qr.Get("/questions", a.questions)
		qr.Get("/leaderboard", a.leaderboard)
		qr.Group(func(pr chi.Router) {
			pr.Use(a.auth.Middleware)
			pr.Get("/eligibility", a.eligibility)
			pr.Post("/submit", a.submit)
		})
	})
	return r
}

func (a *API) questions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.service.Questions(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions, "")
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := a.service.Leaderboard(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb, "")
}

func (a *API) eligibility(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	e, err := a.service.Eligibility(r.Context(), chi.URLParam(r, "quizID"), user.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.metrics.eligibilityCheck(e.CanAttempt)
	writeJSON(w, http.StatusOK, e, "")
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var sub domain.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&sub); err != nil {
		a.metrics.submission("invalid")
		writeJSON(w, http.StatusBadRequest, nil, "invalid JSON body")
		return
	}
	sub.QuizID = chi.URLParam(r, "quizID")

	res, err := a.service.Submit(r.Context(), user, sub)
	if err != nil {
		a.metrics.submission(outcome(err))
		a.fail(w, r, err)
		return
	}
	a.metrics.submission("stored")
	writeJSON(w, http.StatusOK, res, "result saved")
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		a.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeError(w, err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrAttemptLimit):
		return "limit_reached"
	case errors.Is(err, domain.ErrInvalidSubmission):
		return "invalid"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAttemptLimit):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: status < 400,
		Data:    data,
		Message: message,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, nil, message)
}
