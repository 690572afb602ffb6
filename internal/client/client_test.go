package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"khodkquiz/internal/domain"
)

func writeEnvelope(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": success, "data": data, "message": message})
}

func TestFetchQuestions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/quizzes/go-basics/questions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("guest request carried authorization %q", got)
		}
		writeEnvelope(w, http.StatusOK, true, []domain.QuizQuestion{{
			ID:   "q1",
			Text: "What does := do?",
			Options: []domain.AnswerOption{
				{ID: "a", Text: "declares", IsCorrect: true},
				{ID: "b", Text: "compares"},
			},
		}}, "")
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "", time.Second)
	questions, err := c.FetchQuestions(context.Background(), "go-basics")
	if err != nil {
		t.Fatalf("fetch questions: %v", err)
	}
	if len(questions) != 1 || questions[0].Text != "What does := do?" || !questions[0].Options[0].IsCorrect {
		t.Fatalf("unexpected questions: %+v", questions)
	}
}

func TestFetchEligibilitySendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			writeEnvelope(w, http.StatusUnauthorized, false, nil, "missing token")
			return
		}
		writeEnvelope(w, http.StatusOK, true, domain.AttemptEligibility{CanAttempt: false, AttemptCount: 3, MaxAttempts: 3}, "")
	}))
	defer srv.Close()

	e, err := NewHTTPClient(srv.URL, "tok", time.Second).FetchEligibility(context.Background(), "q")
	if err != nil {
		t.Fatalf("fetch eligibility: %v", err)
	}
	if e.CanAttempt || e.AttemptCount != 3 || e.MaxAttempts != 3 {
		t.Fatalf("unexpected eligibility: %+v", e)
	}
}

func TestGuestCannotCallAuthenticatedEndpoints(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "", time.Second)
	if c.IsAuthenticated() {
		t.Fatalf("client without token reported authenticated")
	}
	if _, err := c.FetchEligibility(context.Background(), "q"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := c.SubmitResult(context.Background(), domain.Submission{QuizID: "q"}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSubmitResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/quizzes/q1/submit" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var sub domain.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeEnvelope(w, http.StatusOK, true, domain.SubmissionResult{
			AttemptNumber:     2,
			Score:             sub.Score,
			Accuracy:          60,
			CorrectAnswers:    sub.CorrectAnswers,
			TotalQuestions:    sub.TotalQuestions,
			RemainingAttempts: 1,
		}, "saved")
	}))
	defer srv.Close()

	res, err := NewHTTPClient(srv.URL, "tok", time.Second).SubmitResult(context.Background(), domain.Submission{
		QuizID: "q1", Score: 750, CorrectAnswers: 3, TotalQuestions: 5,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.AttemptNumber != 2 || res.Score != 750 || res.Accuracy != 60 || res.RemainingAttempts != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestErrorsBecomeAPIError(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		message string
	}{
		{
			name: "non-2xx envelope",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeEnvelope(w, http.StatusForbidden, false, nil, "attempt limit reached")
			},
			status:  http.StatusForbidden,
			message: "attempt limit reached",
		},
		{
			name: "success false with 200",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeEnvelope(w, http.StatusOK, false, nil, "quiz closed")
			},
			status:  http.StatusOK,
			message: "quiz closed",
		},
		{
			name: "plain text error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "bad gateway", http.StatusBadGateway)
			},
			status:  http.StatusBadGateway,
			message: "bad gateway",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "tok", time.Second).FetchQuestions(context.Background(), "q")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tc.status || apiErr.Message != tc.message {
				t.Fatalf("unexpected error: %+v", apiErr)
			}
			if !IsStatus(err, tc.status) {
				t.Fatalf("IsStatus(%d) = false", tc.status)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPClient(srv.URL, "tok", 30*time.Millisecond).FetchQuestions(context.Background(), "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
