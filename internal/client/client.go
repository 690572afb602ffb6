package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"khodkquiz/internal/domain"
)

// HTTPClient talks to the quiz API on behalf of a quiz session.
type HTTPClient struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPClient builds a client for baseURL. An empty token means the user is not signed in.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// IsAuthenticated reports whether requests carry a bearer token.
func (c *HTTPClient) IsAuthenticated() bool {
	return c.token != ""
}

// FetchQuestions loads the questions of quizID in presentation order.
func (c *HTTPClient) FetchQuestions(ctx context.Context, quizID string) ([]domain.QuizQuestion, error) {
	var questions []domain.QuizQuestion
	if err := c.do(ctx, http.MethodGet, quizPath(quizID, "questions"), nil, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// FetchEligibility asks whether the signed-in user may start another attempt.
func (c *HTTPClient) FetchEligibility(ctx context.Context, quizID string) (domain.AttemptEligibility, error) {
	var e domain.AttemptEligibility
	if !c.IsAuthenticated() {
		return e, domain.ErrUnauthenticated
	}
	if err := c.do(ctx, http.MethodGet, quizPath(quizID, "eligibility"), nil, &e); err != nil {
		return domain.AttemptEligibility{}, err
	}
	return e, nil
}

// SubmitResult stores a finished attempt and returns the server's verdict.
func (c *HTTPClient) SubmitResult(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error) {
	var res domain.SubmissionResult
	if !c.IsAuthenticated() {
		return res, domain.ErrUnauthenticated
	}
	if err := c.do(ctx, http.MethodPost, quizPath(sub.QuizID, "submit"), sub, &res); err != nil {
		return domain.SubmissionResult{}, err
	}
	return res, nil
}

// Leaderboard returns the best attempt per user for quizID.
func (c *HTTPClient) Leaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	var lb domain.Leaderboard
	if err := c.do(ctx, http.MethodGet, quizPath(quizID, "leaderboard"), nil, &lb); err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

func quizPath(quizID, action string) string {
	return "/api/quizzes/" + url.PathEscape(quizID) + "/" + action
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	var env envelope
	if jsonErr := json.Unmarshal(data, &env); jsonErr != nil {
		if resp.StatusCode/100 != 2 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, jsonErr)
	}
	if resp.StatusCode/100 != 2 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
