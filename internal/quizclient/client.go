package quizclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"lms_quiz_backend/internal/model"
)

const defaultTimeout = 10 * time.Second

// envelope 与服务端 util.Response 一致
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Errors  []string        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

// APIError 非 2xx 响应
type APIError struct {
	Status  int
	Message string
	Reason  string
	Errors  []string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsSessionExpired 401 且消息涉及 token/expired/invalid
func (e *APIError) IsSessionExpired() bool {
	if e.Status != http.StatusUnauthorized {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "token") || strings.Contains(msg, "expired") || strings.Contains(msg, "invalid")
}

// Client 测验 REST 接口客户端，自动附带 Bearer 凭证
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// OnUnauthorized 登录态失效时回调，凭证已被清除
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var res LoginResult
	if err := c.call(ctx, http.MethodPost, "/login", body, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

func (c *Client) GetQuiz(ctx context.Context, quizID string) (*model.QuizOverview, error) {
	var res model.QuizOverview
	if err := c.call(ctx, http.MethodGet, "/quizzes/"+url.PathEscape(quizID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) StartAttempt(ctx context.Context, quizID string) (*model.StartAttemptResponse, error) {
	var res model.StartAttemptResponse
	if err := c.call(ctx, http.MethodPost, "/quizzes/"+url.PathEscape(quizID)+"/attempt", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SaveAnswer(ctx context.Context, quizID, questionID, answer string) error {
	req := model.SaveAnswerRequest{QuestionID: questionID, Answer: answer}
	return c.call(ctx, http.MethodPost, "/quizzes/"+url.PathEscape(quizID)+"/answer", req, nil)
}

func (c *Client) SubmitAttempt(ctx context.Context, quizID, attemptID string) (*model.AttemptView, error) {
	req := model.SubmitAttemptRequest{AttemptID: attemptID}
	var res model.SubmitAttemptResponse
	if err := c.call(ctx, http.MethodPost, "/quizzes/"+url.PathEscape(quizID)+"/submit", req, &res); err != nil {
		return nil, err
	}
	return &res.Attempt, nil
}

func (c *Client) GetResults(ctx context.Context, quizID, attemptID string) (*model.ResultsResponse, error) {
	path := "/quizzes/" + url.PathEscape(quizID) + "/results?attemptId=" + url.QueryEscape(attemptID)
	var res model.ResultsResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	raw, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = env.Message
			apiErr.Reason = env.Reason
			apiErr.Errors = env.Errors
		}
		if apiErr.Message == "" && len(apiErr.Errors) > 0 {
			apiErr.Message = apiErr.Errors[0]
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if apiErr.IsSessionExpired() {
			c.expireSession()
		}
		return nil, apiErr
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("decode response envelope: %w", decodeErr)
	}
	return env.Data, nil
}

func (c *Client) expireSession() {
	c.mu.Lock()
	c.token = ""
	fn := c.onUnauthorized
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
