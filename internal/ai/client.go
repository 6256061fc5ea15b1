package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL is the remote runtime's default endpoint root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// DefaultMaxTokens bounds the completion length for remote requests.
const DefaultMaxTokens = 4000

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient       *http.Client
	httpTimeout      time.Duration
	apiKey           string
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// NewPromptRequest wraps a single user prompt.
func NewPromptRequest(model, prompt string, maxTokens int) GenerateRequest {
	return GenerateRequest{
		Model:     model,
		Messages:  []Message{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	}
}

// Prompt joins the request's message contents into one text block.
func (r GenerateRequest) Prompt() string {
	parts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Text returns the first choice's content, or "" when there is none.
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// APIError represents a structured API error response.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error: status=%d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " request_id=%s", e.RequestID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " message=%s", e.Message)
	}
	return b.String()
}

// NewOpenAIClient returns a client with default timeouts and retry strategy.
func NewOpenAIClient(apiKey string) *Client {
	return NewClient(apiKey, DefaultHTTPTimeout, 1, 500*time.Millisecond, 4*time.Second)
}

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
func NewClient(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = DefaultHTTPTimeout
	}
	if retryMax <= 0 {
		retryMax = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		httpTimeout:      httpTimeout,
		apiKey:           apiKey,
		baseURL:          DefaultOpenAIBaseURL,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// NewClientWithBaseURL allows injecting a custom base URL (used in tests).
func NewClientWithBaseURL(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration, baseURL string) *Client {
	c := NewClient(apiKey, httpTimeout, retryMax, baseDelay, maxDelay)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

func (c *Client) ValidateModel(model string) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}
	return nil
}

// attempt is the outcome of one POST to the completions endpoint.
type attempt struct {
	resp       *GenerateResponse
	err        error
	retryable  bool
	retryAfter time.Duration
}

// Generate sends one chat completion, retrying 429s, 5xx responses and
// transient network errors up to the configured attempt count.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("remote runtime: %w", ErrMissingAPIKey)
	}
	if err := c.ValidateModel(req.Model); err != nil {
		return nil, err
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	backoff := c.retryBaseDelay
	var last attempt
	for n := 1; n <= c.retryMaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			if last.err != nil {
				return nil, last.err
			}
			return nil, err
		}
		last = c.post(ctx, payload)
		if last.err == nil {
			return last.resp, nil
		}
		if !last.retryable || n == c.retryMaxAttempts {
			break
		}
		wait := last.retryAfter
		if wait <= 0 {
			wait = capDelay(withJitter(backoff), c.retryMaxDelay)
			backoff *= 2
		}
		select {
		case <-ctx.Done():
			return nil, last.err
		case <-time.After(wait):
		}
	}
	return nil, last.err
}

func (c *Client) post(ctx context.Context, payload []byte) attempt {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return attempt{err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return attempt{
			err:       classifyTransportErr(c.baseURL, c.httpTimeout, err),
			retryable: isRetryableNetErr(err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp)
		wait := retryAfter(resp.Header)
		typed := classifyAPIError(apiErr, wait)
		var quota *QuotaExceededError
		return attempt{
			err:        typed,
			retryable:  isRetryableStatus(resp.StatusCode) && !errors.As(typed, &quota),
			retryAfter: wait,
		}
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return attempt{err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return attempt{err: errors.New("decode response: no choices returned")}
	}
	out.RequestID = requestID(resp.Header)
	return attempt{resp: &out}
}

// decodeAPIError reads an OpenAI-style {"error": {...}} body, falling back to
// top-level message/code fields used by some compatible servers.
func decodeAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID(resp.Header)}
	if err := json.Unmarshal(body, &apiErr.Raw); err != nil {
		return apiErr
	}
	fields := apiErr.Raw
	if nested, ok := apiErr.Raw["error"].(map[string]any); ok {
		fields = nested
	}
	apiErr.Message, _ = fields["message"].(string)
	// code is null on many OpenAI errors; type carries the class then
	if code, ok := fields["code"].(string); ok {
		apiErr.Code = code
	} else if typ, ok := fields["type"].(string); ok {
		apiErr.Code = typ
	}
	return apiErr
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF)
}

// retryAfter reads a Retry-After header given as seconds or an HTTP date.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// classifyAPIError maps a status and provider code onto the typed errors the
// CLI turns into hints. Codes cover OpenAI ("insufficient_quota",
// "model_not_found") and Google status names.
func classifyAPIError(apiErr *APIError, wait time.Duration) error {
	switch {
	case apiErr.Code == "insufficient_quota":
		return &QuotaExceededError{APIError: apiErr}
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{APIError: apiErr, RetryAfter: wait}
	case apiErr.StatusCode == http.StatusNotFound || apiErr.Code == "model_not_found":
		return &ModelNotFoundError{APIError: apiErr}
	case apiErr.StatusCode == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case apiErr.StatusCode >= 500:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

// requestID pulls a request ID from the headers providers commonly set.
func requestID(h http.Header) string {
	for _, k := range []string{"X-Request-Id", "OpenAI-Request-ID", "X-Amzn-Requestid"} {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	if out := time.Duration(float64(d) * f); out > 0 {
		return out
	}
	return d
}

// capDelay bounds d by max when max is positive.
func capDelay(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}
