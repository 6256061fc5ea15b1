package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultOllamaHost is where a local Ollama daemon listens by default.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaClient is a minimal HTTP client for a local Ollama runtime.
type OllamaClient struct {
	httpClient       *http.Client
	httpTimeout      time.Duration
	host             string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewOllamaClient creates a new client targeting the given host (e.g., http://127.0.0.1:11434).
func NewOllamaClient(host string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OllamaClient {
	if host == "" {
		host = DefaultOllamaHost
	}
	if httpTimeout <= 0 {
		httpTimeout = DefaultHTTPTimeout
	}
	if retryMax <= 0 {
		retryMax = 1
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 1 * time.Second
	}
	return &OllamaClient{
		httpClient:       &http.Client{Timeout: httpTimeout},
		httpTimeout:      httpTimeout,
		host:             strings.TrimRight(host, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// Host returns the base URL the client targets.
func (c *OllamaClient) Host() string { return c.host }

// Structures aligned with Ollama /api/generate (non-streaming)
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}
type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	// token counts reported by the daemon
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate sends the joined prompt to /api/generate and maps the reply to GenerateResponse.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	prompt := req.Prompt()
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	oreq := ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: prompt,
		Stream: false,
	}
	if req.Temperature > 0 {
		oreq.Options = map[string]any{"temperature": req.Temperature}
	}

	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.host + "/api/generate"
	maxAttempts := c.retryMaxAttempts
	backoff := c.retryBaseDelay
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			// Retry transient network errors
			if isRetryableNetErr(err) && attempt < maxAttempts {
				time.Sleep(capDelay(withJitter(backoff), c.retryMaxDelay))
				backoff *= 2
				continue
			}
			return nil, classifyTransportErr(c.host, c.httpTimeout, err)
		}
		var out GenerateResponse
		retryable := false
		func() {
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
				var raw map[string]any
				_ = json.Unmarshal(body, &raw)
				apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw}
				if msg, ok := raw["error"].(string); ok {
					apiErr.Message = msg
				}
				if msg, ok := raw["message"].(string); ok && apiErr.Message == "" {
					apiErr.Message = msg
				}
				// classifying broadly
				switch {
				case resp.StatusCode == http.StatusNotFound:
					// Likely missing model
					lastErr = &ModelNotFoundError{APIError: apiErr}
				case resp.StatusCode >= 500:
					lastErr = &ServerError{APIError: apiErr}
					retryable = true
				case resp.StatusCode == http.StatusBadRequest:
					lastErr = &BadRequestError{APIError: apiErr}
				default:
					lastErr = apiErr
				}
				return
			}
			var oresp ollamaGenerateResponse
			if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
				lastErr = fmt.Errorf("error calling ollama: decode response: %w", err)
				return
			}
			out.Choices = []Choice{{Message: Message{Role: "assistant", Content: oresp.Response}}}
			out.Usage = Usage{
				PromptTokens:     oresp.PromptEvalCount,
				CompletionTokens: oresp.EvalCount,
				TotalTokens:      oresp.PromptEvalCount + oresp.EvalCount,
			}
			// Simulated correlation id
			out.RequestID = "ollama_" + uuid.NewString()
			lastErr = nil
		}()
		if lastErr == nil {
			return &out, nil
		}
		if retryable && attempt < maxAttempts {
			time.Sleep(capDelay(withJitter(backoff), c.retryMaxDelay))
			backoff *= 2
			continue
		}
		break
	}
	return nil, lastErr
}
