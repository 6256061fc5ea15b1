package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when the gemini provider is selected without a model.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient generates text through the Google GenAI SDK (Gemini API backend).
type GeminiClient struct {
	apiKey      string
	baseURL     string
	httpTimeout time.Duration
}

// NewGeminiClient returns a client for the Gemini API. baseURL may be empty.
func NewGeminiClient(apiKey string, httpTimeout time.Duration, baseURL string) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = DefaultHTTPTimeout
	}
	return &GeminiClient{apiKey: apiKey, baseURL: baseURL, httpTimeout: httpTimeout}
}

// Generate sends the joined prompt as a single user turn.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini runtime: %w", ErrMissingAPIKey)
	}
	model := req.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	prompt := req.Prompt()
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	cfg := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: c.httpTimeout},
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	var gcfg *genai.GenerateContentConfig
	if req.MaxTokens > 0 {
		gcfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxTokens)}
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), gcfg)
	if err != nil {
		return nil, c.classify(err)
	}

	out := &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}},
		ID:      resp.ResponseID,
	}
	out.RequestID = resp.ResponseID
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// classify maps SDK errors onto this package's error types.
func (c *GeminiClient) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(&APIError{StatusCode: apiErr.Code, Code: apiErr.Status, Message: apiErr.Message}, 0)
	}
	host := c.baseURL
	if host == "" {
		host = "generativelanguage.googleapis.com"
	}
	return classifyTransportErr(host, c.httpTimeout, err)
}
