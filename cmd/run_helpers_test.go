package cmd

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/autodq-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/autodq-cli/internal/config"
)

func TestBuildRuntimeSelection(t *testing.T) {
	c := &cfgpkg.Global{DefaultProvider: "remote", APIKey: "sk-cfg", OllamaHost: "http://cfg-host:11434"}

	rt, name, err := buildRuntime(c, runtimeOptions{})
	if err != nil || name != ai.ProviderRemote {
		t.Fatalf("expected config provider, got %q err=%v", name, err)
	}
	if _, ok := rt.(*ai.Client); !ok {
		t.Fatalf("expected *ai.Client, got %T", rt)
	}

	rt, name, err = buildRuntime(c, runtimeOptions{ProviderFlag: "Ollama"})
	if err != nil || name != ai.ProviderLocal {
		t.Fatalf("expected alias to resolve to local, got %q err=%v", name, err)
	}
	oc, ok := rt.(*ai.OllamaClient)
	if !ok || oc.Host() != "http://cfg-host:11434" {
		t.Fatalf("expected ollama client on config host, got %T", rt)
	}

	rt, _, err = buildRuntime(c, runtimeOptions{ProviderFlag: "local", OllamaHost: "http://flag-host:1/"})
	if err != nil || rt.(*ai.OllamaClient).Host() != "http://flag-host:1" {
		t.Fatalf("flag host should win: err=%v", err)
	}

	rt, name, err = buildRuntime(nil, runtimeOptions{ProviderFlag: "gemini"})
	if err != nil || name != ai.ProviderGemini {
		t.Fatalf("expected gemini, got %q err=%v", name, err)
	}
	if _, ok := rt.(*ai.GeminiClient); !ok {
		t.Fatalf("expected *ai.GeminiClient, got %T", rt)
	}

	if _, name, _ := buildRuntime(nil, runtimeOptions{}); name != ai.ProviderLocal {
		t.Fatalf("expected local default, got %q", name)
	}
	if _, _, err := buildRuntime(nil, runtimeOptions{ProviderFlag: "anthropic"}); err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestResolveModel(t *testing.T) {
	c := &cfgpkg.Global{DefaultProvider: "local", DefaultModel: "mistral:7b-instruct"}
	tests := []struct {
		name     string
		flag     string
		provider string
		changed  bool
		want     string
	}{
		{"flag wins", "qwen2.5-coder:7b", ai.ProviderLocal, true, "qwen2.5-coder:7b"},
		{"config default for config provider", "", ai.ProviderLocal, false, "mistral:7b-instruct"},
		{"provider default otherwise", "", ai.ProviderRemote, false, "gpt-4o-mini"},
		{"gemini default", "", ai.ProviderGemini, false, ai.DefaultGeminiModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveModel(tt.flag, tt.provider, c, tt.changed); got != tt.want {
				t.Fatalf("resolveModel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExplainAIError(t *testing.T) {
	apiErr := &ai.APIError{StatusCode: 404, Message: "missing"}
	tests := []struct {
		name     string
		err      error
		provider string
		want     string
	}{
		{"missing key remote", ai.ErrMissingAPIKey, ai.ProviderRemote, "OPENAI_API_KEY"},
		{"missing key gemini", ai.ErrMissingAPIKey, ai.ProviderGemini, "GEMINI_API_KEY"},
		{"ollama down", &ai.UnreachableError{Host: "http://h:1", Err: errors.New("refused")}, ai.ProviderLocal, "ollama serve"},
		{"remote down", &ai.UnreachableError{Host: "api", Err: errors.New("refused")}, ai.ProviderRemote, "endpoint unreachable"},
		{"timeout", &ai.TimeoutError{Host: "h", Timeout: time.Second, Err: errors.New("deadline")}, ai.ProviderLocal, "--http-timeout"},
		{"auth", &ai.AuthError{APIError: apiErr}, ai.ProviderRemote, "check the API key"},
		{"rate limit", &ai.RateLimitError{APIError: apiErr, RetryAfter: 3 * time.Second}, ai.ProviderRemote, "~3s"},
		{"local model missing", &ai.ModelNotFoundError{APIError: apiErr}, ai.ProviderLocal, "ollama pull m"},
		{"remote model missing", &ai.ModelNotFoundError{APIError: apiErr}, ai.ProviderRemote, "autodq models"},
		{"server", &ai.ServerError{APIError: apiErr}, ai.ProviderRemote, "retry later"},
		{"other", errors.New("boom"), ai.ProviderRemote, "generation failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := explainAIError(tt.err, tt.provider, "m")
			if !strings.Contains(got.Error(), tt.want) {
				t.Fatalf("hint %q does not contain %q", got.Error(), tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("original error not wrapped: %v", got)
			}
		})
	}
}

func TestParseDelimiter(t *testing.T) {
	for in, want := range map[string]rune{"": 0, ",": ',', "tab": '\t', ";": ';', "pipe": '|'} {
		got, err := parseDelimiter(in)
		if err != nil || got != want {
			t.Fatalf("parseDelimiter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := parseDelimiter("::"); err == nil {
		t.Fatal("expected error for unsupported delimiter")
	}
}

func TestDatasetName(t *testing.T) {
	if got := datasetName(filepath.Join("data", "orders.2024.csv")); got != "orders.2024" {
		t.Fatalf("datasetName = %q", got)
	}
}
