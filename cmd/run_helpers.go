package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/autodq-cli/internal/ai"
	"github.com/KaramelBytes/autodq-cli/internal/checks"
	cfgpkg "github.com/KaramelBytes/autodq-cli/internal/config"
	"github.com/KaramelBytes/autodq-cli/internal/profile"
	"github.com/KaramelBytes/autodq-cli/internal/sqlgen"
	"github.com/KaramelBytes/autodq-cli/internal/summary"
	"github.com/KaramelBytes/autodq-cli/internal/utils"
	"go.uber.org/zap"
)

type runtimeOptions struct {
	ProviderFlag string
	APIKeyFlag   string
	OllamaHost   string
}

// newRuntime is swapped in tests.
var newRuntime = buildRuntime

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := ai.DefaultHTTPTimeout
	retryMax := 1
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := strings.ToLower(strings.TrimSpace(opts.ProviderFlag))
	if providerName == "" && cfg != nil && cfg.DefaultProvider != "" {
		providerName = strings.ToLower(cfg.DefaultProvider)
	}
	if providerName == "" {
		providerName = ai.ProviderLocal
	}
	providerName = ai.CanonicalProvider(providerName)

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      strings.TrimSpace(opts.APIKeyFlag),
	}
	switch providerName {
	case ai.ProviderLocal:
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		rc.Host = host
	case ai.ProviderRemote:
		if rc.APIKey == "" && cfg != nil {
			rc.APIKey = cfg.APIKey
		}
		if cfg != nil {
			rc.BaseURL = cfg.OpenAIBaseURL
		}
	case ai.ProviderGemini:
		if rc.APIKey == "" && cfg != nil {
			rc.APIKey = cfg.GeminiAPIKey
		}
	}

	rt, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, "", fmt.Errorf("unsupported provider: %s (use one of %s)", providerName, strings.Join(ai.Providers(), ", "))
	}
	return rt, providerName, nil
}

// resolveModel picks the flag value, then config, then the provider default.
func resolveModel(flag, provider string, cfg *cfgpkg.Global, changed bool) string {
	if changed && strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	// the configured default model only applies to the configured default provider
	if cfg != nil && cfg.DefaultModel != "" && ai.CanonicalProvider(strings.ToLower(cfg.DefaultProvider)) == provider {
		return cfg.DefaultModel
	}
	if m, ok := ai.DefaultModel(provider); ok {
		return m
	}
	return strings.TrimSpace(flag)
}

// explainAIError adds user-facing hints to typed runtime errors.
func explainAIError(err error, providerName, model string) error {
	var (
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
		tmo     *ai.TimeoutError
	)
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		if providerName == ai.ProviderGemini {
			return fmt.Errorf("Gemini API key is required: pass --api-key, set GEMINI_API_KEY or config 'gemini_api_key': %w", err)
		}
		return fmt.Errorf("OpenAI API key is required: pass --api-key, set OPENAI_API_KEY or config 'api_key': %w", err)
	case errors.As(err, &unreach):
		if providerName == ai.ProviderLocal {
			return fmt.Errorf("Ollama not reachable at %s. Make sure Ollama is running with 'ollama serve' and the host is correct (--ollama-host or config 'ollama_host'): %w", unreach.Host, err)
		}
		return fmt.Errorf("endpoint unreachable. Check your network and provider settings: %w", err)
	case errors.As(err, &tmo):
		return fmt.Errorf("model call timed out; raise --http-timeout or use a smaller model: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: check the API key for provider %s: %w", providerName, err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		if providerName == ai.ProviderLocal {
			return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", model, model, err)
		}
		return fmt.Errorf("model not found (%s). Verify the model name or see 'autodq models': %w", model, err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request rejected by provider: %w", err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	default:
		return fmt.Errorf("generation failed: %w", err)
	}
}

// parseDelimiter maps a --delimiter value onto a rune. Empty means auto.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case "\t", "tab":
		return '\t', nil
	case ";":
		return ';', nil
	case "|", "pipe":
		return '|', nil
	default:
		return 0, fmt.Errorf("unsupported --delimiter: %s", s)
	}
}

// datasetName is the input file's base name without extension.
func datasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type renderOptions struct {
	Dialect     sqlgen.Dialect
	OutDir      string
	SQLPath     string
	SummaryPath string
	YAMLPath    string
	// ScriptTable is used in the SQL script, SummaryTable in heuristic queries.
	ScriptTable  string
	SummaryTable string
	Dataset      string
	TemplateDirs []string
}

type renderResult struct {
	Script      sqlgen.Script
	Rows        []summary.Row
	SQLPath     string
	SummaryPath string
	YAMLPath    string
}

// renderOutputs writes the SQL script, the summary CSV and optionally a checks
// YAML document.
func renderOutputs(cs []checks.Check, ds *profile.Dataset, opts renderOptions) (*renderResult, error) {
	r := sqlgen.Renderer{Dialect: opts.Dialect, Dirs: opts.TemplateDirs, Table: opts.ScriptTable, Logger: logger}
	script := r.Render(cs)
	logger.Info("rendered sql", zap.String("source", script.Source.String()), zap.String("template", script.Path), zap.Int("checks", len(cs)))

	out := &renderResult{Script: script}
	var err error
	if out.SQLPath, err = utils.WriteArtifact(opts.OutDir, opts.SQLPath, []byte(script.Text)); err != nil {
		return nil, fmt.Errorf("write sql: %w", err)
	}

	b := summary.Builder{Generator: sqlgen.Generator{Dialect: opts.Dialect, Table: opts.SummaryTable}, Logger: logger}
	out.Rows = b.Build(cs, ds)
	var buf strings.Builder
	if err := summary.WriteCSV(&buf, out.Rows); err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	if out.SummaryPath, err = utils.WriteArtifact(opts.OutDir, opts.SummaryPath, []byte(buf.String())); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	if opts.YAMLPath != "" {
		var yb strings.Builder
		if err := summary.WriteYAML(&yb, opts.Dataset, out.Rows); err != nil {
			return nil, err
		}
		if out.YAMLPath, err = utils.WriteArtifact(opts.OutDir, opts.YAMLPath, []byte(yb.String())); err != nil {
			return nil, fmt.Errorf("write checks yaml: %w", err)
		}
	}
	return out, nil
}

// writeJSON pretty-prints v into dir/name.
func writeJSON(dir, name string, v any) (string, error) {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return "", err
	}
	return utils.WriteArtifact(dir, name, append(b, '\n'))
}

// loadChecks reads a checks document written by run or parse. Raw model text
// is accepted too and goes through the normal extraction path.
func loadChecks(path string) ([]checks.Check, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checks: %w", err)
	}
	var items []any
	if err := json.Unmarshal(b, &items); err == nil {
		return checks.Normalizer{Logger: logger}.NormalizeAll(items), nil
	}
	return checks.Parser{Logger: logger}.Parse(string(b))
}

func templateDirs(cfg *cfgpkg.Global) []string {
	if cfg != nil && len(cfg.TemplateDirs) > 0 {
		return cfg.TemplateDirs
	}
	return utils.DefaultTemplateDirs
}
