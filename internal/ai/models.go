package ai

import "sort"

// ModelInfo describes a known model. Context sizes are approximate and only
// used to warn when a prompt probably does not fit.
type ModelInfo struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	ContextTokens int    `json:"context_tokens"`
}

var models = map[string]ModelInfo{
	// Common local (Ollama) tags
	"llama3.2":              {Name: "llama3.2", Provider: ProviderLocal, ContextTokens: 131072},
	"llama3.1:8b-instruct":  {Name: "llama3.1:8b-instruct", Provider: ProviderLocal, ContextTokens: 8192},
	"mistral:7b-instruct":   {Name: "mistral:7b-instruct", Provider: ProviderLocal, ContextTokens: 8192},
	"phi3:mini-4k-instruct": {Name: "phi3:mini-4k-instruct", Provider: ProviderLocal, ContextTokens: 4096},
	"qwen2.5-coder:7b":      {Name: "qwen2.5-coder:7b", Provider: ProviderLocal, ContextTokens: 32768},
	// OpenAI-compatible remote
	"gpt-4o-mini":  {Name: "gpt-4o-mini", Provider: ProviderRemote, ContextTokens: 128000},
	"gpt-4o":       {Name: "gpt-4o", Provider: ProviderRemote, ContextTokens: 128000},
	"gpt-4.1-mini": {Name: "gpt-4.1-mini", Provider: ProviderRemote, ContextTokens: 1000000},
	// Google Gemini
	"gemini-2.0-flash": {Name: "gemini-2.0-flash", Provider: ProviderGemini, ContextTokens: 1000000},
	"gemini-2.5-flash": {Name: "gemini-2.5-flash", Provider: ProviderGemini, ContextTokens: 1000000},
	"gemini-2.5-pro":   {Name: "gemini-2.5-pro", Provider: ProviderGemini, ContextTokens: 1000000},
}

var defaultModels = map[string]string{
	ProviderLocal:  "llama3.2",
	ProviderRemote: "gpt-4o-mini",
	ProviderGemini: DefaultGeminiModel,
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// DefaultModel returns the suggested model for a provider.
func DefaultModel(provider string) (string, bool) {
	m, ok := defaultModels[CanonicalProvider(provider)]
	return m, ok
}

// ModelsFor lists known models for a provider sorted by name. An empty
// provider lists every model.
func ModelsFor(provider string) []ModelInfo {
	provider = CanonicalProvider(provider)
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		if provider == "" || m.Provider == provider {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ExceedsContext reports whether promptTokens is larger than the model's
// known context window. Unknown models never exceed.
func ExceedsContext(model string, promptTokens int) (int, bool) {
	mi, ok := LookupModel(model)
	if !ok || mi.ContextTokens <= 0 {
		return 0, false
	}
	return mi.ContextTokens, promptTokens > mi.ContextTokens
}
