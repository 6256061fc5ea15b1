package ai

import "context"

// Runtime is a minimal interface implemented by model backends such as a
// local Ollama daemon or a remote OpenAI-compatible API.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
	ProviderGemini = "gemini"
)

// providerAliases maps accepted alternate names onto canonical providers.
var providerAliases = map[string]string{
	"ollama": ProviderLocal,
	"openai": ProviderRemote,
	"google": ProviderGemini,
}

// CanonicalProvider resolves aliases like "ollama" and "openai".
func CanonicalProvider(name string) string {
	if p, ok := providerAliases[name]; ok {
		return p
	}
	return name
}
