package orchestrator

import (
	"strings"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/provider"
)

// Router selects the LLMProvider implementation for a resolved upstream's
// system tag.
type Router struct {
	openai    provider.LLMProvider
	anthropic provider.LLMProvider
	gemini    provider.LLMProvider
}

// NewRouter builds a Router. Any of the three may be nil if the operator
// never configured credentials for that family; Resolve falls back to
// openai (the default OpenAI-compatible wire format) for every unmatched or
// nil-provider tag, so OpenAI-compatible third parties (Groq, Together,
// DeepSeek, Ollama, custom base URLs) all work off one client.
func NewRouter(openai, anthropic, gemini provider.LLMProvider) *Router {
	return &Router{openai: openai, anthropic: anthropic, gemini: gemini}
}

// Resolve returns the LLMProvider that speaks the wire format for system.
func (r *Router) Resolve(system string) provider.LLMProvider {
	switch strings.ToLower(system) {
	case "anthropic", "claude":
		if r.anthropic != nil {
			return r.anthropic
		}
	case "gemini", "google":
		if r.gemini != nil {
			return r.gemini
		}
	}
	return r.openai
}
