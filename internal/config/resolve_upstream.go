package config

import (
	"net/url"
	"strings"
)

// builtinProviderBaseURLs is the provider-tag lookup table. Keys are
// lowercase provider tags as they may appear in the model-id prefix or
// the x-model-provider header.
var builtinProviderBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"claude":     "https://api.anthropic.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"togetherai": "https://api.together.xyz/v1",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta",
	"google":     "https://generativelanguage.googleapis.com/v1beta",
	"deepseek":   "https://api.deepseek.com/v1",
	"ollama":     "http://localhost:11434/v1",
	"xai":        "https://api.x.ai/v1",
}

// Upstream is the resolved destination for a single orchestration turn.
type Upstream struct {
	BaseURL string
	Model   string
	System  string // provider tag used for telemetry ("system" attribute)
}

// ResolveUpstream implements the model-id grammar as a pure function of
// its inputs: no env reads, no side effects, so it can be unit tested
// exhaustively.
//
// model := [prefix "@"] name
// prefix is either an absolute http(s) URL used verbatim as base_url, or a
// known provider tag. headerProvider (x-model-provider) wins over a bare
// model name with no "@". envDefaultBaseURL is MODEL_BASE_URL; when it is
// empty the built-in OpenAI base URL is used (an "openai" entry in
// providerBaseURLs does not affect this last fallback).
func ResolveUpstream(headerProvider, modelField string, providerBaseURLs map[string]string, envDefaultBaseURL string) Upstream {
	prefix, name, hasPrefix := splitModelField(modelField)

	if hasPrefix {
		if isURL(prefix) {
			return Upstream{BaseURL: prefix, Model: name, System: "custom"}
		}
		if baseURL, ok := lookupProvider(prefix, providerBaseURLs); ok {
			return Upstream{BaseURL: baseURL, Model: name, System: strings.ToLower(prefix)}
		}
		// Unknown prefix: treat the whole field as the model name and fall
		// through to header/env resolution below.
		name = modelField
	}

	if headerProvider != "" {
		if baseURL, ok := lookupProvider(headerProvider, providerBaseURLs); ok {
			return Upstream{BaseURL: baseURL, Model: name, System: strings.ToLower(headerProvider)}
		}
	}

	if envDefaultBaseURL != "" {
		return Upstream{BaseURL: envDefaultBaseURL, Model: name, System: "custom"}
	}

	return Upstream{BaseURL: builtinProviderBaseURLs["openai"], Model: name, System: "openai"}
}

func splitModelField(modelField string) (prefix, name string, hasPrefix bool) {
	idx := strings.Index(modelField, "@")
	if idx < 0 {
		return "", modelField, false
	}
	return modelField[:idx], modelField[idx+1:], true
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func lookupProvider(tag string, overrides map[string]string) (string, bool) {
	key := strings.ToLower(tag)
	if overrides != nil {
		if v, ok := overrides[key]; ok && v != "" {
			return v, true
		}
	}
	if v, ok := builtinProviderBaseURLs[key]; ok {
		return v, true
	}
	return "", false
}
