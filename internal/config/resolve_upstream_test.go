package config

import "testing"

func TestResolveUpstream_ProviderTag(t *testing.T) {
	u := ResolveUpstream("", "openai@gpt-4o-mini", nil, "")
	if u.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", u.Model)
	}
	if u.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("BaseURL = %q, want openai base url", u.BaseURL)
	}
}

func TestResolveUpstream_URLPrefix(t *testing.T) {
	u := ResolveUpstream("", "https://my-proxy.internal/v1@gpt-4o", nil, "")
	if u.BaseURL != "https://my-proxy.internal/v1" {
		t.Errorf("BaseURL = %q, want the literal URL prefix", u.BaseURL)
	}
	if u.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", u.Model)
	}
}

func TestResolveUpstream_HeaderProvider(t *testing.T) {
	u := ResolveUpstream("anthropic", "claude-sonnet-4", nil, "")
	if u.BaseURL != "https://api.anthropic.com/v1" {
		t.Errorf("BaseURL = %q, want anthropic base url", u.BaseURL)
	}
	if u.Model != "claude-sonnet-4" {
		t.Errorf("Model = %q, want claude-sonnet-4", u.Model)
	}
}

func TestResolveUpstream_EnvFallback(t *testing.T) {
	u := ResolveUpstream("", "some-model", nil, "https://env-default.example/v1")
	if u.BaseURL != "https://env-default.example/v1" {
		t.Errorf("BaseURL = %q, want env default", u.BaseURL)
	}
}

func TestResolveUpstream_FinalFallbackIsOpenAI(t *testing.T) {
	u := ResolveUpstream("", "some-model", nil, "")
	if u.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("BaseURL = %q, want https://api.openai.com/v1", u.BaseURL)
	}
}

func TestResolveUpstream_OverrideTakesPrecedenceOverBuiltin(t *testing.T) {
	overrides := map[string]string{"openai": "https://custom-openai.example/v1"}
	u := ResolveUpstream("", "openai@gpt-4o", overrides, "")
	if u.BaseURL != "https://custom-openai.example/v1" {
		t.Errorf("BaseURL = %q, want override", u.BaseURL)
	}
}

func TestResolveUpstream_UnknownPrefixFallsThroughAsModelName(t *testing.T) {
	u := ResolveUpstream("", "unknown-prefix@weird-model", nil, "")
	if u.Model != "unknown-prefix@weird-model" {
		t.Errorf("Model = %q, want the whole field treated as a model name", u.Model)
	}
}
