package specialists

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"agentengine/internal/config"
)

func TestNamesReturnsAll(t *testing.T) {
	r := &Registry{agents: map[string]*Agent{"z": {}, "a": {}, "m": {}}}
	n := r.Names()
	if len(n) != 3 {
		t.Fatalf("unexpected count: %#v", n)
	}
}

// fakeRoundTripper records headers passed in requests and returns a fixed response.
type fakeRoundTripper struct{ last http.Header }

func (f *fakeRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	f.last = r.Header.Clone()
	resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("ok")), Header: make(http.Header)}
	return resp, nil
}

func TestHeaderTransport(t *testing.T) {
	base := &fakeRoundTripper{}
	tx := &headerTransport{base: base, headers: map[string]string{"X-Test": "v"}}
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "http://example/", nil)
	_, err := tx.RoundTrip(req)
	if err != nil {
		t.Fatalf("roundtrip failed: %v", err)
	}
	if base.last.Get("X-Test") != "v" {
		t.Fatalf("header missing: %#v", base.last)
	}
}

func TestHeaderTransport_NilBaseUsesDefaultTransport(t *testing.T) {
	tx := &headerTransport{headers: map[string]string{"X-Test": "v"}}
	if tx.base != nil {
		t.Fatalf("expected nil base")
	}
	// RoundTrip with a nil base falls back to http.DefaultTransport; just
	// confirm it doesn't panic building the cloned request.
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "http://127.0.0.1:0/", nil)
	_, _ = tx.RoundTrip(req)
}

func TestNewRegistry_PopulatesAgentFields(t *testing.T) {
	base := config.LLMClientConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKey: "basekey", Model: "basemodel"}}
	list := []config.SpecialistConfig{{
		Name: "s1", Description: "desc", APIKey: "specKey", Model: "specModel",
		System: "mysys", EnableTools: true, ReasoningEffort: " high ",
		ExtraParams: map[string]any{"k": "v"},
	}}
	r := NewRegistry(base, list, http.DefaultClient, nil)
	a, ok := r.Get("s1")
	if !ok {
		t.Fatalf("expected s1 present")
	}
	if a.System != "mysys" {
		t.Fatalf("unexpected agent system prompt: %q", a.System)
	}
	if a.Model != "specModel" {
		t.Fatalf("unexpected model: %q", a.Model)
	}
	if a.ReasoningEffort != "high" {
		t.Fatalf("reasoning not trimmed, got %q", a.ReasoningEffort)
	}
	if !a.EnableTools {
		t.Fatalf("expected tools enabled")
	}
	if v, ok := a.ExtraParams["k"]; !ok || v != "v" {
		t.Fatalf("expected extra param present, got %#v", a.ExtraParams)
	}
	if a.Provider() == nil {
		t.Fatalf("expected a resolved provider")
	}
}

func TestNewRegistry_SkipsPausedAndUnnamed(t *testing.T) {
	base := config.LLMClientConfig{Provider: "openai"}
	list := []config.SpecialistConfig{
		{Name: "live"},
		{Name: "dead", Paused: true},
		{Name: "  "},
	}
	r := NewRegistry(base, list, http.DefaultClient, nil)
	if _, ok := r.Get("dead"); ok {
		t.Fatalf("paused specialist should not be registered")
	}
	if _, ok := r.Get("live"); !ok {
		t.Fatalf("expected live specialist registered")
	}
	if len(r.Names()) != 1 {
		t.Fatalf("expected exactly one specialist, got %#v", r.Names())
	}
}

func TestAgent_Inference_NoProvider(t *testing.T) {
	a := &Agent{Name: "nope"}
	if _, err := a.Inference(context.Background(), "u", nil); err == nil {
		t.Fatalf("expected error when provider nil")
	}
}

func TestRegistry_AppendsSpecialistsToSystemPrompt(t *testing.T) {
	base := config.LLMClientConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKey: "basekey", Model: "basemodel"}}
	list := []config.SpecialistConfig{
		{Name: "beta", Description: "second", Model: "m1"},
		{Name: "alpha", Description: "first", Model: "m2"},
	}
	r := NewRegistry(base, list, http.DefaultClient, nil)
	combined := r.AppendToSystemPrompt("base sys")
	if !strings.Contains(combined, "base sys") {
		t.Fatalf("combined prompt missing base: %q", combined)
	}
	if !strings.Contains(combined, "alpha: first") || !strings.Contains(combined, "beta: second") {
		t.Fatalf("combined prompt missing specialists: %q", combined)
	}
	if !strings.Contains(combined, "Available specialists you can invoke:") {
		t.Fatalf("combined prompt missing addendum header: %q", combined)
	}
}

func TestAppendToSystemPrompt_NoSpecialistsReturnsBaseUnchanged(t *testing.T) {
	r := NewRegistry(config.LLMClientConfig{}, nil, http.DefaultClient, nil)
	if got := r.AppendToSystemPrompt("base sys"); got != "base sys" {
		t.Fatalf("expected unchanged base prompt, got %q", got)
	}
}

func TestBuildProvider_AnthropicOverridesModelAndKey(t *testing.T) {
	base := config.LLMClientConfig{
		Provider:  "anthropic",
		Anthropic: config.AnthropicConfig{APIKey: "basekey", Model: "basemodel"},
	}
	sc := config.SpecialistConfig{Name: "s", Provider: "anthropic", APIKey: "override", Model: "claude-x"}
	prov := buildProvider("anthropic", base, sc, http.DefaultClient)
	if prov == nil {
		t.Fatalf("expected a provider")
	}
}

func TestBuildProvider_GoogleBranchDoesNotPanic(t *testing.T) {
	// Calls the google branch with a config that carries no API key and
	// confirms it returns without panicking; the result is not checked.
	base := config.LLMClientConfig{Provider: "google", Google: config.GoogleConfig{Model: "gemini-x"}}
	sc := config.SpecialistConfig{Name: "s", Provider: "google"}
	_ = buildProvider("google", base, sc, http.DefaultClient)
}
