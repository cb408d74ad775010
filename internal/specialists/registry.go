// Package specialists implements named sub-agents that the orchestrator can
// delegate single-turn inference to: each one carries its own model
// provider/credentials (falling back to the orchestrator's LLMClientConfig),
// an optional filtered tool view, and a system prompt. Registry holds the
// live set, rebuilt whenever the backing store changes.
package specialists

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"agentengine/internal/config"
	"agentengine/internal/llm"
	"agentengine/internal/llm/anthropic"
	"agentengine/internal/llm/google"
	"agentengine/internal/llm/openai"
	"agentengine/internal/tools"
)

// Agent is one configured specialist: a model provider plus an optional
// tool view, invoked for a single turn of inference at a time.
type Agent struct {
	Name                       string
	Description                string
	Model                      string
	System                     string
	SummaryContextWindowTokens int
	EnableTools                bool
	ReasoningEffort            string
	ExtraParams                map[string]any

	provider llm.Provider
	tools    tools.Registry
}

// Provider returns the specialist's configured LLM provider.
func (a *Agent) Provider() llm.Provider { return a.provider }

// ToolsRegistry returns the specialist's filtered tool view, or nil when
// tools are disabled for this specialist.
func (a *Agent) ToolsRegistry() tools.Registry { return a.tools }

// Inference runs one turn: the specialist's system prompt plus prior
// history plus the new user message go to its provider; at most one
// resulting tool call is dispatched and fed back for a final answer.
func (a *Agent) Inference(ctx context.Context, user string, history []llm.Message) (string, error) {
	if a == nil || a.provider == nil {
		return "", fmt.Errorf("specialist %q has no configured provider", a.name())
	}
	msgs := buildMessages(a.System, history, user)
	var schemas []llm.ToolSchema
	if a.EnableTools && a.tools != nil {
		schemas = a.tools.Schemas()
	}
	resp, err := a.provider.Chat(ctx, msgs, schemas, a.Model)
	if err != nil {
		return "", err
	}
	if len(resp.ToolCalls) == 0 || a.tools == nil {
		return resp.Content, nil
	}
	tc := resp.ToolCalls[0]
	result, err := a.tools.Dispatch(ctx, tc.Name, tc.Args)
	if err != nil {
		return "", err
	}
	msgs = append(msgs, resp, llm.Message{Role: "tool", Content: string(result), ToolID: tc.ID})
	final, err := a.provider.Chat(ctx, msgs, schemas, a.Model)
	if err != nil {
		return "", err
	}
	return final.Content, nil
}

func (a *Agent) name() string {
	if a == nil {
		return ""
	}
	return a.Name
}

func buildMessages(system string, history []llm.Message, user string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: system})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: "user", Content: user})
	return msgs
}

// Registry holds the live set of specialist agents, keyed by name.
type Registry struct {
	mu                   sync.RWMutex
	agents               map[string]*Agent
	systemPromptAddendum string
	workdir              string
}

// NewRegistry builds a Registry from a list of specialist configs, resolved
// against the orchestrator's base LLM client config.
func NewRegistry(base config.LLMClientConfig, list []config.SpecialistConfig, httpClient *http.Client, toolsReg tools.Registry) *Registry {
	r := &Registry{agents: make(map[string]*Agent)}
	r.ReplaceFromConfigs(base, list, httpClient, toolsReg)
	return r
}

// SetWorkdir records the sandbox working directory specialists run under.
// Specialists don't currently read it directly, but callers that rebuild
// the registry expect it to survive a Replace.
func (r *Registry) SetWorkdir(workdir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workdir = workdir
}

// ReplaceFromConfigs rebuilds the entire agent set, discarding the
// previous one. Paused specialists and unnamed entries are skipped.
func (r *Registry) ReplaceFromConfigs(base config.LLMClientConfig, list []config.SpecialistConfig, httpClient *http.Client, toolsReg tools.Registry) {
	agents := make(map[string]*Agent, len(list))
	var addenda []string
	for _, sc := range list {
		if sc.Paused {
			continue
		}
		name := strings.TrimSpace(sc.Name)
		if name == "" {
			continue
		}
		providerName := strings.TrimSpace(sc.Provider)
		if providerName == "" {
			providerName = base.Provider
		}
		var toolsView tools.Registry
		if sc.EnableTools && toolsReg != nil {
			toolsView = tools.NewFilteredRegistry(toolsReg, sc.AllowTools)
		}
		agents[name] = &Agent{
			Name:                       name,
			Description:                sc.Description,
			Model:                      sc.Model,
			System:                     sc.System,
			SummaryContextWindowTokens: sc.SummaryContextWindowTokens,
			EnableTools:                sc.EnableTools,
			ReasoningEffort:            strings.TrimSpace(sc.ReasoningEffort),
			ExtraParams:                sc.ExtraParams,
			provider:                   buildProvider(providerName, base, sc, httpClient),
			tools:                      toolsView,
		}
		if sc.Description != "" {
			addenda = append(addenda, fmt.Sprintf("- %s: %s", name, sc.Description))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = agents
	r.systemPromptAddendum = buildSystemPromptAddendum(addenda)
}

// Names returns the registered specialist names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for name := range r.agents {
		out = append(out, name)
	}
	return out
}

// Get returns the named specialist, if registered.
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// AppendToSystemPrompt combines the orchestrator's base system prompt with
// a listing of the available specialists, so the orchestrator LLM knows
// what it can delegate to.
func (r *Registry) AppendToSystemPrompt(base string) string {
	r.mu.RLock()
	addendum := r.systemPromptAddendum
	r.mu.RUnlock()
	return combineSystemPrompts(base, addendum)
}

func combineSystemPrompts(base, addendum string) string {
	base = strings.TrimRight(base, "\n")
	if addendum == "" {
		return base
	}
	if base == "" {
		return addendum
	}
	return base + "\n\n" + addendum
}

func buildSystemPromptAddendum(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "Available specialists you can invoke:\n" + strings.Join(lines, "\n")
}

func buildProvider(providerName string, base config.LLMClientConfig, sc config.SpecialistConfig, httpClient *http.Client) llm.Provider {
	client := httpClient
	if len(sc.ExtraHeaders) > 0 {
		client = &http.Client{Transport: &headerTransport{base: httpClient.Transport, headers: sc.ExtraHeaders}}
		if httpClient != nil {
			client.Timeout = httpClient.Timeout
		}
	}
	switch providerName {
	case "anthropic":
		cfg := base.Anthropic
		if v := strings.TrimSpace(sc.BaseURL); v != "" {
			cfg.BaseURL = v
		}
		if v := strings.TrimSpace(sc.APIKey); v != "" {
			cfg.APIKey = v
		}
		if v := strings.TrimSpace(sc.Model); v != "" {
			cfg.Model = v
		}
		if len(sc.ExtraParams) > 0 {
			cfg.ExtraParams = mergeAnyMap(cfg.ExtraParams, sc.ExtraParams)
		}
		return anthropic.New(cfg, client)
	case "google":
		cfg := base.Google
		if v := strings.TrimSpace(sc.BaseURL); v != "" {
			cfg.BaseURL = v
		}
		if v := strings.TrimSpace(sc.APIKey); v != "" {
			cfg.APIKey = v
		}
		if v := strings.TrimSpace(sc.Model); v != "" {
			cfg.Model = v
		}
		prov, err := google.New(cfg, client)
		if err != nil {
			return nil
		}
		return prov
	default:
		cfg := base.OpenAI
		if v := strings.TrimSpace(sc.BaseURL); v != "" {
			cfg.BaseURL = v
		}
		if v := strings.TrimSpace(sc.APIKey); v != "" {
			cfg.APIKey = v
		}
		if v := strings.TrimSpace(sc.Model); v != "" {
			cfg.Model = v
		}
		if v := strings.TrimSpace(sc.API); v != "" {
			cfg.API = v
		}
		if sc.ExtraHeaders != nil {
			cfg.ExtraHeaders = sc.ExtraHeaders
		}
		if len(sc.ExtraParams) > 0 {
			cfg.ExtraParams = mergeAnyMap(cfg.ExtraParams, sc.ExtraParams)
		}
		return openai.New(cfg, client)
	}
}

// headerTransport injects fixed headers onto every outgoing request,
// layered on top of whatever transport the caller already configured.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := h.base
	if base == nil {
		base = http.DefaultTransport
	}
	cloned := req.Clone(req.Context())
	for k, v := range h.headers {
		cloned.Header.Set(k, v)
	}
	return base.RoundTrip(cloned)
}
