package tools

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"agentengine/internal/llm"
	"agentengine/internal/observability"
)

// loggingRegistry wraps a Registry and logs every dispatch at info level,
// redacting payloads the way the rest of the engine redacts LLM traffic.
type loggingRegistry struct {
	base       Registry
	logPayload bool
}

// NewRegistryWithLogging returns a Registry that logs each dispatch. When
// logPayload is false, only the tool name and error (if any) are logged —
// arguments and results are omitted to avoid leaking tool input/output into
// logs by default.
func NewRegistryWithLogging(logPayload bool) Registry {
	return &loggingRegistry{base: NewRegistry(), logPayload: logPayload}
}

func (r *loggingRegistry) Register(t Tool) { r.base.Register(t) }

func (r *loggingRegistry) Schemas() []llm.ToolSchema { return r.base.Schemas() }

func (r *loggingRegistry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	payload, err := r.base.Dispatch(ctx, name, raw)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	if r.logPayload {
		ev.Str("tool", name).RawJSON("args", observability.RedactJSON(raw)).RawJSON("result", observability.RedactJSON(payload)).Msg("tool_dispatch")
	} else {
		ev.Str("tool", name).Msg("tool_dispatch")
	}
	return payload, err
}

// filteredRegistry exposes only an allow-listed subset of an underlying
// Registry's tools while still dispatching to the full underlying set (a
// tool that slips through by name still executes; the allow-list governs
// what the LLM is told exists, matching the schema/dispatch split the turn
// loop relies on).
type filteredRegistry struct {
	base  Registry
	allow map[string]struct{}
}

// NewFilteredRegistry restricts the schemas advertised to the LLM to names
// present in allowList, leaving dispatch to the underlying registry
// untouched. Tools registered through the returned Registry afterward (such
// as MCP tools) are added to the allow-list and so are advertised as well;
// tools already in base are advertised only when allowList names them.
func NewFilteredRegistry(base Registry, allowList []string) Registry {
	allow := make(map[string]struct{}, len(allowList))
	for _, n := range allowList {
		allow[n] = struct{}{}
	}
	return &filteredRegistry{base: base, allow: allow}
}

func (r *filteredRegistry) Register(t Tool) {
	r.base.Register(t)
	if len(r.allow) > 0 {
		r.allow[t.Name()] = struct{}{}
	}
}

func (r *filteredRegistry) Schemas() []llm.ToolSchema {
	all := r.base.Schemas()
	if len(r.allow) == 0 {
		return all
	}
	out := make([]llm.ToolSchema, 0, len(all))
	for _, s := range all {
		if _, ok := r.allow[s.Name]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *filteredRegistry) Dispatch(ctx context.Context, name string, raw json.RawMessage) ([]byte, error) {
	return r.base.Dispatch(ctx, name, raw)
}
