// Package publishedchat implements SPEC_FULL §4.7's Published Chat Front: a
// thin HTTP/SSE adapter over the engine for a *published agent*. It resolves
// a preset by id, confirms it is published, selects transport mode from the
// preset's api_response_mode, loads/creates the session, builds the engine
// with preset-derived tool/skill allowlists, invokes Agent.Run, and
// propagates events — rejecting requests whose transport doesn't match the
// preset's declared mode.
package publishedchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"agentengine/internal/agent"
	"agentengine/internal/persistence"
	"agentengine/internal/sandbox"
)

// AgentBuilder constructs the engine for one request, with tool/skill
// allowlists and model selection already resolved from the preset. Supplied
// by the entrypoint so this package stays independent of LLM provider and
// tool registry wiring.
type AgentBuilder func(ctx context.Context, preset persistence.AgentPreset) (*agent.Agent, error)

// Server is the echo-based Published Chat Front.
type Server struct {
	Echo       *echo.Echo
	Presets    persistence.PresetStore
	Sessions   persistence.ChatStore
	Traces     persistence.TraceStore
	BuildAgent AgentBuilder
	RunTimeout time.Duration
	// BaseDir is the sandbox working directory file tools resolve paths
	// against for every request (sandbox.WithBaseDir).
	BaseDir string
}

// NewServer wires the chat route onto a fresh echo.Echo instance. The
// returned Server implements http.Handler so callers can mount it directly
// or embed it under a path prefix in an existing mux.
func NewServer(presets persistence.PresetStore, sessions persistence.ChatStore, traces persistence.TraceStore, baseDir string, build AgentBuilder) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{Echo: e, Presets: presets, Sessions: sessions, Traces: traces, BuildAgent: build, RunTimeout: 5 * time.Minute, BaseDir: baseDir}
	e.POST("/v1/chat/:presetID", s.handleChat)
	return s
}

// ServeHTTP satisfies http.Handler so Server can be mounted into a stdlib mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Echo.ServeHTTP(w, r)
}

type chatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleChat(c echo.Context) error {
	presetID := c.Param("presetID")
	ctx := sandbox.WithBaseDir(c.Request().Context(), s.BaseDir)

	preset, err := s.Presets.Get(ctx, presetID)
	if errors.Is(err, persistence.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "preset not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if !preset.Published {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "preset not published"})
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad request"})
	}

	wantsStream := c.Request().Header.Get("Accept") == "text/event-stream"
	presetIsStreaming := preset.APIResponseMode == persistence.APIResponseModeStreaming
	if wantsStream != presetIsStreaming {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "transport mismatch: preset api_response_mode is " + preset.APIResponseMode,
		})
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	session, err := s.Sessions.EnsureSession(ctx, nil, sessionID, preset.Name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	ag, err := s.BuildAgent(ctx, preset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	runCtx, cancel := context.WithTimeout(ctx, s.RunTimeout)
	defer cancel()

	opts := agent.RunOptions{
		MaxTurns:        preset.MaxTurns,
		ModelProvider:   preset.ModelProvider,
		Model:           preset.Model,
		SkillsAllowlist: preset.SkillIDs,
		ToolsAllowlist:  preset.BuiltinTools,
		MCPServers:      preset.MCPServers,
		ExecutorName:    preset.ExecutorID,
		SessionID:       session.ID,
	}

	runStart := time.Now()
	trace, traceErr := s.Traces.Create(ctx, persistence.Trace{
		ID:            uuid.NewString(),
		Request:       req.Prompt,
		ModelProvider: preset.ModelProvider,
		Model:         preset.Model,
		Status:        persistence.TraceStatusRunning,
		SessionID:     session.ID,
	})
	if traceErr != nil {
		log.Warn().Err(traceErr).Msg("create trace record")
	}

	if presetIsStreaming {
		return s.streamChat(c, runCtx, ag, req.Prompt, opts, session, trace, traceErr == nil, runStart)
	}
	return s.syncChat(c, runCtx, ag, req.Prompt, opts, session, trace, traceErr == nil, runStart)
}

func (s *Server) syncChat(c echo.Context, ctx context.Context, ag *agent.Agent, prompt string, opts agent.RunOptions, session persistence.ChatSession, trace persistence.Trace, haveTrace bool, runStart time.Time) error {
	result, err := ag.Run(ctx, prompt, nil, opts, nil)
	if haveTrace {
		recordTraceCompletion(context.Background(), s.Traces, trace, result, err, time.Since(runStart))
	}
	s.persistSession(context.Background(), session.ID, prompt, result)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if !result.Success {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": result.Error})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session_id": session.ID,
		"answer":     result.Answer,
		"turns":      result.TotalTurns,
	})
}

func (s *Server) streamChat(c echo.Context, ctx context.Context, ag *agent.Agent, prompt string, opts agent.RunOptions, session persistence.ChatSession, trace persistence.Trace, haveTrace bool, runStart time.Time) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "streaming unsupported")
	}

	write := func(ev agent.StreamEvent) {
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Response(), "data: %s\n\n", b)
		flusher.Flush()
	}

	stream := agent.NewEventStream(64)
	done := make(chan agent.AgentResult, 1)
	go func() {
		defer stream.Close()
		result, err := ag.Run(ctx, prompt, nil, opts, stream)
		if err != nil {
			result.Error = err.Error()
		}
		if haveTrace {
			recordTraceCompletion(context.Background(), s.Traces, trace, result, err, time.Since(runStart))
		}
		s.persistSession(context.Background(), session.ID, prompt, result)
		done <- result
	}()

	write(agent.StreamEvent{Type: agent.EventRunStarted, Data: map[string]any{"trace_id": trace.ID, "session_id": session.ID}})

	for ev := range stream.Events() {
		write(ev)
	}
	<-done
	return nil
}

// persistSession implements the Session Store's append-to-display write
// (spec.md §4.6): the latest user request and final assistant answer are
// appended, never rewritten. Failures are logged, not propagated — a
// published chat response already reached the caller.
func (s *Server) persistSession(ctx context.Context, sessionID, prompt string, result agent.AgentResult) {
	now := time.Now().UTC()
	msgs := []persistence.ChatMessage{
		{ID: uuid.NewString(), SessionID: sessionID, Role: "user", Content: prompt, CreatedAt: now},
	}
	if result.Answer != "" {
		msgs = append(msgs, persistence.ChatMessage{ID: uuid.NewString(), SessionID: sessionID, Role: "assistant", Content: result.Answer, CreatedAt: now})
	}
	preview := result.Answer
	if len(preview) > 200 {
		preview = preview[:200]
	}
	if err := s.Sessions.AppendMessages(ctx, nil, sessionID, msgs, preview, ""); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("append session messages")
	}
}

// recordTraceCompletion updates the pre-created trace record with the
// outcome of a finished agent run. Failures to persist are logged, never
// returned, since engine correctness never depends on the recorder.
func recordTraceCompletion(ctx context.Context, store persistence.TraceStore, trace persistence.Trace, result agent.AgentResult, runErr error, dur time.Duration) {
	trace.Status = persistence.TraceStatusCompleted
	trace.Success = result.Success
	trace.Answer = result.Answer
	trace.Error = result.Error
	if runErr != nil && trace.Error == "" {
		trace.Error = runErr.Error()
	}
	if !result.Success {
		trace.Status = persistence.TraceStatusFailed
	}
	trace.TotalTurns = result.TotalTurns
	trace.TotalInputTokens = result.TotalInputTokens
	trace.TotalOutputTokens = result.TotalOutputTokens
	trace.SkillsUsed = result.SkillsUsed
	trace.DurationMS = dur.Milliseconds()
	if steps, err := json.Marshal(result.Steps); err == nil {
		trace.Steps = steps
	}
	if calls, err := json.Marshal(result.LLMCalls); err == nil {
		trace.LLMCalls = calls
	}
	if err := store.Update(ctx, trace); err != nil {
		log.Warn().Err(err).Str("trace_id", trace.ID).Msg("update trace record")
	}
}
