package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agentengine/internal/llm"
	"agentengine/internal/observability"
	"agentengine/internal/tools"
)

// Turn-budget defaults, spec.md §6.1/§6.5.
const (
	DefaultMaxTurns = 60
	MinMaxTurns     = 1
	MaxMaxTurns     = 60000
	maxLLMRetries   = 3
)

var retryBackoffs = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// RunOptions is the Run invocation contract of spec.md §6.1.
type RunOptions struct {
	MaxTurns            int
	ModelProvider       string
	Model               string
	ConversationHistory []Message
	ImageContents       []ImageBlock
	SkillsAllowlist     []string
	ToolsAllowlist      []string
	MCPServers          []string
	CustomSystemPrompt  string
	ExecutorName        string
	SessionID           string
}

func (o RunOptions) maxTurns() int {
	if o.MaxTurns <= 0 {
		return DefaultMaxTurns
	}
	if o.MaxTurns < MinMaxTurns {
		return MinMaxTurns
	}
	if o.MaxTurns > MaxMaxTurns {
		return MaxMaxTurns
	}
	return o.MaxTurns
}

// Step records one tool invocation in the trace timeline, spec.md §6.3.
type Step struct {
	Turn       int             `json:"turn"`
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input"`
	ToolResult string          `json:"tool_result"`
	IsError    bool            `json:"is_error"`
}

// LLMCallRecord is one entry in the trace's llm_calls timeline.
type LLMCallRecord struct {
	Turn         int    `json:"turn"`
	DurationMS   int64  `json:"duration_ms"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	StopReason   string `json:"stop_reason"`
	Attempt      int    `json:"attempt"`
}

// AgentResult is the aggregated outcome of one request, spec.md §3.
type AgentResult struct {
	Success            bool
	Answer             string
	Steps              []Step
	LLMCalls           []LLMCallRecord
	TotalTurns         int
	TotalInputTokens   int
	TotalOutputTokens  int
	Error              string
	SkillsUsed         []string
	OutputFiles        []OutputFile
	FinalMessages      []Message
}

// Agent owns the message list for one request and drives the turn loop of
// spec.md §4.4.
type Agent struct {
	LLM        llm.Provider
	Tools      *ToolInvoker
	System     string
	Tracer     AgentTracer

	// ContextLimit overrides the (provider, model) context-window lookup
	// when non-zero.
	ContextLimit int

	// Summarizer backs the Compressor's recursive LLM use. When nil,
	// compression falls back to the truncated-transcript path on every
	// trigger (spec.md §7.6).
	Summarizer Summarizer

	toolCallSeq uint64
}

func (a *Agent) contextLimit(model string) int {
	if a.ContextLimit > 0 {
		return a.ContextLimit
	}
	if sz, ok := llm.ContextSize(model); ok {
		return sz
	}
	return 128_000
}

func (a *Agent) nextToolCallID() string {
	a.toolCallSeq++
	return fmt.Sprintf("call-%d", a.toolCallSeq)
}

// ensureToolCallIDs backfills an ID for any tool_use block a provider client
// returned without one, so ToolResultBlock.ToolUseID always has something to
// reference (invariant M1).
func (a *Agent) ensureToolCallIDs(m Message) Message {
	for i, b := range m.Blocks {
		if tu, ok := b.(ToolUseBlock); ok && tu.ID == "" {
			tu.ID = a.nextToolCallID()
			m.Blocks[i] = tu
		}
	}
	return m
}

// Run executes the turn loop for one request. If stream is non-nil, events
// are pushed there as they happen and the caller is responsible for
// consuming and eventually closing it (streaming mode); if stream is nil, an
// internal stream is created and drained, discarding intermediate events
// (non-streaming mode), per the design note in spec.md §9.
func (a *Agent) Run(ctx context.Context, requestText string, images []ImageBlock, opts RunOptions, stream *EventStream) (AgentResult, error) {
	owned := stream == nil
	if owned {
		stream = NewEventStream(64)
		defer stream.Close()
		go drainStream(stream)
	}

	logger := observability.LoggerWithTrace(ctx)
	maxTurns := opts.maxTurns()
	model := opts.Model

	effective := *a
	if opts.CustomSystemPrompt != "" {
		if effective.System == "" {
			effective.System = opts.CustomSystemPrompt
		} else {
			effective.System = effective.System + "\n\n" + opts.CustomSystemPrompt
		}
	}
	if len(opts.ToolsAllowlist) > 0 && effective.Tools != nil && effective.Tools.Registry != nil {
		filtered := *effective.Tools
		filtered.Registry = tools.NewFilteredRegistry(effective.Tools.Registry, opts.ToolsAllowlist)
		effective.Tools = &filtered
	}
	a = &effective

	msgs := buildInitialMessages(opts.ConversationHistory, requestText, images)

	logger.Debug().Str("session_id", opts.SessionID).Str("model", model).Int("max_turns", maxTurns).Msg("agent run started")
	stream.Push(StreamEvent{Type: EventRunStarted, Data: map[string]any{"session_id": opts.SessionID, "model": model, "max_turns": maxTurns}})

	result := a.runLoop(ctx, logger, msgs, maxTurns, model, stream)
	logger.Debug().Bool("success", result.Success).Int("total_turns", result.TotalTurns).Msg("agent run finished")
	return result, nil
}

func drainStream(s *EventStream) {
	for range s.Events() {
	}
}

func buildInitialMessages(history []Message, requestText string, images []ImageBlock) []Message {
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	user := Message{Role: "user", Text: requestText}
	if len(images) > 0 {
		blocks := make([]Block, 0, len(images)+1)
		if requestText != "" {
			blocks = append(blocks, TextBlock{Text: requestText})
		}
		for _, img := range images {
			blocks = append(blocks, img)
		}
		user = Message{Role: "user", Blocks: blocks}
	}
	msgs = append(msgs, user)
	return msgs
}

func (a *Agent) runLoop(ctx context.Context, logger *zerolog.Logger, msgs []Message, maxTurns int, model string, stream *EventStream) AgentResult {
	var result AgentResult
	var skillsUsed []string
	skillsSeen := map[string]struct{}{}
	var outputFiles []OutputFile
	outputFilesSeen := map[string]struct{}{}

	turn := 0
	lastInputTokens := 0
	contextLimit := a.contextLimit(model)

	for turn < maxTurns {
		if isCancelled(ctx) {
			return cancelledResult(result, msgs)
		}

		if ShouldCompress(lastInputTokens, contextLimit) {
			compressed, in, out, err := Compress(ctx, msgs, contextLimit, a.Summarizer)
			if err == nil {
				msgs = compressed
				result.TotalInputTokens += in
				result.TotalOutputTokens += out
				stream.Push(StreamEvent{Type: EventContextCompressed, Turn: turn, Data: map[string]any{
					"previous_tokens": lastInputTokens,
					"context_limit":   contextLimit,
				}})
			}
		}

		turn++
		stream.Push(StreamEvent{Type: EventTurnStart, Turn: turn, Data: map[string]any{"max_turns": maxTurns}})

		resp, attempt, streamErr := a.callLLM(ctx, logger, msgs, model, stream, turn)
		if streamErr != nil {
			stream.Push(StreamEvent{Type: EventError, Turn: turn, Data: map[string]any{"message": streamErr.Error()}})
			result.Success = false
			result.Error = streamErr.Error()
			result.Answer = ""
			result.TotalTurns = turn
			result.FinalMessages = msgs
			return result
		}

		assistantMsg := a.ensureToolCallIDs(fromLLMAssistant(resp))
		msgs = append(msgs, assistantMsg)
		stream.Push(StreamEvent{Type: EventAssistant, Turn: turn, Data: map[string]any{"text": assistantMsg.PlainText()}})

		result.TotalInputTokens += resp.Usage.InputTokens
		result.TotalOutputTokens += resp.Usage.OutputTokens
		lastInputTokens = resp.Usage.InputTokens
		result.LLMCalls = append(result.LLMCalls, LLMCallRecord{
			Turn: turn, InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens,
			StopReason: resp.StopReason, Attempt: attempt,
		})

		toolUses := assistantMsg.ToolUses()

		if resp.StopReason == "max_tokens" && len(toolUses) > 0 {
			var results []ToolResultBlock
			for _, tu := range toolUses {
				results = append(results, ToolResultBlock{
					ToolUseID: tu.ID,
					Content:   "Tool input was truncated because the response hit the max_tokens limit. Please retry with a shorter request.",
					IsError:   true,
				})
			}
			msgs = append(msgs, NewToolResultsMessage(results))
			continue
		}

		if len(toolUses) == 0 {
			if text, ok := stream.TakeInjection(); ok {
				msgs = append(msgs, NewUserText(text))
				stream.Push(StreamEvent{Type: EventSteeringReceived, Turn: turn, Data: map[string]any{"message": text}})
				continue
			}
			result.Success = true
			result.Answer = assistantMsg.PlainText()
			result.TotalTurns = turn
			result.FinalMessages = msgs
			result.SkillsUsed = skillsUsed
			result.OutputFiles = outputFiles
			stream.Push(StreamEvent{Type: EventComplete, Turn: turn, Data: map[string]any{
				"success": true, "answer": result.Answer, "total_turns": turn,
				"total_input_tokens": result.TotalInputTokens, "total_output_tokens": result.TotalOutputTokens,
			}})
			return result
		}

		var toolResults []ToolResultBlock
		for _, tu := range toolUses {
			if isCancelled(ctx) {
				return cancelledResult(result, msgs)
			}

			stream.Push(StreamEvent{Type: EventToolCall, Turn: turn, Data: map[string]any{
				"tool_name": tu.Name, "tool_input": string(tu.Input),
			}})

			rawResult := a.Tools.Invoke(ctx, tu.Name, tu.Input)
			isErr := isErrorPayload(rawResult)

			stream.Push(StreamEvent{Type: EventToolResult, Turn: turn, Data: map[string]any{
				"tool_name": tu.Name, "tool_input": string(tu.Input), "tool_result": truncate(rawResult, 2000),
			}})

			result.Steps = append(result.Steps, Step{
				Turn: turn, ToolName: tu.Name, ToolInput: tu.Input, ToolResult: rawResult, IsError: isErr,
			})

			for _, f := range HarvestOutputFiles(tu.Name, rawResult) {
				if _, seen := outputFilesSeen[f.FileID]; seen {
					continue
				}
				outputFilesSeen[f.FileID] = struct{}{}
				outputFiles = append(outputFiles, f)
				stream.Push(StreamEvent{Type: EventOutputFile, Turn: turn, Data: map[string]any{
					"file_id": f.FileID, "filename": f.Filename, "size": f.Size,
					"content_type": f.ContentType, "download_url": f.DownloadURL,
				}})
			}

			if skill, ok := ExtractSkillUsage(tu.Name, tu.Input); ok {
				if _, seen := skillsSeen[skill]; !seen {
					skillsSeen[skill] = struct{}{}
					skillsUsed = append(skillsUsed, skill)
				}
			}

			toolResults = append(toolResults, ToolResultBlock{ToolUseID: tu.ID, Content: rawResult, IsError: isErr})
		}

		if isCancelled(ctx) {
			return cancelledResult(result, msgs)
		}
		msgs = append(msgs, NewToolResultsMessage(toolResults))

		if text, ok := stream.TakeInjection(); ok {
			msgs = append(msgs, NewUserText(text))
			stream.Push(StreamEvent{Type: EventSteeringReceived, Turn: turn, Data: map[string]any{"message": text}})
		}

		stream.Push(StreamEvent{Type: EventTurnComplete, Turn: turn, Data: map[string]any{"messages_snapshot": len(msgs)}})
	}

	return a.finalizeAfterMaxTurns(ctx, msgs, model, stream, turn)
}

// finalizeAfterMaxTurns implements spec.md §4.4 step 4: one additional,
// tool-free LLM call asking for a best-effort summary of what was
// accomplished, outside the turn budget.
func (a *Agent) finalizeAfterMaxTurns(ctx context.Context, msgs []Message, model string, stream *EventStream, turn int) AgentResult {
	result := AgentResult{TotalTurns: turn, FinalMessages: msgs}
	finalMsgs := append(append([]Message{}, msgs...), NewUserText(
		"You have reached the maximum number of turns for this task. Summarize what you accomplished so far. Do not call any tools.",
	))
	resp, err := a.LLM.Chat(ctx, flattenForProvider(withSystem(finalMsgs, a.System)), nil, model)
	answer := ""
	if err == nil {
		answer = resp.Content
	}
	result.Success = false
	result.Answer = answer
	result.Error = "max_turns_exceeded"
	stream.Push(StreamEvent{Type: EventComplete, Turn: turn, Data: map[string]any{
		"success": false, "answer": answer, "error": "max_turns_exceeded", "total_turns": turn,
	}})
	return result
}

func cancelledResult(partial AgentResult, msgs []Message) AgentResult {
	partial.Success = false
	partial.Answer = "cancelled"
	partial.Error = "cancelled"
	partial.FinalMessages = msgs
	return partial
}

func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func isErrorPayload(raw string) bool {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return false
	}
	if v, ok := m["ok"].(bool); ok && !v {
		return true
	}
	_, hasErr := m["error"]
	return hasErr
}

func withSystem(msgs []Message, system string) []Message {
	if system == "" {
		return msgs
	}
	out := make([]Message, 0, len(msgs)+1)
	out = append(out, Message{Role: "system", Text: system})
	out = append(out, msgs...)
	return out
}

// callLLM invokes the provider with retry/backoff per spec.md §4.4.d and §7.1:
// an initial attempt plus up to maxLLMRetries retries, exponential backoff
// 2s/4s/8s, streaming failures mid-yield fall back to a non-streaming retry.
func (a *Agent) callLLM(ctx context.Context, logger *zerolog.Logger, msgs []Message, model string, stream *EventStream, turn int) (llm.Message, int, error) {
	fullMsgs := flattenForProvider(withSystem(msgs, a.System))
	schemas := toolSchemas(a.Tools)

	maxAttempts := maxLLMRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if isCancelled(ctx) {
			return llm.Message{}, attempt, ctx.Err()
		}

		resp, err := a.callOnce(ctx, fullMsgs, schemas, model, stream, turn)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) || attempt == maxAttempts {
			break
		}
		backoff := retryBackoffs[min(attempt-1, len(retryBackoffs)-1)]
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("retryable llm error, backing off")
		select {
		case <-ctx.Done():
			return llm.Message{}, attempt, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return llm.Message{}, maxAttempts, lastErr
}

// callOnce performs one LLM call attempt. Streaming text deltas are pushed
// live when a caller-visible stream exists; a mid-stream failure falls back
// to one non-streaming call for this same attempt, per spec.md §4.4.d.
func (a *Agent) callOnce(ctx context.Context, msgs []llm.Message, schemas []llm.ToolSchema, model string, stream *EventStream, turn int) (llm.Message, error) {
	h := &deltaForwarder{stream: stream, turn: turn, promptMsgs: msgs}
	err := a.LLM.ChatStream(ctx, msgs, schemas, model, h)
	if err == nil {
		return h.result(), nil
	}
	// Streaming failed mid-yield: fall back to a non-streaming retry of the
	// same attempt rather than burning a retry slot on the streaming path.
	resp, fallbackErr := a.LLM.Chat(ctx, msgs, schemas, model)
	if fallbackErr != nil {
		return llm.Message{}, fallbackErr
	}
	return resp, nil
}

func toolSchemas(t *ToolInvoker) []llm.ToolSchema {
	if t == nil || t.Registry == nil {
		return nil
	}
	return t.Registry.Schemas()
}

// deltaForwarder implements llm.StreamHandler, forwarding text deltas live
// and accumulating the consolidated response.
type deltaForwarder struct {
	stream     *EventStream
	turn       int
	promptMsgs []llm.Message
	content    string
	calls      []llm.ToolCall
	images     []llm.GeneratedImage
	thoughtSig string
}

func (d *deltaForwarder) OnDelta(content string) {
	d.content += content
	d.stream.Push(StreamEvent{Type: EventTextDelta, Turn: d.turn, Data: map[string]any{"text": content}})
}

func (d *deltaForwarder) OnToolCall(tc llm.ToolCall) { d.calls = append(d.calls, tc) }
func (d *deltaForwarder) OnImage(img llm.GeneratedImage) { d.images = append(d.images, img) }
func (d *deltaForwarder) OnThoughtSummary(string)        {}
func (d *deltaForwarder) OnThoughtSignature(sig string)  { d.thoughtSig = sig }

func (d *deltaForwarder) result() llm.Message {
	stopReason := "end_turn"
	if len(d.calls) > 0 {
		stopReason = "tool_use"
	}
	return llm.Message{
		Role: "assistant", Content: d.content, ToolCalls: d.calls, Images: d.images,
		StopReason:       stopReason,
		ThoughtSignature: d.thoughtSig,
		// Streaming providers don't surface final usage through StreamHandler;
		// estimate both sides rather than leave accounting at zero. Anthropic's
		// non-streaming path (the reference provider) reports exact usage.
		Usage: llm.ResponseUsage{InputTokens: llm.EstimateTokensForMessages(d.promptMsgs), OutputTokens: llm.EstimateTokens(d.content)},
	}
}
