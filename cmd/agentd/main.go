package main

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joho/godotenv"

	"github.com/google/uuid"

	"agentengine/internal/agent"
	"agentengine/internal/agent/prompts"
	"agentengine/internal/config"
	llmpkg "agentengine/internal/llm"
	openaillm "agentengine/internal/llm/openai"
	"agentengine/internal/observability"
	"agentengine/internal/persistence"
	"agentengine/internal/persistence/databases"
	"agentengine/internal/publishedchat"
	"agentengine/internal/sandbox"
	"agentengine/internal/tools"
	"agentengine/internal/tools/cli"
	"agentengine/internal/tools/filetool"
	kafkatool "agentengine/internal/tools/kafka"
	"agentengine/internal/tools/skillregistry"
	"agentengine/internal/tools/web"
)

//go:embed templates/*
var assets embed.FS

func main() {
	// Load environment from .env (or fallback to example.env) so local
	// development can run without exporting variables manually. Do this
	// before initializing the logger so LOG_PATH/LOG_LEVEL are respected.
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	// Initialize logger next (after .env has been loaded)
	observability.InitLogger("sio.log", "trace")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	shutdown, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		// don't abort startup for observability failures; log and continue
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)
	if len(cfg.OpenAI.ExtraHeaders) > 0 {
		httpClient = observability.WithHeaders(httpClient, cfg.OpenAI.ExtraHeaders)
	}
	llmpkg.ConfigureLogging(cfg.LogPayloads, cfg.OutputTruncateByte)
	llm := openaillm.New(cfg.OpenAI, httpClient)

	registry := tools.NewRegistryWithLogging(cfg.LogPayloads)
	mgr, err := databases.NewManager(context.Background(), cfg.Databases)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init databases")
	}
	defer mgr.Close()
	if cfg.Kafka.Brokers != "" && cfg.Kafka.TracesTopic != "" {
		if w, err := kafkatool.NewProducerFromBrokers(cfg.Kafka.Brokers); err != nil {
			log.Warn().Err(err).Msg("trace outbox mirror disabled: kafka producer init failed")
		} else {
			mgr.Trace = databases.NewOutboxMirroredTraceStore(mgr.Trace, w, cfg.Kafka.TracesTopic)
		}
	}
	exec := cli.NewExecutor(cfg.Exec, cfg.Workdir, cfg.OutputTruncateByte)
	registry.Register(cli.NewTool(exec))
	registry.Register(web.NewTool(cfg.Web.SearXNGURL))
	registry.Register(web.NewFetchTool(mgr.Search))
	registry.Register(filetool.NewReadTool([]string{cfg.Workdir}, 0))
	registry.Register(filetool.NewWriteTool([]string{cfg.Workdir}, 0))
	registry.Register(skillregistry.NewListTool(mgr.Skills))
	registry.Register(skillregistry.NewFetchTool(mgr.Skills))

	ag := &agent.Agent{
		LLM:        llm,
		Tools:      &agent.ToolInvoker{Registry: registry},
		System:     prompts.DefaultSystemPrompt(cfg.Workdir, cfg.SystemPrompt),
		Summarizer: agent.NewLLMSummarizer(llm, cfg.OpenAI.Model),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ready")
	})
	mux.HandleFunc("/agent/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// If no OpenAI API key is configured, return a deterministic dev response
		// so the web UI can be exercised locally without external credentials.
		if cfg.OpenAI.APIKey == "" {
			// Support SSE if requested
			if r.Header.Get("Accept") == "text/event-stream" {
				w.Header().Set("Content-Type", "text/event-stream")
				w.Header().Set("Cache-Control", "no-cache")
				fl, _ := w.(http.Flusher)
				if b, err := json.Marshal("(dev) mock response: " + req.Prompt); err == nil {
					fmt.Fprintf(w, "event: final\ndata: %s\n\n", b)
				} else {
					fmt.Fprintf(w, "event: final\ndata: %q\n\n", "(dev) mock response")
				}
				fl.Flush()
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "(dev) mock response: " + req.Prompt})
			return
		}

		// If client requested SSE, run with an EventStream and proxy deltas/tool events
		if r.Header.Get("Accept") == "text/event-stream" {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			fl, ok := w.(http.Flusher)
			if !ok {
				http.Error(w, "streaming not supported", http.StatusInternalServerError)
				return
			}

			ctx, cancel := context.WithTimeout(sandbox.WithBaseDir(context.Background(), cfg.Workdir), 5*time.Minute)
			defer cancel()

			runStart := time.Now()
			trace, traceErr := mgr.Trace.Create(ctx, persistence.Trace{
				ID:            uuid.NewString(),
				Request:       req.Prompt,
				ModelProvider: cfg.LLMClient.Provider,
				Model:         cfg.OpenAI.Model,
				Status:        persistence.TraceStatusRunning,
			})
			if traceErr != nil {
				log.Warn().Err(traceErr).Msg("create trace record")
			}

			stream := agent.NewEventStream(64)
			done := make(chan agent.AgentResult, 1)
			go func() {
				defer stream.Close()
				result, err := ag.Run(ctx, req.Prompt, nil, agent.RunOptions{}, stream)
				if err != nil {
					result.Error = err.Error()
				}
				if traceErr == nil {
					recordTraceCompletion(context.Background(), mgr.Trace, trace, result, err, time.Since(runStart))
				}
				done <- result
			}()

			for ev := range stream.Events() {
				switch ev.Type {
				case agent.EventTextDelta:
					payload := map[string]any{"type": "delta", "data": ev.Data["text"]}
					b, _ := json.Marshal(payload)
					fmt.Fprintf(w, "data: %s\n\n", b)
					fl.Flush()
				case agent.EventToolCall, agent.EventToolResult:
					payload := map[string]any{"type": "tool", "title": fmt.Sprintf("Tool: %v", ev.Data["tool_name"]), "data": ev.Data}
					b, _ := json.Marshal(payload)
					fmt.Fprintf(w, "data: %s\n\n", b)
					fl.Flush()
				}
			}

			result := <-done
			if result.Error != "" && !result.Success {
				log.Error().Str("error", result.Error).Msg("agent run error")
				if b, err2 := json.Marshal("(error) " + result.Error); err2 == nil {
					fmt.Fprintf(w, "data: %s\n\n", b)
				} else {
					fmt.Fprintf(w, "data: %q\n\n", "(error)")
				}
				fl.Flush()
				return
			}
			payload := map[string]string{"type": "final", "data": result.Answer}
			b, _ := json.Marshal(payload)
			fmt.Fprintf(w, "data: %s\n\n", b)
			fl.Flush()
			return
		}

		// Non-streaming path
		ctx, cancel := context.WithTimeout(sandbox.WithBaseDir(context.Background(), cfg.Workdir), 2*time.Minute)
		defer cancel()
		runStart := time.Now()
		trace, traceErr := mgr.Trace.Create(ctx, persistence.Trace{
			ID:            uuid.NewString(),
			Request:       req.Prompt,
			ModelProvider: cfg.LLMClient.Provider,
			Model:         cfg.OpenAI.Model,
			Status:        persistence.TraceStatusRunning,
		})
		if traceErr != nil {
			log.Warn().Err(traceErr).Msg("create trace record")
		}
		result, err := ag.Run(ctx, req.Prompt, nil, agent.RunOptions{}, nil)
		if traceErr == nil {
			recordTraceCompletion(ctx, mgr.Trace, trace, result, err, time.Since(runStart))
		}
		if err != nil {
			log.Error().Err(err).Msg("agent run error")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !result.Success {
			log.Error().Str("error", result.Error).Msg("agent run incomplete")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"result": result.Answer})
	})

	// Published Chat Front (SPEC_FULL §4.7): preset-driven HTTP/SSE adapter,
	// mounted under /v1/ alongside the dev /agent/run endpoint above.
	chatFront := publishedchat.NewServer(mgr.Presets, mgr.Chat, mgr.Trace, cfg.Workdir, func(_ context.Context, preset persistence.AgentPreset) (*agent.Agent, error) {
		presetRegistry := registry
		if len(preset.BuiltinTools) > 0 {
			presetRegistry = tools.NewFilteredRegistry(registry, preset.BuiltinTools)
		}
		systemPrompt := prompts.DefaultSystemPrompt(cfg.Workdir, preset.SystemPrompt)
		return &agent.Agent{
			LLM:        llm,
			Tools:      &agent.ToolInvoker{Registry: presetRegistry},
			System:     systemPrompt,
			Summarizer: agent.NewLLMSummarizer(llm, preset.Model),
		}, nil
	})
	mux.Handle("/v1/", chatFront)

	// Serve static files under /static/
	fs := http.FS(assets)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(fs)))

	// Serve index on /
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f, err := assets.Open("templates/index.html")
		if err != nil {
			log.Printf("open index: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := io.Copy(w, f); err != nil {
			log.Printf("copy index: %v", err)
		}
	})

	log.Info().Msg("agentd listening on :32180")
	if err := http.ListenAndServe(":32180", mux); err != nil {
		log.Fatal().Err(err).Msg("server failed")
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
