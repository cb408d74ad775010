package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"agentengine/internal/agent"
	"agentengine/internal/agent/prompts"
	"agentengine/internal/config"
	llmpkg "agentengine/internal/llm"
	llmproviders "agentengine/internal/llm/providers"
	"agentengine/internal/mcpclient"
	"agentengine/internal/observability"
	"agentengine/internal/persistence"
	"agentengine/internal/persistence/databases"
	"agentengine/internal/sandbox"
	"agentengine/internal/specialists"
	"agentengine/internal/tools"
	"agentengine/internal/tools/cli"
	"agentengine/internal/tools/filetool"
	kafkatool "agentengine/internal/tools/kafka"
	"agentengine/internal/tools/patchtool"
	"agentengine/internal/tools/skillregistry"
	specialiststool "agentengine/internal/tools/specialists"
	"agentengine/internal/tools/web"
)

const systemUserID int64 = 0

const (
	defaultRunTimeout = 2 * time.Minute
	mcpInitTimeout    = 20 * time.Second
)

func main() {
	// Load config first to populate defaults.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	q := flag.String("q", "", "User request")
	maxSteps := flag.Int("max-steps", cfg.MaxSteps, "Max reasoning steps")
	specialist := flag.String("specialist", "", "Name of specialist agent to use (inference-only; no tool calls unless enabled)")
	flag.Parse()
	if *q == "" {
		fmt.Fprintln(os.Stderr, "usage: agent -q \"...\"")
		os.Exit(2)
	}

	if err := run(&cfg, *q, *maxSteps, *specialist); err != nil {
		log.Fatal().Err(err).Msg("agent")
	}
}

func run(cfg *config.Config, query string, maxSteps int, specialistName string) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	log.Info().Msg("agent starting")
	baseCtx := sandbox.WithBaseDir(context.Background(), cfg.Workdir)
	shutdown, err := observability.InitOTel(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	} else {
		// Bridge zerolog to OTLP log exporter
		observability.EnableOTelLogging(cfg.Obs.ServiceName)
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	// Configure global LLM payload logging/truncation before creating providers.
	llmpkg.ConfigureLogging(cfg.LogPayloads, cfg.OutputTruncateByte)

	// Initialize the specialists store and apply DB-backed overrides so the CLI
	// mirrors agentd behavior (specialists and orchestrator loaded from DB).
	var specPool *pgxpool.Pool
	if cfg.Databases.DefaultDSN != "" {
		p, err := databases.OpenPool(baseCtx, cfg.Databases.DefaultDSN)
		if err != nil {
			log.Warn().Err(err).Msg("open specialists db")
		} else {
			specPool = p
		}
	}
	if specPool != nil {
		defer specPool.Close()
	}
	specStore := databases.NewSpecialistsStore(specPool)
	if err := specStore.Init(baseCtx); err != nil {
		log.Warn().Err(err).Msg("init specialists store")
	}
	if err := specialists.SeedStore(baseCtx, specStore, systemUserID, cfg.Specialists); err != nil {
		log.Warn().Err(err).Msg("seed specialists")
	}
	specList, specListErr := specStore.List(baseCtx, systemUserID)
	if specListErr != nil {
		log.Warn().Err(specListErr).Msg("list specialists")
	}
	sp, ok, spErr := specStore.GetByName(baseCtx, systemUserID, specialists.OrchestratorName)
	if spErr != nil {
		log.Warn().Err(spErr).Msg("load orchestrator specialist")
	}
	if ok {
		specialists.ApplyOrchestratorConfig(cfg, sp)
		if strings.TrimSpace(cfg.SystemPrompt) == "" {
			cfg.SystemPrompt = specialists.DefaultOrchestratorPrompt
		}
	} else {
		// Ensure a safe default system prompt when no DB record exists.
		cfg.SystemPrompt = specialists.DefaultOrchestratorPrompt
	}

	httpClient := observability.NewHTTPClient(nil)
	// Inject global headers for the main agent if configured.
	if len(cfg.OpenAI.ExtraHeaders) > 0 {
		httpClient = observability.WithHeaders(httpClient, cfg.OpenAI.ExtraHeaders)
	}

	// Create the LLM provider after potential DB overrides.
	llm, err := llmproviders.Build(*cfg, httpClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	// Build specialists registry from DB (fallback to YAML) so the CLI resolves
	// the same set as agentd.
	var specReg *specialists.Registry
	if specListErr == nil {
		specReg = specialists.NewRegistry(cfg.LLMClient, specialists.ConfigsFromStore(specList), httpClient, nil)
	} else {
		specReg = specialists.NewRegistry(cfg.LLMClient, cfg.Specialists, httpClient, nil)
	}
	specReg.SetWorkdir(cfg.Workdir)

	// If a specialist was requested, route the query directly and exit.
	if strings.TrimSpace(specialistName) != "" {
		a, ok := specReg.Get(specialistName)
		if !ok {
			return fmt.Errorf("unknown specialist %q; available: %v", specialistName, specReg.Names())
		}
		log.Info().Str("specialist", specialistName).Msg("direct specialist invocation")
		ctx, cancel := context.WithTimeout(baseCtx, defaultRunTimeout)
		defer cancel()
		out, err := a.Inference(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("specialist %q: %w", specialistName, err)
		}
		fmt.Println(out)
		return nil
	}

	registry := tools.NewRegistryWithLogging(cfg.LogPayloads)
	mgr, err := databases.NewManager(baseCtx, cfg.Databases)
	if err != nil {
		return fmt.Errorf("init databases: %w", err)
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
	registry.Register(cli.NewTool(exec))               // provides run_cli
	registry.Register(web.NewTool(cfg.Web.SearXNGURL)) // provides web_search
	registry.Register(web.NewFetchTool(mgr.Search))    // provides web_fetch
	// Register patch application tool (*** Begin Patch format).
	registry.Register(patchtool.New(cfg.Workdir)) // provides apply_patch
	// Register file read/write tools locked to the working directory.
	registry.Register(filetool.NewReadTool([]string{cfg.Workdir}, 0))  // provides file_read
	registry.Register(filetool.NewWriteTool([]string{cfg.Workdir}, 0)) // provides file_write
	// Register Skill Registry client tools (list_skills, fetch_skill).
	registry.Register(skillregistry.NewListTool(mgr.Skills))
	registry.Register(skillregistry.NewFetchTool(mgr.Skills))

	// Register specialists tool for LLM-driven routing (prefer DB-backed registry to stay in sync with agentd).
	if specListErr == nil {
		specReg = specialists.NewRegistry(cfg.LLMClient, specialists.ConfigsFromStore(specList), httpClient, registry)
	} else {
		specReg = specialists.NewRegistry(cfg.LLMClient, cfg.Specialists, httpClient, registry)
	}
	specReg.SetWorkdir(cfg.Workdir)
	registry.Register(specialiststool.New(specReg)) // provides specialists_infer

	// If tools are globally disabled, use an empty registry.
	if !cfg.EnableTools {
		registry = tools.NewRegistry() // Empty registry
	} else if len(cfg.ToolAllowList) > 0 {
		// If a top-level tool allow-list is configured, expose only those tools
		// to the main orchestrator agent by wrapping the registry.
		registry = tools.NewFilteredRegistry(registry, cfg.ToolAllowList)
	}

	// Log which tools are exposed after filtering to diagnose missing registrations at runtime.
	{
		names := make([]string, 0, len(registry.Schemas()))
		for _, s := range registry.Schemas() {
			names = append(names, s.Name)
		}
		log.Info().Bool("enableTools", cfg.EnableTools).Strs("allowList", cfg.ToolAllowList).Strs("tools", names).Msg("tool_registry_contents")
	}

	// Connect to configured MCP servers and register their tools.
	mcpMgr := mcpclient.NewManager()
	defer mcpMgr.Close()
	ctxInit, cancelInit := context.WithTimeout(baseCtx, mcpInitTimeout)
	if err := mcpMgr.RegisterFromConfig(ctxInit, registry, cfg.MCP); err != nil {
		log.Warn().Err(err).Msg("mcp init")
	}
	cancelInit()

	// Call a specialist directly if a pre-dispatch route matches.
	if name := specialists.Route(cfg.SpecialistRoutes, query); name != "" {
		log.Info().Str("route", name).Msg("pre-dispatch specialist route matched")
		a, ok := specReg.Get(name)
		if !ok {
			log.Error().Str("route", name).Msg("specialist not found for route")
		} else {
			ctx, cancel := context.WithTimeout(baseCtx, defaultRunTimeout)
			defer cancel()
			out, err := a.Inference(ctx, query, nil)
			if err != nil {
				return fmt.Errorf("specialist pre-dispatch %q: %w", name, err)
			}
			fmt.Println(out)
			return nil
		}
	}

	systemPrompt := prompts.DefaultSystemPrompt(cfg.Workdir, cfg.SystemPrompt)
	systemPrompt = specReg.AppendToSystemPrompt(systemPrompt)

	ag := &agent.Agent{
		LLM:        llm,
		Tools:      &agent.ToolInvoker{Registry: registry},
		System:     systemPrompt,
		Summarizer: agent.NewLLMSummarizer(llm, cfg.OpenAI.Model),
	}

	// Honor the configured run timeout; 0 disables the deadline.
	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.AgentRunTimeoutSeconds > 0 {
		ctx, cancel = context.WithTimeout(baseCtx, time.Duration(cfg.AgentRunTimeoutSeconds)*time.Second)
	} else {
		ctx, cancel = context.WithCancel(baseCtx)
	}
	defer cancel()

	runStart := time.Now()
	trace, traceErr := mgr.Trace.Create(baseCtx, persistence.Trace{
		ID:            uuid.NewString(),
		Request:       query,
		ModelProvider: cfg.LLMClient.Provider,
		Model:         cfg.OpenAI.Model,
		Status:        persistence.TraceStatusRunning,
	})
	if traceErr != nil {
		log.Warn().Err(traceErr).Msg("create trace record")
	}

	result, err := ag.Run(ctx, query, nil, agent.RunOptions{
		MaxTurns: maxSteps,
		Model:    cfg.OpenAI.Model,
	}, nil)

	if traceErr == nil {
		recordTraceCompletion(baseCtx, mgr.Trace, trace, result, err, time.Since(runStart))
	}

	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("agent run did not complete: %s", result.Error)
	}
	fmt.Println(result.Answer)
	return nil
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
		trace.Status = persistence.TraceStatusFailed
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
