package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors returned by every store in this package, per the
// teacher's existing not-found/forbidden/conflict convention (compare
// pgx.ErrNoRows translation in databases/chat_store_postgres.go).
var (
	ErrNotFound         = errors.New("persistence: not found")
	ErrForbidden        = errors.New("persistence: forbidden")
	ErrRevisionConflict = errors.New("persistence: revision conflict")
)

// ChatSession is one row of chat_sessions: a conversation thread, optionally
// owned by a user, carrying its own rolling compression summary.
type ChatSession struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	UserID             *int64    `json:"userId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	Model              string    `json:"model"`
	Summary            string    `json:"summary"`
	SummarizedCount    int       `json:"summarizedCount"`
}

// ChatMessage is one row of chat_messages.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatStore persists conversation sessions and their message history. This
// is the Session Store of SPEC_FULL §4.6: one row per (owner, session),
// transcript plus rolling summary, fetched on run start and written back on
// completion so a published agent survives process restarts.
type ChatStore interface {
	Init(ctx context.Context) error
	EnsureSession(ctx context.Context, userID *int64, id, name string) (ChatSession, error)
	ListSessions(ctx context.Context, userID *int64) ([]ChatSession, error)
	GetSession(ctx context.Context, userID *int64, id string) (ChatSession, error)
	CreateSession(ctx context.Context, userID *int64, name string) (ChatSession, error)
	RenameSession(ctx context.Context, userID *int64, id, name string) (ChatSession, error)
	DeleteSession(ctx context.Context, userID *int64, id string) error
	ListMessages(ctx context.Context, userID *int64, sessionID string, limit int) ([]ChatMessage, error)
	AppendMessages(ctx context.Context, userID *int64, sessionID string, messages []ChatMessage, preview string, model string) error
	UpdateSummary(ctx context.Context, userID *int64, sessionID string, summary string, summarizedCount int) error
}

// AgentContext is the engine-internal state (beyond raw messages) a session
// needs to resume a run exactly where it left off: the steering mailbox is
// deliberately excluded since it is per-run, not per-session.
type AgentContext struct {
	SkillsUsed       []string          `json:"skillsUsed,omitempty"`
	OutputFileIDs    []string          `json:"outputFileIds,omitempty"`
	LastModelUsed    string            `json:"lastModelUsed,omitempty"`
	ExtraMetadata    map[string]string `json:"extraMetadata,omitempty"`
}

// Trace is the persistent audit record of one engine run, spec.md §6.3.
// Pre-created at request start (status "running") so a client can poll by
// ID immediately, then updated once at completion.
type Trace struct {
	ID                 string          `json:"id"`
	Request            string          `json:"request"`
	SkillsUsed         []string        `json:"skillsUsed,omitempty"`
	ModelProvider      string          `json:"modelProvider"`
	Model              string          `json:"model"`
	Status             string          `json:"status"` // running | completed | failed
	Success            bool            `json:"success"`
	Answer             string          `json:"answer,omitempty"`
	Error              string          `json:"error,omitempty"`
	TotalTurns         int             `json:"totalTurns"`
	TotalInputTokens   int             `json:"totalInputTokens"`
	TotalOutputTokens  int             `json:"totalOutputTokens"`
	Steps              json.RawMessage `json:"steps,omitempty"`
	LLMCalls           json.RawMessage `json:"llmCalls,omitempty"`
	DurationMS         int64           `json:"durationMs"`
	ExecutorName       string          `json:"executorName,omitempty"`
	SessionID          string          `json:"sessionId,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

const (
	TraceStatusRunning   = "running"
	TraceStatusCompleted = "completed"
	TraceStatusFailed    = "failed"
)

// TraceStore persists Trace records: the Trace Recorder of SPEC_FULL §4.8.
type TraceStore interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, t Trace) (Trace, error)
	Update(ctx context.Context, t Trace) error
	Get(ctx context.Context, id string) (Trace, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]Trace, error)
}

// BackgroundTask mirrors original_source's BackgroundTaskDB (spec.md §6.3):
// carried here only as a joinable shape for the engine's own Trace output,
// per SPEC_FULL §4.9 — no scheduler or worker pool lives in this package.
type BackgroundTask struct {
	ID          string          `json:"id"`
	TaskType    string          `json:"taskType"`
	Status      string          `json:"status"` // pending | running | completed | failed
	MetadataRaw json.RawMessage `json:"metadataJson,omitempty"`
	ResultRaw   json.RawMessage `json:"resultJson,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	TraceID     string          `json:"traceId,omitempty"`
}

// AgentPreset is a published-agent configuration (AgentPresetDB-shaped per
// SPEC_FULL §4.7): the Published Chat Front resolves one of these by id on
// every request rather than taking tool/model choices from the caller.
type AgentPreset struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	SystemPrompt    string   `json:"systemPrompt"`
	SkillIDs        []string `json:"skillIds,omitempty"`
	MCPServers      []string `json:"mcpServers,omitempty"`
	BuiltinTools    []string `json:"builtinTools,omitempty"`
	MaxTurns        int      `json:"maxTurns"`
	ModelProvider   string   `json:"modelProvider"`
	Model           string   `json:"model"`
	ExecutorID      string   `json:"executorId,omitempty"`
	APIResponseMode string   `json:"apiResponseMode"` // "streaming" | "non_streaming"
	Published       bool     `json:"published"`
}

const (
	APIResponseModeStreaming    = "streaming"
	APIResponseModeNonStreaming = "non_streaming"
)

// PresetStore is a read-only lookup over published agent presets; preset
// authoring/publishing stays an external admin concern per spec.md.
type PresetStore interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, id string) (AgentPreset, error)
}

// MCPServer is one configured external MCP server a user has registered,
// consumed by internal/mcpclient.Manager at tool-registry build time.
type MCPServer struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"userId"`
	Name             string            `json:"name"`
	Command          string            `json:"command"`
	Args             []string          `json:"args,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	URL              string            `json:"url,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	BearerToken      string            `json:"bearerToken,omitempty"`
	Origin           string            `json:"origin,omitempty"`
	ProtocolVersion  string            `json:"protocolVersion,omitempty"`
	KeepAliveSeconds int               `json:"keepAliveSeconds,omitempty"`
	Disabled         bool              `json:"disabled"`
	OAuthProvider     string    `json:"oauthProvider,omitempty"`
	OAuthClientID     string    `json:"oauthClientId,omitempty"`
	OAuthClientSecret string    `json:"oauthClientSecret,omitempty"`
	OAuthAccessToken  string    `json:"oauthAccessToken,omitempty"`
	OAuthRefreshToken string    `json:"oauthRefreshToken,omitempty"`
	OAuthExpiresAt    time.Time `json:"oauthExpiresAt,omitempty"`
	OAuthScopes       []string  `json:"oauthScopes,omitempty"`
}

// MCPStore is per-user CRUD over configured MCP servers.
type MCPStore interface {
	Init(ctx context.Context) error
	List(ctx context.Context, userID int64) ([]MCPServer, error)
	GetByName(ctx context.Context, userID int64, name string) (MCPServer, bool, error)
	Upsert(ctx context.Context, userID int64, srv MCPServer) (MCPServer, error)
	Delete(ctx context.Context, userID int64, name string) error
}

// Project is a user's workspace of files the CLI executor tool can operate
// over, independent of any one chat session.
type Project struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"userId"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Revision       int64     `json:"revision"`
	Bytes          int64     `json:"bytes"`
	FileCount      int       `json:"fileCount"`
	StorageBackend string    `json:"storageBackend"`
}

// ProjectFile is one indexed entry (file or directory) under a Project.
type ProjectFile struct {
	ProjectID string    `json:"projectId"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	IsDir     bool      `json:"isDir"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"modTime"`
	ETag      string    `json:"etag"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProjectsStore is CRUD over Project metadata plus a directory-listing file
// index used to avoid walking the filesystem on every request.
type ProjectsStore interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, userID int64, name string) (Project, error)
	InsertWithID(ctx context.Context, userID int64, projectID, name string, createdAt, updatedAt time.Time, bytes int64, fileCount int) error
	Get(ctx context.Context, userID int64, projectID string) (Project, error)
	List(ctx context.Context, userID int64) ([]Project, error)
	Update(ctx context.Context, p Project) (Project, error)
	UpdateStats(ctx context.Context, projectID string, bytes int64, fileCount int) error
	Delete(ctx context.Context, userID int64, projectID string) error
	IndexFile(ctx context.Context, f ProjectFile) error
	RemoveFileIndex(ctx context.Context, projectID, filePath string) error
	RemoveFileIndexPrefix(ctx context.Context, projectID, pathPrefix string) error
	ListFiles(ctx context.Context, projectID, dirPath string) ([]ProjectFile, error)
	GetFile(ctx context.Context, projectID, filePath string) (ProjectFile, error)
}

// SpecialistGroup and SpecialistTeam share the same shape (a named,
// orchestrator-configured collection of specialist agents with ordered
// members) — the teacher keeps them as two parallel tables for two
// different routing semantics (ad hoc grouping vs. a fixed pipeline).
type SpecialistGroup struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"userId"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Orchestrator map[string]any `json:"orchestrator,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Members      []string       `json:"members,omitempty"`
}

// SpecialistTeam mirrors SpecialistGroup field-for-field; see above.
type SpecialistTeam struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"userId"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Orchestrator map[string]any `json:"orchestrator,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Members      []string       `json:"members,omitempty"`
}

// SpecialistGroupsStore and SpecialistTeamsStore share one method set:
// named collections of specialist agents with ordered membership.
type SpecialistGroupsStore interface {
	Init(ctx context.Context) error
	List(ctx context.Context, userID int64) ([]SpecialistGroup, error)
	GetByName(ctx context.Context, userID int64, name string) (SpecialistGroup, bool, error)
	Upsert(ctx context.Context, userID int64, g SpecialistGroup) (SpecialistGroup, error)
	Delete(ctx context.Context, userID int64, name string) error
	AddMember(ctx context.Context, userID int64, groupName string, specialistName string) error
	RemoveMember(ctx context.Context, userID int64, groupName string, specialistName string) error
	ListMemberships(ctx context.Context, userID int64) (map[string][]string, error)
}

// SpecialistTeamsStore is SpecialistGroupsStore's twin over specialist_teams.
type SpecialistTeamsStore interface {
	Init(ctx context.Context) error
	List(ctx context.Context, userID int64) ([]SpecialistTeam, error)
	GetByName(ctx context.Context, userID int64, name string) (SpecialistTeam, bool, error)
	Upsert(ctx context.Context, userID int64, g SpecialistTeam) (SpecialistTeam, error)
	Delete(ctx context.Context, userID int64, name string) error
	AddMember(ctx context.Context, userID int64, teamName string, specialistName string) error
	RemoveMember(ctx context.Context, userID int64, teamName string, specialistName string) error
	ListMemberships(ctx context.Context, userID int64) (map[string][]string, error)
}

// UserPreferences is small, per-user UI/session state — currently just
// which project is active — kept separate from ChatSession/AgentContext
// because it outlives any one session.
type UserPreferences struct {
	UserID          int64     `json:"userId"`
	ActiveProjectID string    `json:"activeProjectId"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// UserPreferencesStore is single-row-per-user get/set.
type UserPreferencesStore interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, userID int64) (UserPreferences, error)
	SetActiveProject(ctx context.Context, userID int64, projectID string) error
}
