package config

// This file defines the runtime configuration surface consumed by Load (in
// loader.go): the LLM client/provider settings, execution sandbox, telemetry,
// database backends, embedding service, projects/workspace
// storage, MCP servers, auth, and specialist-routing types. Field names and
// shapes mirror the environment variables and YAML keys loader.go already
// reads; nothing here has defaults of its own beyond zero values — Load
// applies every default after populating these structs from env/YAML.

// OpenAIConfig configures the OpenAI-compatible chat completions client.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	SummaryModel   string
	SummaryBaseURL string
	API            string // "completions" or "responses"
	ExtraHeaders   map[string]string
	ExtraParams    map[string]any
	LogPayloads    bool
}

// AnthropicPromptCacheConfig controls Anthropic prompt-cache breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
}

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	PromptCache AnthropicPromptCacheConfig
	ExtraParams map[string]any
}

// GoogleConfig configures the Gemini API client.
type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// LLMClientConfig selects and configures the active model provider. OpenAI is
// kept in sync with the top-level OpenAIConfig so both addressing paths see
// the same effective settings (see Load's "cfg.LLMClient.OpenAI = cfg.OpenAI").
type LLMClientConfig struct {
	Provider  string
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Google    GoogleConfig
}

// ExecConfig configures the sandboxed command executor tool.
type ExecConfig struct {
	MaxCommandSeconds int
	BlockBinaries     []string
}

// ClickHouseObsConfig configures the ClickHouse-backed metrics/trace/log reader.
type ClickHouseObsConfig struct {
	DSN                  string
	Database             string
	MetricsTable         string
	TracesTable          string
	LogsTable            string
	TimestampColumn      string
	ValueColumn          string
	ModelAttributeKey    string
	PromptMetricName     string
	CompletionMetricName string
	LookbackHours        int
	TimeoutSeconds       int
}

// ObsConfig configures OpenTelemetry export and the ClickHouse observability
// store.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
	ClickHouse     ClickHouseObsConfig
}

// WebConfig configures the web search tool's backing SearXNG instance.
type WebConfig struct {
	SearXNGURL string
}

// KafkaConfig configures the orchestrator command/response topics used for
// cross-node A2A dispatch, plus the optional trace outbox mirror topic.
type KafkaConfig struct {
	Brokers        string
	CommandsTopic  string
	ResponsesTopic string
	TracesTopic    string
}

// TTSConfig configures the optional text-to-speech backend.
type TTSConfig struct {
	BaseURL string
	Model   string
	Voice   string
	Format  string
}

// SearchConfig, VectorConfig, GraphConfig and ChatConfig each select a backend
// ("memory", "auto", "postgres"/"pg", or "none"/"disabled") and its DSN for
// one of the persistence manager's four stores.
type SearchConfig struct {
	Backend string
	DSN     string
	Index   string
}

type VectorConfig struct {
	Backend    string
	DSN        string
	Index      string
	Dimensions int
	Metric     string
}

type GraphConfig struct {
	Backend string
	DSN     string
}

type ChatConfig struct {
	Backend string
	DSN     string
}

// DBConfig groups the persistence manager's backend selection. DefaultDSN is
// used by any of Search/Vector/Graph/Chat whose own DSN is empty.
type DBConfig struct {
	DefaultDSN string
	Search     SearchConfig
	Vector     VectorConfig
	Graph      GraphConfig
	Chat       ChatConfig
}

// EmbeddingConfig configures the HTTP embedding backend used for vector
// indexing and retrieval.
type EmbeddingConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	APIHeader string
	Headers   map[string]string
	Path      string
	Timeout   int
}

// FileKeyProviderConfig configures the filesystem-backed project encryption
// keystore.
type FileKeyProviderConfig struct {
	KeystorePath string
}

// VaultKeyProviderConfig configures a HashiCorp Vault Transit key provider.
type VaultKeyProviderConfig struct {
	Address        string
	Token          string
	KeyName        string
	MountPath      string
	Namespace      string
	TLSSkipVerify  bool
	TimeoutSeconds int
}

// AWSKMSKeyProviderConfig configures an AWS KMS key provider.
type AWSKMSKeyProviderConfig struct {
	KeyID           string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// EncryptionConfig selects the project encryption-key provider.
type EncryptionConfig struct {
	Provider string
	File     FileKeyProviderConfig
	Vault    VaultKeyProviderConfig
	AWSKMS   AWSKMSKeyProviderConfig
}

// WorkspaceConfig configures where per-project sandbox workspaces are
// materialized on disk.
type WorkspaceConfig struct {
	Mode       string // "legacy" (default) or "ephemeral"
	Root       string
	TTLSeconds int
	CacheDir   string
	TmpfsDir   string
}

// S3SSEConfig configures server-side encryption for the projects S3 backend.
type S3SSEConfig struct {
	Mode     string // "none" (default), "sse-s3", or "sse-kms"
	KMSKeyID string
}

// S3Config configures the S3/MinIO-backed project storage backend.
type S3Config struct {
	Endpoint              string
	Region                string
	Bucket                string
	Prefix                string
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// RedisConfig configures the optional Redis cache fronting project storage.
type RedisConfig struct {
	Enabled               bool
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// ProjectsKafkaConfig configures the Kafka topic projects publish lifecycle
// events to.
type ProjectsKafkaConfig struct {
	Enabled bool
	Brokers string
	Topic   string
}

// ProjectsConfig configures project storage: backend selection, encryption,
// workspace materialization, and optional S3/Redis/Kafka wiring.
type ProjectsConfig struct {
	Backend    string // "filesystem" or "s3"
	Encrypt    bool
	Encryption EncryptionConfig
	Workspace  WorkspaceConfig
	S3         S3Config
	Redis      RedisConfig
	Events     ProjectsKafkaConfig
}

// SkillsConfig configures the skills loader's caching behavior.
type SkillsConfig struct {
	RedisCacheTTLSeconds int
	UseS3Loader          bool
}

// TokenizationConfig configures the token-counting cache used for summary
// budget accounting.
type TokenizationConfig struct {
	Enabled             bool
	CacheSize           int
	CacheTTLSeconds     int
	FallbackToHeuristic bool
}

// OAuth2Config configures the OIDC/OAuth2 authorization-code flow and claim
// mapping used to populate an authenticated session.
type OAuth2Config struct {
	AuthURL             string
	TokenURL            string
	UserInfoURL         string
	LogoutURL           string
	LogoutRedirectParam string
	Scopes              []string
	ProviderName        string
	DefaultRoles        []string
	EmailField          string
	NameField           string
	PictureField        string
	SubjectField        string
	RolesField          string
}

// AuthConfig configures request authentication for the HTTP front ends.
type AuthConfig struct {
	Enabled         bool
	Provider        string // "oidc" is the only supported provider today
	IssuerURL       string
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	AllowedDomains  []string
	CookieName      string
	CookieSecure    bool
	CookieDomain    string
	StateTTLSeconds int
	SessionTTLHours int
	OAuth2          OAuth2Config
}

// MCPServerConfig describes one registered MCP server, either a subprocess
// (Command/Args/Env) or a remote HTTP/SSE endpoint (URL/Headers/BearerToken).
type MCPServerConfig struct {
	Name             string
	Command          string
	Args             []string
	Env              map[string]string
	KeepAliveSeconds int
	// PathDependent marks a server whose working directory must track the
	// per-request sandbox base dir rather than a fixed path.
	PathDependent   bool
	URL             string
	Headers         map[string]string
	BearerToken     string
	Origin          string
	ProtocolVersion string
	HTTP            struct {
		TimeoutSeconds int
		ProxyURL       string
		TLS            struct {
			InsecureSkipVerify bool
			CAFile             string
			CertFile           string
			KeyFile            string
		}
	}
}

// MCPConfig lists the MCP servers registered into the tool registry at
// startup.
type MCPConfig struct {
	Servers []MCPServerConfig
}

// SpecialistConfig describes one named specialist agent: its own model
// provider/credentials (falling back to the main LLMClientConfig when a
// field is empty) plus its tool allowlist and system prompt.
type SpecialistConfig struct {
	Name                       string
	Description                string
	Provider                   string
	BaseURL                    string
	APIKey                     string
	Model                      string
	API                        string
	SummaryContextWindowTokens int
	EnableTools                bool
	Paused                     bool
	AllowTools                 []string
	ReasoningEffort            string
	System                     string
	ExtraHeaders               map[string]string
	ExtraParams                map[string]any
}

// SpecialistRoute maps a query heuristic (substring or regex match) onto a
// specialist name for pre-dispatch routing.
type SpecialistRoute struct {
	Name     string
	Contains []string
	Regex    []string
}
