// Package config loads ragserver's configuration from the environment,
// .env, and an optional YAML overlay.
package config

// OpenAIConfig configures the OpenAI-compatible chat/embedding adapter. It
// also covers self-hosted OpenAI-API-shaped servers (llama.cpp, mlx_lm,
// vLLM) via BaseURL.
type OpenAIConfig struct {
	API         string // "completions" (default) or "responses"
	APIKey      string
	BaseURL     string
	Model       string
	LogPayloads bool
	ExtraParams map[string]any
}

// AnthropicPromptCacheConfig controls Anthropic prompt-caching scope.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
}

// AnthropicConfig configures the Anthropic Messages adapter.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	ExtraParams map[string]any
	PromptCache AnthropicPromptCacheConfig
}

// LLMClientConfig selects and configures the chat provider (spec §4.C).
type LLMClientConfig struct {
	Provider  string // "openai" (default) or "anthropic"
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
}

// EmbeddingConfig configures the HTTP embedding endpoint used by
// internal/rag/embedder and internal/embedding.
type EmbeddingConfig struct {
	BaseURL   string
	Path      string // e.g. "/v1/embeddings" or "/embedding"
	Model     string
	APIKey    string
	APIHeader string // header name to carry APIKey in; "Authorization" sends "Bearer <key>"
	Timeout   int    // seconds
	Dimension int
}

// ExtractConfig configures the external text-extraction client (spec §4.B).
type ExtractConfig struct {
	URL         string
	Token       string
	TimeoutMS   int
	Retries     int
	RetryBaseMS int
	Concurrency int
}

// SearchConfig configures the full-text-search backend (spec §4.D).
type SearchConfig struct {
	Backend string // "memory" (default) | "postgres" | "auto" | "none"
	DSN     string
}

// VectorConfig configures the vector-store backend (spec §4.D).
type VectorConfig struct {
	Backend    string // "memory" (default) | "postgres" | "qdrant" | "auto" | "none"
	DSN        string
	Collection string
	Dimensions int
	Metric     string // cosine|l2|euclidean|ip|dot|manhattan
}

// GraphConfig configures the graph-RAG backend (a stub per spec §9).
type GraphConfig struct {
	Backend string // "memory" (default) | "postgres" | "none"
	DSN     string
}

// DBConfig aggregates the retrieval backend configuration passed to
// databases.NewManager.
type DBConfig struct {
	DefaultDSN string // DATABASE_URL; used by any backend whose own DSN is unset
	Search     SearchConfig
	Vector     VectorConfig
	Graph      GraphConfig
}

// S3SSEConfig configures server-side encryption for object-store uploads.
type S3SSEConfig struct {
	Mode     string // "", "AES256", "aws:kms"
	KMSKeyID string
}

// S3Config configures the AWS-SDK-backed object store (spec's object_url/s3/oss job kinds).
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	AccessKey             string
	SecretKey             string
	Prefix                string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	PublicBaseURL         string
	SSE                   S3SSEConfig
}

// JobsConfig configures the ingestion job engine (spec §4.F).
type JobsConfig struct {
	MaxRetries       int
	RetryBaseMS      int
	URLTimeoutMS     int
	FetchTimeoutMS   int
	FetchRetries     int
	FetchRetryBaseMS int
	Store            string // "memory" | "redis+postgres"
	RedisURL         string
	DatabaseURL      string
}

// SessionConfig configures query-session persistence (spec §4.G).
type SessionConfig struct {
	TTLSecs  int
	RedisURL string
}

// AdminConfig configures the admin auth surface (spec §6).
type AdminConfig struct {
	User               string
	Pass               string
	Bearer             string
	JWTAllowUnverified bool
	JWTIssuer          string
	JWTAudience        string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// Config aggregates every subsystem's settings into one struct, loaded once
// at process start by Load.
type Config struct {
	Server    ServerConfig
	DataPath  string
	LLMClient LLMClientConfig
	Embedding EmbeddingConfig
	Extract   ExtractConfig
	DB        DBConfig
	Object    S3Config
	Jobs      JobsConfig
	Session   SessionConfig
	Admin     AdminConfig
	LogLevel  string
	LogPath   string
}
