package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from the environment (optionally a .env file),
// applies documented defaults, and overlays an optional YAML config file
// named by RAGKIT_CONFIG_FILE (or config.yaml in the working directory, if
// present).
func Load() (Config, error) {
	// Use Overload so .env values override pre-existing OS environment
	// variables, favoring local development convenience.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Server.Host = firstNonEmpty(strings.TrimSpace(os.Getenv("HOST")), "0.0.0.0")
	cfg.Server.Port = intFromEnv("PORT", 8080)
	cfg.DataPath = firstNonEmpty(strings.TrimSpace(os.Getenv("DATA_PATH")), "./data")
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))

	loadLLMClient(&cfg)
	loadEmbedding(&cfg)
	loadExtract(&cfg)
	loadDB(&cfg)
	loadObject(&cfg)
	loadJobs(&cfg)
	loadSession(&cfg)
	loadAdmin(&cfg)

	if err := applyYAMLOverlay(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadLLMClient(cfg *Config) {
	cfg.LLMClient.Provider = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), "openai"))

	cfg.LLMClient.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.LLMClient.OpenAI.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_MODEL")), "gpt-4o-mini")
	cfg.LLMClient.OpenAI.BaseURL = firstNonEmpty(
		strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		strings.TrimSpace(os.Getenv("OPENAI_API_BASE_URL")),
	)
	cfg.LLMClient.OpenAI.API = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_API")), "completions")
	cfg.LLMClient.OpenAI.LogPayloads = boolFromEnv("OPENAI_LOG_PAYLOADS", false)

	cfg.LLMClient.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.LLMClient.Anthropic.Model = strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	cfg.LLMClient.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	cfg.LLMClient.Anthropic.PromptCache.Enabled = boolFromEnv("ANTHROPIC_PROMPT_CACHE", false)
	cfg.LLMClient.Anthropic.PromptCache.CacheSystem = boolFromEnv("ANTHROPIC_PROMPT_CACHE_SYSTEM", false)
	cfg.LLMClient.Anthropic.PromptCache.CacheTools = boolFromEnv("ANTHROPIC_PROMPT_CACHE_TOOLS", false)
	cfg.LLMClient.Anthropic.PromptCache.CacheMessages = boolFromEnv("ANTHROPIC_PROMPT_CACHE_MESSAGES", false)
}

func loadEmbedding(cfg *Config) {
	cfg.Embedding.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")), "https://api.openai.com")
	cfg.Embedding.Path = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_PATH")), "/v1/embeddings")
	cfg.Embedding.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")), "text-embedding-3-small")
	cfg.Embedding.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")), strings.TrimSpace(os.Getenv("OPENAI_API_KEY")))
	cfg.Embedding.APIHeader = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_API_HEADER")), "Authorization")
	cfg.Embedding.Timeout = intFromEnv("EMBEDDING_TIMEOUT_SECS", 30)
	cfg.Embedding.Dimension = intFromEnv("EMBEDDING_DIMENSION", 1536)
}

// loadExtract wires EXTRACT_URL and friends, matching spec §4.B's documented
// defaults exactly.
func loadExtract(cfg *Config) {
	cfg.Extract.URL = strings.TrimSpace(os.Getenv("EXTRACT_URL"))
	cfg.Extract.Token = strings.TrimSpace(os.Getenv("EXTRACT_TOKEN"))
	cfg.Extract.TimeoutMS = intFromEnv("EXTRACT_TIMEOUT_MS", 15000)
	cfg.Extract.Retries = intFromEnv("EXTRACT_RETRIES", 2)
	cfg.Extract.RetryBaseMS = intFromEnv("EXTRACT_RETRY_BASE_MS", 250)
	cfg.Extract.Concurrency = intFromEnv("EXTRACT_CONCURRENCY", 4)
}

func loadDB(cfg *Config) {
	cfg.DB.DefaultDSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.DB.Search.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("SEARCH_BACKEND")), "memory")
	cfg.DB.Search.DSN = strings.TrimSpace(os.Getenv("SEARCH_DATABASE_URL"))
	cfg.DB.Vector.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_BACKEND")), "memory")
	cfg.DB.Vector.DSN = firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_DATABASE_URL")), strings.TrimSpace(os.Getenv("QDRANT_URL")))
	cfg.DB.Vector.Collection = firstNonEmpty(strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")), "chunks")
	cfg.DB.Vector.Dimensions = intFromEnv("VECTOR_DIMENSIONS", cfg.Embedding.Dimension)
	cfg.DB.Vector.Metric = firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_METRIC")), "cosine")
	cfg.DB.Graph.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("GRAPH_BACKEND")), "memory")
	cfg.DB.Graph.DSN = strings.TrimSpace(os.Getenv("GRAPH_DATABASE_URL"))
}

func loadObject(cfg *Config) {
	cfg.Object.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET"))
	cfg.Object.Region = firstNonEmpty(strings.TrimSpace(os.Getenv("S3_REGION")), "us-east-1")
	cfg.Object.Endpoint = strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	cfg.Object.AccessKey = strings.TrimSpace(os.Getenv("S3_ACCESS_KEY"))
	cfg.Object.SecretKey = strings.TrimSpace(os.Getenv("S3_SECRET_KEY"))
	cfg.Object.Prefix = strings.TrimSpace(os.Getenv("S3_PREFIX"))
	cfg.Object.UsePathStyle = boolFromEnv("S3_USE_PATH_STYLE", false)
	cfg.Object.TLSInsecureSkipVerify = boolFromEnv("S3_TLS_INSECURE_SKIP_VERIFY", false)
	cfg.Object.PublicBaseURL = strings.TrimSpace(os.Getenv("OBJECT_PUBLIC_BASE_URL"))
	cfg.Object.SSE.Mode = strings.TrimSpace(os.Getenv("S3_SSE_MODE"))
	cfg.Object.SSE.KMSKeyID = strings.TrimSpace(os.Getenv("S3_SSE_KMS_KEY_ID"))
}

// loadJobs wires the job engine's retry policy (spec §4.F) and dual
// persistence targets.
func loadJobs(cfg *Config) {
	cfg.Jobs.MaxRetries = intFromEnv("JOB_MAX_RETRIES", 2)
	cfg.Jobs.RetryBaseMS = intFromEnv("JOB_RETRY_BASE_MS", 500)
	cfg.Jobs.URLTimeoutMS = intFromEnv("JOB_URL_TIMEOUT_MS", 30000)
	cfg.Jobs.FetchTimeoutMS = intFromEnv("JOB_FETCH_TIMEOUT_MS", 30000)
	cfg.Jobs.FetchRetries = intFromEnv("JOB_FETCH_RETRIES", 2)
	cfg.Jobs.FetchRetryBaseMS = intFromEnv("JOB_FETCH_RETRY_BASE_MS", 500)
	cfg.Jobs.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.Jobs.DatabaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("JOBS_DATABASE_URL")), cfg.DB.DefaultDSN)
	if cfg.Jobs.RedisURL != "" || cfg.Jobs.DatabaseURL != "" {
		cfg.Jobs.Store = "redis+postgres"
	} else {
		cfg.Jobs.Store = "memory"
	}
}

func loadSession(cfg *Config) {
	cfg.Session.TTLSecs = intFromEnv("SESS_TTL_SECS", 3600)
	cfg.Session.RedisURL = firstNonEmpty(strings.TrimSpace(os.Getenv("SESS_REDIS_URL")), strings.TrimSpace(os.Getenv("REDIS_URL")))
}

// loadAdmin wires the admin auth surface (spec §6): Basic, Bearer, or an
// optional permissive claims-only JWT check.
func loadAdmin(cfg *Config) {
	cfg.Admin.User = strings.TrimSpace(os.Getenv("ADMIN_USER"))
	cfg.Admin.Pass = strings.TrimSpace(os.Getenv("ADMIN_PASS"))
	cfg.Admin.Bearer = strings.TrimSpace(os.Getenv("ADMIN_BEARER"))
	cfg.Admin.JWTAllowUnverified = boolFromEnv("ADMIN_JWT_ALLOW_UNVERIFIED", false)
	cfg.Admin.JWTIssuer = strings.TrimSpace(os.Getenv("ADMIN_JWT_ISS"))
	cfg.Admin.JWTAudience = strings.TrimSpace(os.Getenv("ADMIN_JWT_AUD"))
}

// yamlOverlay mirrors the subset of Config an operator may want to express
// as a structured file instead of flat env vars (mainly the chat provider,
// since ExtraParams/PromptCache scope are awkward as env vars).
type yamlOverlay struct {
	LLMClient struct {
		Provider string `yaml:"provider"`
		OpenAI   struct {
			Model       string         `yaml:"model"`
			BaseURL     string         `yaml:"base_url"`
			ExtraParams map[string]any `yaml:"extra_params"`
		} `yaml:"openai"`
		Anthropic struct {
			Model       string         `yaml:"model"`
			BaseURL     string         `yaml:"base_url"`
			ExtraParams map[string]any `yaml:"extra_params"`
			PromptCache struct {
				Enabled       bool `yaml:"enabled"`
				CacheSystem   bool `yaml:"cache_system"`
				CacheTools    bool `yaml:"cache_tools"`
				CacheMessages bool `yaml:"cache_messages"`
			} `yaml:"prompt_cache"`
		} `yaml:"anthropic"`
	} `yaml:"llm_client"`
}

// applyYAMLOverlay reads RAGKIT_CONFIG_FILE (default ./config.yaml if it
// exists) and layers its values over env-derived defaults. Missing files are
// not an error; only present ones that fail to parse are.
func applyYAMLOverlay(cfg *Config) error {
	path := strings.TrimSpace(os.Getenv("RAGKIT_CONFIG_FILE"))
	if path == "" {
		path = "config.yaml"
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var ov yamlOverlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return err
	}

	if strings.TrimSpace(ov.LLMClient.Provider) != "" {
		cfg.LLMClient.Provider = strings.ToLower(strings.TrimSpace(ov.LLMClient.Provider))
	}
	if ov.LLMClient.OpenAI.Model != "" {
		cfg.LLMClient.OpenAI.Model = ov.LLMClient.OpenAI.Model
	}
	if ov.LLMClient.OpenAI.BaseURL != "" {
		cfg.LLMClient.OpenAI.BaseURL = ov.LLMClient.OpenAI.BaseURL
	}
	if len(ov.LLMClient.OpenAI.ExtraParams) > 0 {
		cfg.LLMClient.OpenAI.ExtraParams = ov.LLMClient.OpenAI.ExtraParams
	}
	if ov.LLMClient.Anthropic.Model != "" {
		cfg.LLMClient.Anthropic.Model = ov.LLMClient.Anthropic.Model
	}
	if ov.LLMClient.Anthropic.BaseURL != "" {
		cfg.LLMClient.Anthropic.BaseURL = ov.LLMClient.Anthropic.BaseURL
	}
	if len(ov.LLMClient.Anthropic.ExtraParams) > 0 {
		cfg.LLMClient.Anthropic.ExtraParams = ov.LLMClient.Anthropic.ExtraParams
	}
	pc := ov.LLMClient.Anthropic.PromptCache
	if pc.Enabled {
		cfg.LLMClient.Anthropic.PromptCache = AnthropicPromptCacheConfig{
			Enabled:       pc.Enabled,
			CacheSystem:   pc.CacheSystem,
			CacheTools:    pc.CacheTools,
			CacheMessages: pc.CacheMessages,
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
