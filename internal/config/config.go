// Package config loads the gateway's immutable runtime configuration from
// environment variables (optionally via a .env file) plus an optional YAML
// override file, and resolves the provider-routing table used by
// internal/provider.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the gateway's top-level, read-once-at-startup configuration.
// Nothing in this struct is mutated after Load returns.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Tools         ToolsConfig         `yaml:"tools"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	MCPServers    []MCPServerConfig   `yaml:"mcp_servers"`
	Providers     map[string]string   `yaml:"provider_base_urls"` // provider tag -> base URL override
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ToolsConfig configures the orchestration loop's recursion limits.
type ToolsConfig struct {
	// MaxToolCallsBuffered is OPEN_RESPONSES_MAX_TOOL_CALLS. Default 25.
	MaxToolCallsBuffered int `yaml:"max_tool_calls_buffered"`

	// MaxToolCallsStreaming is the streaming-mode limit. Default 30. Its
	// OPEN_RESPONSES_MAX_TOOL_CALLS_STREAMING env override is an extension
	// beyond the documented OPEN_RESPONSES_MAX_TOOL_CALLS knob, which only
	// governs the buffered limit.
	MaxToolCallsStreaming int `yaml:"max_tool_calls_streaming"`

	// StreamingTimeout is OPEN_RESPONSES_MAX_STREAMING_TIMEOUT. Default 300s.
	StreamingTimeout time.Duration `yaml:"streaming_timeout"`
}

// VectorStoreConfig configures chunking, embedding, and search defaults.
type VectorStoreConfig struct {
	ChunkSizeTokens    int     `yaml:"chunk_size_tokens"`
	ChunkOverlapTokens int     `yaml:"chunk_overlap_tokens"`
	VectorDimension    int     `yaml:"vector_dimension"`
	MinScore           float32 `yaml:"min_score"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
}

// StoreConfig configures the response/completion store.
type StoreConfig struct {
	CacheSize int    `yaml:"cache_size"`
	RootDir   string `yaml:"root_dir"`
	SQLitePath string `yaml:"sqlite_path"` // empty = in-memory LRU only
}

// RateLimitConfig gates upstream calls behind a per-provider token bucket.
// A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// MCPServerConfig names one MCP server the gateway may route type=mcp
// tool calls to, keyed by the server_label clients use in their tool
// declarations.
type MCPServerConfig struct {
	Label      string `yaml:"label"`
	Endpoint   string `yaml:"endpoint"`
	BearerAuth string `yaml:"bearer_auth"`
}

// ObservabilityConfig configures tracing/metrics export.
type ObservabilityConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	LogLevel     string  `yaml:"log_level"`
}

// Default returns the gateway's built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Tools: ToolsConfig{
			MaxToolCallsBuffered:  25,
			MaxToolCallsStreaming: 30,
			StreamingTimeout:      300 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			ChunkSizeTokens:    800,
			ChunkOverlapTokens: 160,
			VectorDimension:    1536,
			MinScore:           0.0,
			SweepInterval:      time.Hour,
		},
		Store: StoreConfig{CacheSize: 1000, RootDir: "./data"},
		Observability: ObservabilityConfig{
			LogLevel:     "info",
			SamplingRate: 1.0,
		},
		Providers: map[string]string{},
	}
}

// Load builds the Config from (in increasing precedence order) built-in
// defaults, an optional YAML file, a .env file, and the process
// environment. The only global state it touches is the process
// environment: variables from a .env file are set there (without
// overriding ones already present) before the environment is read.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	// Best-effort .env load; a missing file is not an error.
	_ = godotenv.Load()

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPEN_RESPONSES_MAX_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Tools.MaxToolCallsBuffered = n
		}
	}
	if v := os.Getenv("OPEN_RESPONSES_MAX_TOOL_CALLS_STREAMING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Tools.MaxToolCallsStreaming = n
		}
	}
	if v := os.Getenv("OPEN_RESPONSES_MAX_STREAMING_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Tools.StreamingTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MODEL_BASE_URL"); v != "" {
		cfg.Providers["default"] = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
}
