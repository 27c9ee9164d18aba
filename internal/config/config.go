package config

import (
	"time"
)

// Config is the root configuration for NormGraph.
type Config struct {
	Core      CoreConfig      `mapstructure:"core" yaml:"core" validate:"required"`
	Catalog   CatalogConfig   `mapstructure:"catalog" yaml:"catalog" validate:"required"`
	Graph     GraphConfig     `mapstructure:"graph" yaml:"graph" validate:"required"`
	Vector    VectorConfig    `mapstructure:"vector" yaml:"vector"`
	Embedder  EmbedderConfig  `mapstructure:"embedder" yaml:"embedder"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	HomeDir       string        `mapstructure:"home_dir" yaml:"home_dir"`
	DataDir       string        `mapstructure:"data_dir" yaml:"data_dir"`
	ParallelLimit int           `mapstructure:"parallel_limit" yaml:"parallel_limit" validate:"min=1,max=100"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
	Debug         bool          `mapstructure:"debug" yaml:"debug"`
}

// CatalogConfig configures the SQLite catalog holding sources, documents,
// and the keyword index.
type CatalogConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=100"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
	WALMode        bool          `mapstructure:"wal_mode" yaml:"wal_mode"`
}

// GraphConfig configures the Neo4j connection.
type GraphConfig struct {
	URI            string        `mapstructure:"uri" yaml:"uri" validate:"required"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password"`
	Database       string        `mapstructure:"database" yaml:"database"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries" validate:"min=0,max=10"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// VectorConfig configures the embedded vector store.
type VectorConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions" validate:"min=1"`
}

// EmbedderConfig configures embedding generation.
// Type is "local" (ONNX all-MiniLM-L6-v2) or "openai".
type EmbedderConfig struct {
	Type   string `mapstructure:"type" yaml:"type" validate:"oneof=local openai mock"`
	Model  string `mapstructure:"model" yaml:"model"`
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	DefaultProvider string                    `mapstructure:"default_provider" yaml:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	APIKey            string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model             string  `mapstructure:"model" yaml:"model"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// RetrievalConfig tunes the hybrid retrieval pipeline.
type RetrievalConfig struct {
	TopK          int           `mapstructure:"top_k" yaml:"top_k" validate:"min=1,max=100"`
	VectorWeight  float64       `mapstructure:"vector_weight" yaml:"vector_weight" validate:"min=0,max=1"`
	GraphWeight   float64       `mapstructure:"graph_weight" yaml:"graph_weight" validate:"min=0,max=1"`
	KeywordWeight float64       `mapstructure:"keyword_weight" yaml:"keyword_weight" validate:"min=0,max=1"`
	GraphDepth    int           `mapstructure:"graph_depth" yaml:"graph_depth" validate:"min=1,max=5"`
	MinScore      float64       `mapstructure:"min_score" yaml:"min_score" validate:"min=0,max=1"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CacheSize     int           `mapstructure:"cache_size" yaml:"cache_size" validate:"min=0"`
}

// AuthConfig configures token issuance and verification.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`
	TokenExpiry time.Duration `mapstructure:"token_expiry" yaml:"token_expiry"`
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
}

// ServerConfig configures the REST API server.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}
