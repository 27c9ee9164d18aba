package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	homeDir := getDefaultHomeDir()

	return &Config{
		Core: CoreConfig{
			HomeDir:       homeDir,
			DataDir:       filepath.Join(homeDir, "data"),
			ParallelLimit: 10,
			Timeout:       5 * time.Minute,
			Debug:         false,
		},
		Catalog: CatalogConfig{
			Path:           filepath.Join(homeDir, "normgraph.db"),
			MaxConnections: 10,
			Timeout:        30 * time.Second,
			WALMode:        true,
		},
		Graph: GraphConfig{
			URI:            "bolt://localhost:7687",
			Username:       "neo4j",
			Password:       "",
			Database:       "neo4j",
			MaxRetries:     5,
			ConnectTimeout: 30 * time.Second,
		},
		Vector: VectorConfig{
			Path:       filepath.Join(homeDir, "vectors.db"),
			Dimensions: 384,
		},
		Embedder: EmbedderConfig{
			Type:  "local",
			Model: "sentence-transformers/all-MiniLM-L6-v2",
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: map[string]ProviderConfig{
				"openai": {
					Model:             "gpt-4o-mini",
					MaxTokens:         4096,
					Temperature:       0.1,
					RequestsPerMinute: 60,
				},
			},
		},
		Retrieval: RetrievalConfig{
			TopK:          10,
			VectorWeight:  0.5,
			GraphWeight:   0.3,
			KeywordWeight: 0.2,
			GraphDepth:    2,
			MinScore:      0.0,
			CacheTTL:      15 * time.Minute,
			CacheSize:     1000,
		},
		Auth: AuthConfig{
			Enabled:     false,
			TokenExpiry: 24 * time.Hour,
		},
		Server: ServerConfig{
			Address:         "127.0.0.1:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "",
		},
	}
}

// getDefaultHomeDir returns the default NormGraph home directory.
// It uses ~/.normgraph or falls back to a temporary directory if the user
// home cannot be determined.
func getDefaultHomeDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".normgraph")
	}
	return filepath.Join(userHome, ".normgraph")
}
