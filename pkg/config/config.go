// Package config holds the configuration surface of the retrieval core.
//
// Configuration is loaded from a YAML file with ${VAR:-default} environment
// expansion, with a pure-environment fallback when no file is given. Every
// section carries SetDefaults and Validate.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by the core.
const (
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvTypesenseHost    = "TYPESENSE_HOST"
	EnvTypesensePort    = "TYPESENSE_PORT"
	EnvTypesenseAPIKey  = "TYPESENSE_API_KEY"
	EnvCacheTTLSeconds  = "CACHE_TTL_SECONDS"
	EnvMinEmbedInterval = "MIN_EMBED_INTERVAL_MS"
	EnvRRFK             = "RRF_K"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server,omitempty"`
	Engine      EngineConfig      `yaml:"engine,omitempty"`
	VectorStore VectorStoreConfig `yaml:"vector_store,omitempty"`
	Database    DatabaseConfig    `yaml:"database,omitempty"`
	Embedder    EmbedderConfig    `yaml:"embedder,omitempty"`
	LLM         LLMConfig         `yaml:"llm,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty"`
	Retriever   RetrieverConfig   `yaml:"retriever,omitempty"`
	Agent       AgentConfig       `yaml:"agent,omitempty"`
	Chunker     ChunkerConfig     `yaml:"chunker,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// GeoIPTable maps caller IPs to [lat, lng] for chapter distance
	// sorting. Deployments with a live geolocation backend plug it in
	// behind the resolver seam instead.
	GeoIPTable map[string][2]float64 `yaml:"geo_ip_table,omitempty"`
}

// EngineConfig configures the document search engine backend.
type EngineConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Protocol string `yaml:"protocol,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	// Timeout in seconds for engine calls. Default: 5
	Timeout int `yaml:"timeout,omitempty"`
}

// VectorStoreConfig configures the ANN backend holding chunk vectors.
type VectorStoreConfig struct {
	// Type selects the backend: "qdrant" or "chromem". Default: chromem
	Type      string `yaml:"type,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	EnableTLS *bool  `yaml:"enable_tls,omitempty"`

	// Collection name for chunk vectors. Default: nest_chunks
	Collection string `yaml:"collection,omitempty"`

	// PersistPath enables file persistence for the embedded backend.
	PersistPath string `yaml:"persist_path,omitempty"`
}

// DatabaseConfig configures the relational store for contexts and chunks.
type DatabaseConfig struct {
	// Path to the sqlite database file. Default: nest.db
	Path string `yaml:"path,omitempty"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	Type      string `yaml:"type,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"`
	BatchSize int    `yaml:"batch_size,omitempty"`
	// Timeout in seconds. Default: 30
	Timeout    int `yaml:"timeout,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty"`

	// MinIntervalMS is the process-wide minimum interval between embedding
	// calls in milliseconds. Default: 1000
	MinIntervalMS int `yaml:"min_interval_ms,omitempty"`
}

// LLMConfig configures the language model provider.
type LLMConfig struct {
	Type   string `yaml:"type,omitempty"`
	Model  string `yaml:"model,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	Host   string `yaml:"host,omitempty"`
	// Timeout in seconds. Default: 60
	Timeout     int     `yaml:"timeout,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// TTLSeconds is the default entry lifetime. Default: 3600
	TTLSeconds int `yaml:"ttl_seconds,omitempty"`

	// MaxEntries bounds the LRU. Default: 4096
	MaxEntries int `yaml:"max_entries,omitempty"`

	// Namespaces overrides the TTL per namespace.
	Namespaces map[string]int `yaml:"namespaces,omitempty"`
}

// RetrieverConfig configures hybrid retrieval.
type RetrieverConfig struct {
	// RRFK is the reciprocal rank fusion constant. Default: 60
	RRFK int `yaml:"rrf_k,omitempty"`

	// DefaultLimit applies when a request carries no limit. Default: 10
	DefaultLimit int `yaml:"default_limit,omitempty"`

	// SimilarityThreshold filters vector hits. Default: 0.4
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty"`
}

// AgentConfig configures the agentic RAG controller.
type AgentConfig struct {
	// MaxIterations bounds refinement loops. Default: 3
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// ScoreThreshold below which any evaluation dimension triggers
	// refinement. Default: 0.7
	ScoreThreshold float64 `yaml:"score_threshold,omitempty"`

	// ContextTokenBudget bounds the tokens of retrieved context passed to
	// the generator. Default: 3000
	ContextTokenBudget int `yaml:"context_token_budget,omitempty"`
}

// ChunkerConfig configures context chunking.
type ChunkerConfig struct {
	// ChunkSize in characters. Default: 300
	ChunkSize int `yaml:"chunk_size,omitempty"`
	// Overlap in characters. Default: 40
	Overlap int `yaml:"overlap,omitempty"`
}

// SetDefaults applies defaults to every section, pulling the recognized
// environment variables where the file left values unset.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Engine.Host == "" {
		c.Engine.Host = envOr(EnvTypesenseHost, "localhost")
	}
	if c.Engine.Port == 0 {
		c.Engine.Port = envInt(EnvTypesensePort, 8108)
	}
	if c.Engine.Protocol == "" {
		c.Engine.Protocol = "http"
	}
	if c.Engine.APIKey == "" {
		c.Engine.APIKey = os.Getenv(EnvTypesenseAPIKey)
	}
	if c.Engine.Timeout <= 0 {
		c.Engine.Timeout = 5
	}

	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "chromem"
	}
	if c.VectorStore.Host == "" {
		c.VectorStore.Host = "localhost"
	}
	if c.VectorStore.Port == 0 {
		c.VectorStore.Port = 6334
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "nest_chunks"
	}

	if c.Database.Path == "" {
		c.Database.Path = "nest.db"
	}

	if c.Embedder.Type == "" {
		c.Embedder.Type = "openai"
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = "text-embedding-3-small"
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 1536
	}
	if c.Embedder.BatchSize == 0 {
		c.Embedder.BatchSize = 100
	}
	if c.Embedder.Timeout <= 0 {
		c.Embedder.Timeout = 30
	}
	if c.Embedder.MinIntervalMS == 0 {
		c.Embedder.MinIntervalMS = envInt(EnvMinEmbedInterval, 1000)
	}

	if c.LLM.Type == "" {
		c.LLM.Type = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2048
	}

	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = envInt(EnvCacheTTLSeconds, 3600)
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 4096
	}

	if c.Retriever.RRFK == 0 {
		c.Retriever.RRFK = envInt(EnvRRFK, 60)
	}
	if c.Retriever.DefaultLimit == 0 {
		c.Retriever.DefaultLimit = 10
	}
	if c.Retriever.SimilarityThreshold == 0 {
		c.Retriever.SimilarityThreshold = 0.4
	}

	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 3
	}
	if c.Agent.ScoreThreshold == 0 {
		c.Agent.ScoreThreshold = 0.7
	}
	if c.Agent.ContextTokenBudget == 0 {
		c.Agent.ContextTokenBudget = 3000
	}

	if c.Chunker.ChunkSize == 0 {
		c.Chunker.ChunkSize = 300
	}
	if c.Chunker.Overlap == 0 {
		c.Chunker.Overlap = 40
	}
}

// Validate checks the configuration. Missing keys or invalid values are
// fatal at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}

	if c.Engine.APIKey == "" {
		return fmt.Errorf("engine api key is required (set %s)", EnvTypesenseAPIKey)
	}

	switch c.VectorStore.Type {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unknown vector store type: %q", c.VectorStore.Type)
	}

	if c.Embedder.APIKey == "" {
		return fmt.Errorf("embedder api key is required (set %s)", EnvOpenAIAPIKey)
	}
	if c.Embedder.Dimension < 1 {
		return fmt.Errorf("embedder dimension must be positive, got %d", c.Embedder.Dimension)
	}
	if c.Embedder.MinIntervalMS < 0 {
		return fmt.Errorf("min embed interval must be non-negative, got %d", c.Embedder.MinIntervalMS)
	}

	if c.Retriever.RRFK < 1 {
		return fmt.Errorf("rrf_k must be positive, got %d", c.Retriever.RRFK)
	}
	if c.Retriever.SimilarityThreshold < 0 || c.Retriever.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got %v", c.Retriever.SimilarityThreshold)
	}

	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent max iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.ScoreThreshold < 0 || c.Agent.ScoreThreshold > 1 {
		return fmt.Errorf("agent score threshold must be in [0,1], got %v", c.Agent.ScoreThreshold)
	}

	if c.Chunker.Overlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker overlap (%d) must be less than chunk size (%d)",
			c.Chunker.Overlap, c.Chunker.ChunkSize)
	}

	return nil
}

// Load reads a YAML config file, expands environment references, applies
// defaults and validates. An empty path yields a pure-environment config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
