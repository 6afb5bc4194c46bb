package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Engine.Port != 8108 {
		t.Errorf("Engine.Port = %d, want 8108", cfg.Engine.Port)
	}
	if cfg.Embedder.Dimension != 1536 {
		t.Errorf("Embedder.Dimension = %d, want 1536", cfg.Embedder.Dimension)
	}
	if cfg.Embedder.MinIntervalMS != 1000 {
		t.Errorf("Embedder.MinIntervalMS = %d, want 1000", cfg.Embedder.MinIntervalMS)
	}
	if cfg.Cache.TTLSeconds != 3600 {
		t.Errorf("Cache.TTLSeconds = %d, want 3600", cfg.Cache.TTLSeconds)
	}
	if cfg.Retriever.RRFK != 60 {
		t.Errorf("Retriever.RRFK = %d, want 60", cfg.Retriever.RRFK)
	}
	if cfg.Chunker.ChunkSize != 300 || cfg.Chunker.Overlap != 40 {
		t.Errorf("Chunker defaults = (%d, %d), want (300, 40)", cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	}
	if cfg.Agent.MaxIterations != 3 {
		t.Errorf("Agent.MaxIterations = %d, want 3", cfg.Agent.MaxIterations)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvCacheTTLSeconds, "120")
	t.Setenv(EnvRRFK, "30")
	t.Setenv(EnvMinEmbedInterval, "250")

	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Cache.TTLSeconds != 120 {
		t.Errorf("Cache.TTLSeconds = %d, want 120", cfg.Cache.TTLSeconds)
	}
	if cfg.Retriever.RRFK != 30 {
		t.Errorf("Retriever.RRFK = %d, want 30", cfg.Retriever.RRFK)
	}
	if cfg.Embedder.MinIntervalMS != 250 {
		t.Errorf("Embedder.MinIntervalMS = %d, want 250", cfg.Embedder.MinIntervalMS)
	}
}

func TestValidateMissingKeys(t *testing.T) {
	os.Unsetenv(EnvOpenAIAPIKey)
	os.Unsetenv(EnvTypesenseAPIKey)

	cfg := &Config{}
	cfg.SetDefaults()

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error without API keys")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_ENGINE_KEY", "ts-secret")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  geo_ip_table:
    "203.0.113.7": [37.77, -122.42]
engine:
  host: search.internal
  api_key: ${TEST_ENGINE_KEY}
retriever:
  rrf_k: 45
vector_store:
  type: qdrant
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.Host != "search.internal" {
		t.Errorf("Engine.Host = %q", cfg.Engine.Host)
	}
	if cfg.Engine.APIKey != "ts-secret" {
		t.Errorf("Engine.APIKey = %q, env expansion failed", cfg.Engine.APIKey)
	}
	if cfg.Retriever.RRFK != 45 {
		t.Errorf("Retriever.RRFK = %d, want 45", cfg.Retriever.RRFK)
	}
	if cfg.VectorStore.Type != "qdrant" {
		t.Errorf("VectorStore.Type = %q", cfg.VectorStore.Type)
	}
	if coords, ok := cfg.Server.GeoIPTable["203.0.113.7"]; !ok || coords != [2]float64{37.77, -122.42} {
		t.Errorf("Server.GeoIPTable = %v", cfg.Server.GeoIPTable)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	t.Setenv(EnvTypesenseAPIKey, "ts-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
chunker:
  chunk_size: 10
  overlap: 20
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for overlap >= chunk size")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("NEST_TEST_VAR", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${NEST_TEST_VAR}", "value"},
		{"$NEST_TEST_VAR", "value"},
		{"${NEST_UNSET_VAR:-fallback}", "fallback"},
		{"${NEST_TEST_VAR:-fallback}", "value"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
