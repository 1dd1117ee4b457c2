package contractgraph

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
chat:
  provider: openrouter
  model: meta-llama/llama-3.1-70b-instruct
  api_key: secret
workers: 8
model_timeout: 45s
min_similarity: 0.35
neo4j:
  uri: neo4j://localhost:7687
  user: neo4j
  password: pw
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chat.Provider != "openrouter" || cfg.Chat.APIKey != "secret" {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if cfg.Workers != 8 || cfg.ModelTimeout != 45*time.Second || cfg.MinSimilarity != 0.35 {
		t.Errorf("workers=%d timeout=%v min=%v", cfg.Workers, cfg.ModelTimeout, cfg.MinSimilarity)
	}
	// Absent keys keep their defaults.
	if cfg.Embedding.Model != "nomic-embed-text" || cfg.TopK != 5 {
		t.Errorf("defaults lost: embedding=%+v top_k=%d", cfg.Embedding, cfg.TopK)
	}
	if !cfg.neo4jEnabled() || cfg.Neo4j.Password != "pw" {
		t.Errorf("neo4j = %+v", cfg.Neo4j)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"top_k": 9, "embedding": {"provider": "eino", "model": "bge-m3"}}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TopK != 9 || cfg.Embedding.Provider != "eino" || cfg.Embedding.Model != "bge-m3" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
	path := writeFile(t, t.TempDir(), "bad.yaml", "workers: [1, 2\n")
	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad yaml err = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CONTRACTGRAPH_CHAT_MODEL":     "qwen2.5:14b",
		"CONTRACTGRAPH_WORKERS":        "12",
		"CONTRACTGRAPH_MODEL_TIMEOUT":  "2m",
		"CONTRACTGRAPH_STORE_PATH":     "/var/lib/contractgraph/corpus.db",
		"CONTRACTGRAPH_NEO4J_URI":      "bolt://graph:7687",
		"CONTRACTGRAPH_NEO4J_PASSWORD": "pw",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := DefaultConfig()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Chat.Model != "qwen2.5:14b" || cfg.Workers != 12 || cfg.ModelTimeout != 2*time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.StorePath != "/var/lib/contractgraph/corpus.db" {
		t.Errorf("store path = %q", cfg.StorePath)
	}
	if cfg.Neo4j == nil || cfg.Neo4j.URI != "bolt://graph:7687" || cfg.Neo4j.Password != "pw" {
		t.Errorf("neo4j = %+v", cfg.Neo4j)
	}

	env = map[string]string{"CONTRACTGRAPH_WORKERS": "many", "CONTRACTGRAPH_TOP_K": "3"}
	cfg = DefaultConfig()
	if err := cfg.applyEnv(lookup); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
	if cfg.TopK != 3 {
		t.Errorf("valid variables should still apply, top_k = %d", cfg.TopK)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no chat model", func(c *Config) { c.Chat.Model = "" }},
		{"no embedding provider", func(c *Config) { c.Embedding.Provider = "" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"negative rps", func(c *Config) { c.RequestsPerSecond = -1 }},
		{"overlap too large", func(c *Config) { c.WindowOverlap = c.WindowTokens }},
		{"zero top k", func(c *Config) { c.TopK = 0 }},
		{"similarity out of range", func(c *Config) { c.MinSimilarity = 1.5 }},
		{"zero dim", func(c *Config) { c.EmbeddingDim = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad schedule", func(c *Config) { c.RetrySchedule = "every ten minutes" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
