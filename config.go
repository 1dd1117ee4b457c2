package contractgraph

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/contractgraph/graphsink"
)

// Config holds all configuration for the engine and the CLI.
type Config struct {
	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Batch concurrency and model call policy. RequestsPerSecond is shared
	// by all workers and both providers.
	Workers           int           `json:"workers" yaml:"workers"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
	ModelTimeout      time.Duration `json:"model_timeout" yaml:"model_timeout"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`         // transport retries per call
	ExtractRetries    int           `json:"extract_retries" yaml:"extract_retries"` // corrective follow-ups per window

	// Extraction windows, in estimated tokens
	WindowTokens  int `json:"window_tokens" yaml:"window_tokens"`
	WindowOverlap int `json:"window_overlap" yaml:"window_overlap"`

	// Retrieval and answering
	TopK          int     `json:"top_k" yaml:"top_k"`
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity"`
	MaxRounds     int     `json:"max_rounds" yaml:"max_rounds"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// StorePath is an optional SQLite snapshot of the corpus. When set,
	// ingest saves to it and ask/serve load from it.
	StorePath string `json:"store_path" yaml:"store_path"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Neo4j is the optional graph sink; nil or an empty URI disables it.
	Neo4j *graphsink.Neo4jConfig `json:"neo4j,omitempty" yaml:"neo4j,omitempty"`

	// serve
	Addr          string `json:"addr" yaml:"addr"`
	RetrySchedule string `json:"retry_schedule" yaml:"retry_schedule"`

	LogLevel  string `json:"log_level" yaml:"log_level"`   // debug, info, warn, error
	LogFormat string `json:"log_format" yaml:"log_format"` // json, text
}

// LLMConfig configures a single model endpoint.
type LLMConfig struct {
	Provider string        `json:"provider" yaml:"provider"` // ollama, eino, openai, lmstudio, openrouter, groq, xai, gemini, custom
	Model    string        `json:"model" yaml:"model"`
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	APIKey   string        `json:"-" yaml:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
func DefaultConfig() Config {
	return Config{
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Workers:           5,
		RequestsPerSecond: 2,
		Burst:             2,
		ModelTimeout:      90 * time.Second,
		MaxRetries:        4,
		ExtractRetries:    2,
		WindowTokens:      3000,
		WindowOverlap:     200,
		TopK:              5,
		MinSimilarity:     0.2,
		MaxRounds:         2,
		EmbeddingDim:      768,
		OutputDir:         "output",
		Addr:              ":8080",
		RetrySchedule:     "@every 10m",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// LoadConfig reads a YAML or JSON file over DefaultConfig. Keys absent from
// the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CONTRACTGRAPH_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup("CONTRACTGRAPH_" + name); ok {
			*dst = v
		}
	}
	var errs []string
	num := func(name string, set func(string) error) {
		if v, ok := lookup("CONTRACTGRAPH_" + name); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Sprintf("CONTRACTGRAPH_%s=%q", name, v))
			}
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(s string) error {
			n, err := strconv.Atoi(s)
			if err == nil {
				*dst = n
			}
			return err
		}
	}
	floatVar := func(dst *float64) func(string) error {
		return func(s string) error {
			f, err := strconv.ParseFloat(s, 64)
			if err == nil {
				*dst = f
			}
			return err
		}
	}
	durationVar := func(dst *time.Duration) func(string) error {
		return func(s string) error {
			d, err := time.ParseDuration(s)
			if err == nil {
				*dst = d
			}
			return err
		}
	}

	str("CHAT_PROVIDER", &c.Chat.Provider)
	str("CHAT_MODEL", &c.Chat.Model)
	str("CHAT_BASE_URL", &c.Chat.BaseURL)
	str("CHAT_API_KEY", &c.Chat.APIKey)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	str("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	str("STORE_PATH", &c.StorePath)
	str("OUTPUT_DIR", &c.OutputDir)
	str("ADDR", &c.Addr)
	str("RETRY_SCHEDULE", &c.RetrySchedule)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	num("WORKERS", intVar(&c.Workers))
	num("REQUESTS_PER_SECOND", floatVar(&c.RequestsPerSecond))
	num("MODEL_TIMEOUT", durationVar(&c.ModelTimeout))
	num("TOP_K", intVar(&c.TopK))
	num("MIN_SIMILARITY", floatVar(&c.MinSimilarity))
	num("EMBEDDING_DIM", intVar(&c.EmbeddingDim))

	if uri, ok := lookup("CONTRACTGRAPH_NEO4J_URI"); ok {
		if c.Neo4j == nil {
			c.Neo4j = &graphsink.Neo4jConfig{}
		}
		c.Neo4j.URI = uri
	}
	if c.Neo4j != nil {
		str("NEO4J_USER", &c.Neo4j.User)
		str("NEO4J_PASSWORD", &c.Neo4j.Password)
		str("NEO4J_DATABASE", &c.Neo4j.Database)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: malformed environment %s", ErrInvalidConfig, strings.Join(errs, ", "))
	}
	return nil
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var problem string
	switch {
	case c.Chat.Provider == "" || c.Chat.Model == "":
		problem = "chat provider and model are required"
	case c.Embedding.Provider == "" || c.Embedding.Model == "":
		problem = "embedding provider and model are required"
	case c.Workers < 1:
		problem = "workers must be at least 1"
	case c.RequestsPerSecond < 0:
		problem = "requests_per_second must not be negative"
	case c.MaxRetries < 0:
		problem = "max_retries must not be negative"
	case c.ExtractRetries < 0:
		problem = "extract_retries must not be negative"
	case c.WindowTokens <= 0 || c.WindowOverlap < 0 || c.WindowOverlap >= c.WindowTokens:
		problem = "window_overlap must be smaller than a positive window_tokens"
	case c.TopK < 1:
		problem = "top_k must be at least 1"
	case c.MinSimilarity < -1 || c.MinSimilarity > 1:
		problem = "min_similarity must be within [-1, 1]"
	case c.EmbeddingDim <= 0:
		problem = "embedding_dim must be positive"
	}
	if problem == "" {
		switch strings.ToLower(c.LogLevel) {
		case "", "debug", "info", "warn", "error":
		default:
			problem = fmt.Sprintf("unknown log_level %q", c.LogLevel)
		}
	}
	if problem == "" {
		switch strings.ToLower(c.LogFormat) {
		case "", "json", "text":
		default:
			problem = fmt.Sprintf("unknown log_format %q", c.LogFormat)
		}
	}
	if problem == "" && c.RetrySchedule != "" {
		if _, err := cron.ParseStandard(c.RetrySchedule); err != nil {
			problem = fmt.Sprintf("retry_schedule: %v", err)
		}
	}
	if problem != "" {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, problem)
	}
	return nil
}

func (c *Config) neo4jEnabled() bool {
	return c.Neo4j != nil && c.Neo4j.URI != ""
}
