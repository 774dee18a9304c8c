package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the coursemind API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Provider  ProviderConfig  `yaml:"provider"`
	Auth      AuthConfig      `yaml:"auth"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Empty api_keys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// DatabaseConfig holds the job-store / cache backend settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ProviderConfig holds the embedding/completion provider settings.
type ProviderConfig struct {
	APIKey           string  `yaml:"api_key"`
	BaseURL          string  `yaml:"base_url"`
	EmbeddingModel   string  `yaml:"embedding_model"`
	CompletionModel  string  `yaml:"completion_model"`
	Dimensions       int     `yaml:"dimensions"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float32 `yaml:"temperature"`
	EmbedCacheTTLSec int     `yaml:"embed_cache_ttl_sec"` // retention of cached vectors
}

// IngestConfig holds chunking and pipeline settings.
type IngestConfig struct {
	MaxChunkWords int `yaml:"max_chunk_words"` // retrieval granularity vs context cost
	OverlapWords  int `yaml:"overlap_words"`   // boundary continuity
	Workers       int `yaml:"workers"`
	JobTTLSec     int `yaml:"job_ttl_sec"` // retention of terminal jobs
	EmbedRetries  int `yaml:"embed_retries"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	DefaultTopK       int     `yaml:"default_top_k"`
	ContextWordBudget int     `yaml:"context_word_budget"`
	VectorWeight      float64 `yaml:"vector_weight"`
	KeywordWeight     float64 `yaml:"keyword_weight"`
	PhraseWeight      float64 `yaml:"phrase_weight"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	SynthesisRetries  int     `yaml:"synthesis_retries"`
	RetryBackoffMS    int     `yaml:"retry_backoff_ms"` // base delay between synthesis retries
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 32
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Provider.EmbeddingModel == "" {
		c.Provider.EmbeddingModel = "text-embedding-3-small"
	}
	if c.Provider.MaxTokens <= 0 {
		c.Provider.MaxTokens = 1024
	}
	if c.Provider.Temperature <= 0 {
		c.Provider.Temperature = 0.7
	}
	if c.Provider.EmbedCacheTTLSec <= 0 {
		c.Provider.EmbedCacheTTLSec = 86400
	}
	if c.Ingest.MaxChunkWords <= 0 {
		c.Ingest.MaxChunkWords = 1000
	}
	if c.Ingest.OverlapWords < 0 {
		c.Ingest.OverlapWords = 0
	} else if c.Ingest.OverlapWords == 0 {
		c.Ingest.OverlapWords = 200
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.JobTTLSec <= 0 {
		c.Ingest.JobTTLSec = 3600
	}
	if c.Ingest.EmbedRetries <= 0 {
		c.Ingest.EmbedRetries = 3
	}
	if c.Retrieval.DefaultTopK <= 0 {
		c.Retrieval.DefaultTopK = 5
	}
	if c.Retrieval.ContextWordBudget <= 0 {
		c.Retrieval.ContextWordBudget = 3000
	}
	if c.Retrieval.VectorWeight <= 0 {
		c.Retrieval.VectorWeight = 0.6
	}
	if c.Retrieval.KeywordWeight <= 0 {
		c.Retrieval.KeywordWeight = 0.3
	}
	if c.Retrieval.PhraseWeight <= 0 {
		c.Retrieval.PhraseWeight = 0.1
	}
	if c.Retrieval.TimeoutSec <= 0 {
		c.Retrieval.TimeoutSec = 15
	}
	if c.Retrieval.SynthesisRetries <= 0 {
		c.Retrieval.SynthesisRetries = 2
	}
	if c.Retrieval.RetryBackoffMS <= 0 {
		c.Retrieval.RetryBackoffMS = 300
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("database.driver must be \"memory\" or \"redis\", got %q", c.Database.Driver)
	}
	if c.Ingest.OverlapWords >= c.Ingest.MaxChunkWords {
		return fmt.Errorf(
			"ingest.overlap_words (%d) must be smaller than ingest.max_chunk_words (%d)",
			c.Ingest.OverlapWords, c.Ingest.MaxChunkWords,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
