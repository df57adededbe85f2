// Package config loads reqengine configuration from a YAML file and
// REQENGINE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete reqengine configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	LLM        LLMConfig        `koanf:"llm"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Index      IndexConfig      `koanf:"index"`
	Session    SessionConfig    `koanf:"session"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Events     EventsConfig     `koanf:"events"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// BodyLimit caps request bodies, e.g. "10M".
	BodyLimit string `koanf:"body_limit"`
}

// LLMConfig configures the completion backend.
type LLMConfig struct {
	// Backend is "local" (TGI-style HTTP) or "hosted" (OpenAI-compatible chat).
	Backend           string   `koanf:"backend"`
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	Dialect           string   `koanf:"dialect"`
	Timeout           Duration `koanf:"timeout"`
	MaxRetries        int      `koanf:"max_retries"`
	RequestsPerMinute float64  `koanf:"requests_per_minute"`
}

// EmbeddingsConfig configures the sentence embedding provider.
type EmbeddingsConfig struct {
	// Provider is "fastembed", "tei", "openai" or "hash".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
	// Dimension sizes the hash provider.
	Dimension int `koanf:"dimension"`
}

// IndexConfig selects where duplicate detection looks up vectors.
type IndexConfig struct {
	// Backend is "sqlite", "memory", "chromem" or "qdrant".
	Backend    string `koanf:"backend"`
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// Path is the SQLite file, or ":memory:".
	Path string `koanf:"path"`
}

// ChunkingConfig configures large document splitting.
type ChunkingConfig struct {
	MaxTokens int `koanf:"max_tokens"`
}

// SecretsConfig configures secret scrubbing.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Gitleaks      bool   `koanf:"gitleaks"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"`
	ServiceName  string  `koanf:"service_name"`
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// EventsConfig publishes pipeline events to NATS when enabled.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// Backend names accepted by Validate.
var (
	LLMBackends       = []string{"local", "hosted"}
	EmbeddingBackends = []string{"fastembed", "tei", "openai", "hash"}
	IndexBackends     = []string{"sqlite", "memory", "chromem", "qdrant"}
	LogFormats        = []string{"json", "console"}
	LogLevels         = []string{"trace", "debug", "info", "warn", "error"}
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
			BodyLimit:       "10M",
		},
		LLM: LLMConfig{
			Backend:           "local",
			BaseURL:           "http://localhost:8080",
			Dialect:           "llama3",
			Timeout:           Duration(120 * time.Second),
			MaxRetries:        3,
			RequestsPerMinute: 60,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			CacheDir: "~/.cache/reqengine/models",
		},
		Index: IndexConfig{
			Backend:    "sqlite",
			Path:       "~/.local/share/reqengine/vectors",
			Compress:   true,
			Host:       "localhost",
			Port:       6334,
			Collection: "reqengine_use_cases",
			VectorSize: 384,
		},
		Session: SessionConfig{
			Path: "~/.local/share/reqengine/sessions.db",
		},
		Chunking: ChunkingConfig{
			MaxTokens: 3000,
		},
		Secrets: SecretsConfig{
			Enabled:  true,
			Gitleaks: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			ServiceName:  "reqengine",
			Insecure:     true,
			SamplingRate: 1.0,
		},
		Events: EventsConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "reqengine",
		},
	}
}

// Validate rejects unknown backends and out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.ShutdownTimeout.Duration() > 0, "server.shutdown_timeout must be positive")
	check(slices.Contains(LLMBackends, c.LLM.Backend), "llm.backend %q unknown", c.LLM.Backend)
	check(c.LLM.Backend != "hosted" || c.LLM.APIKey.IsSet(), "llm.api_key is required for the hosted backend")
	check(c.LLM.MaxRetries >= 0, "llm.max_retries must not be negative")
	check(slices.Contains(EmbeddingBackends, c.Embeddings.Provider), "embeddings.provider %q unknown", c.Embeddings.Provider)
	check(slices.Contains(IndexBackends, c.Index.Backend), "index.backend %q unknown", c.Index.Backend)
	if c.Index.Backend == "qdrant" {
		check(c.Index.Port > 0 && c.Index.Port < 65536, "index.port %d out of range", c.Index.Port)
		check(c.Index.VectorSize > 0, "index.vector_size must be positive")
	}
	check(c.Session.Path != "", "session.path is required")
	check(c.Chunking.MaxTokens > 0, "chunking.max_tokens must be positive")
	check(slices.Contains(LogLevels, c.Logging.Level), "logging.level %q unknown", c.Logging.Level)
	check(slices.Contains(LogFormats, c.Logging.Format), "logging.format %q unknown", c.Logging.Format)
	if c.Telemetry.Enabled {
		check(c.Telemetry.Endpoint != "", "telemetry.endpoint is required when enabled")
		check(c.Telemetry.Protocol == "grpc" || c.Telemetry.Protocol == "http",
			"telemetry.protocol %q unknown", c.Telemetry.Protocol)
		check(c.Telemetry.SamplingRate >= 0 && c.Telemetry.SamplingRate <= 1,
			"telemetry.sampling_rate %v must be between 0 and 1", c.Telemetry.SamplingRate)
	}
	if c.Events.Enabled {
		check(c.Events.URL != "", "events.url is required when enabled")
		check(!strings.ContainsAny(c.Events.SubjectPrefix, " *>"), "events.subject_prefix %q is not a valid subject", c.Events.SubjectPrefix)
	}
	return errors.Join(errs...)
}

// Addr is the server listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
