// Package config provides configuration loading and validation for mailtriage.
//
// Configuration comes from three layers, later layers winning:
//
//  1. Built-in defaults (see setDefaults).
//  2. A YAML file: the --config path, or mailtriage.yaml in "." or $HOME/.mailtriage.
//  3. Environment variables prefixed MAILTRIAGE_, with dots replaced by underscores
//     (MAILTRIAGE_QUEUE_DRAIN_INTERVAL=250ms).
//
// Provider API keys are resolved separately by LLMConfig.ResolveAPIKey so they can
// come from the encrypted secrets file instead of plain text config.
package config

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"mailtriage/pkg/llm/middleware/retry"
	"mailtriage/pkg/logx"
)

// Provider names accepted in llm.provider.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

// Environment variables consulted for provider credentials.
const (
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvLegacyAPIKey    = "API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Log formats accepted in log.format.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Retrieval limits. The context bundle never carries more than MaxContextDocuments.
const (
	MaxContextDocuments = 5
	DefaultExcerptChars = 200
)

// Config is the full mailtriage configuration.
type Config struct {
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	EventLog  EventLogConfig  `mapstructure:"eventlog" yaml:"eventlog"`

	// source is the config file actually read, empty when running on defaults.
	source string
}

// QueueConfig controls the scheduler.
type QueueConfig struct {
	DrainInterval time.Duration `mapstructure:"drain_interval" yaml:"drain_interval"`
	ResultBuffer  int           `mapstructure:"result_buffer" yaml:"result_buffer"`
}

// RetrievalConfig controls context retrieval and reply prompts.
type RetrievalConfig struct {
	MaxDocuments    int    `mapstructure:"max_documents" yaml:"max_documents"`
	ExcerptChars    int    `mapstructure:"excerpt_chars" yaml:"excerpt_chars"`
	CorpusFile      string `mapstructure:"corpus_file" yaml:"corpus_file"`
	SeedDefaults    bool   `mapstructure:"seed_defaults" yaml:"seed_defaults"`
	MaxPromptTokens int    `mapstructure:"max_prompt_tokens" yaml:"max_prompt_tokens"`
}

// LLMConfig selects and tunes the text generator.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"`
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Temperature     float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	TokensPerMinute int           `mapstructure:"tokens_per_minute" yaml:"tokens_per_minute"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Retry           retry.Config  `mapstructure:"retry" yaml:"retry"`
}

// StorageConfig locates the SQLite database and the secrets file.
type StorageConfig struct {
	Path        string `mapstructure:"path" yaml:"path"`
	SecretsFile string `mapstructure:"secrets_file" yaml:"secrets_file"`
}

// LogConfig controls logx.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint and queries.
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr    string `mapstructure:"listen_addr" yaml:"listen_addr"`
	PrometheusURL string `mapstructure:"prometheus_url" yaml:"prometheus_url"`
}

// EventLogConfig controls the JSONL drain log.
type EventLogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// Source returns the config file that was read, or "" when only defaults and env were used.
func (c *Config) Source() string {
	return c.source
}

// Validate checks ranges and enumerations. It does not check credentials.
func (c *Config) Validate() error {
	if c.Queue.DrainInterval <= 0 {
		return fmt.Errorf("queue.drain_interval must be positive (got %v)", c.Queue.DrainInterval)
	}
	if c.Queue.ResultBuffer < 0 {
		return fmt.Errorf("queue.result_buffer must not be negative (got %d)", c.Queue.ResultBuffer)
	}

	if c.Retrieval.MaxDocuments < 1 || c.Retrieval.MaxDocuments > MaxContextDocuments {
		return fmt.Errorf("retrieval.max_documents must be between 1 and %d (got %d)", MaxContextDocuments, c.Retrieval.MaxDocuments)
	}
	if c.Retrieval.ExcerptChars <= 0 {
		return fmt.Errorf("retrieval.excerpt_chars must be positive (got %d)", c.Retrieval.ExcerptChars)
	}
	if c.Retrieval.MaxPromptTokens <= 0 {
		return fmt.Errorf("retrieval.max_prompt_tokens must be positive (got %d)", c.Retrieval.MaxPromptTokens)
	}

	if err := c.LLM.validate(); err != nil {
		return err
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	switch c.Log.Format {
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("log.format must be one of auto, console, json (got %q)", c.Log.Format)
	}
	switch logx.Level(c.Log.Level) {
	case logx.LevelDebug, logx.LevelInfo, logx.LevelWarn, logx.LevelError:
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}
	if c.EventLog.Enabled && c.EventLog.Dir == "" {
		return fmt.Errorf("eventlog.dir is required when the event log is enabled")
	}
	return nil
}

func (l *LLMConfig) validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderNone:
	default:
		return fmt.Errorf("llm.provider must be one of gemini, anthropic, openai, ollama, none (got %q)", l.Provider)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2 (got %v)", l.Temperature)
	}
	if l.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must not be negative (got %d)", l.MaxTokens)
	}
	if l.TokensPerMinute < 0 {
		return fmt.Errorf("llm.tokens_per_minute must not be negative (got %d)", l.TokensPerMinute)
	}
	if l.RequestTimeout < 0 {
		return fmt.Errorf("llm.request_timeout must not be negative (got %v)", l.RequestTimeout)
	}
	if l.Retry.MaxAttempts < 1 {
		return fmt.Errorf("llm.retry.max_attempts must be at least 1 (got %d)", l.Retry.MaxAttempts)
	}
	if l.Retry.BackoffFactor < 1 {
		return fmt.Errorf("llm.retry.backoff_factor must be at least 1 (got %v)", l.Retry.BackoffFactor)
	}
	return nil
}

// APIKeyEnvVars returns the credential variables for the provider, in lookup order.
// Providers without credentials return nil.
func (l *LLMConfig) APIKeyEnvVars() []string {
	switch l.Provider {
	case ProviderGemini:
		return []string{EnvGeminiAPIKey, EnvLegacyAPIKey}
	case ProviderAnthropic:
		return []string{EnvAnthropicAPIKey}
	case ProviderOpenAI:
		return []string{EnvOpenAIAPIKey}
	default:
		return nil
	}
}

// ResolveAPIKey fills APIKey when the config left it empty. Lookup order is the
// config value, then the decrypted secrets (may be nil), then the environment.
// For Ollama the host is resolved the same way from OLLAMA_HOST.
func (l *LLMConfig) ResolveAPIKey(secrets map[string]string) error {
	if l.Provider == ProviderOllama {
		if l.BaseURL == "" {
			l.BaseURL = os.Getenv(EnvOllamaHost)
		}
		return nil
	}
	names := l.APIKeyEnvVars()
	if len(names) == 0 || l.APIKey != "" {
		return nil
	}
	for _, name := range names {
		if v := secrets[name]; v != "" {
			l.APIKey = v
			return nil
		}
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			l.APIKey = v
			return nil
		}
	}
	return fmt.Errorf("API key not found for provider %s: set llm.api_key, store %s in the secrets file, or export it", l.Provider, names[0])
}

// ResolveFormat turns "auto" into console on a terminal and json otherwise.
func (l LogConfig) ResolveFormat(out *os.File) string {
	if l.Format != LogFormatAuto {
		return l.Format
	}
	if out != nil && term.IsTerminal(int(out.Fd())) { //nolint:gosec // fd fits in int
		return LogFormatConsole
	}
	return LogFormatJSON
}
