package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"mailtriage/pkg/llm/middleware/retry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MAILTRIAGE"

// defaultConfigName is searched for as <name>.yaml when no explicit path is given.
const defaultConfigName = "mailtriage"

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.drain_interval", "100ms")
	v.SetDefault("queue.result_buffer", 64)

	v.SetDefault("retrieval.max_documents", MaxContextDocuments)
	v.SetDefault("retrieval.excerpt_chars", DefaultExcerptChars)
	v.SetDefault("retrieval.corpus_file", "")
	v.SetDefault("retrieval.seed_defaults", true)
	v.SetDefault("retrieval.max_prompt_tokens", 6000)

	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.tokens_per_minute", 100000)
	v.SetDefault("llm.request_timeout", "60s")
	v.SetDefault("llm.retry.max_attempts", retry.DefaultConfig.MaxAttempts)
	v.SetDefault("llm.retry.initial_delay", retry.DefaultConfig.InitialDelay.String())
	v.SetDefault("llm.retry.max_delay", retry.DefaultConfig.MaxDelay.String())
	v.SetDefault("llm.retry.backoff_factor", retry.DefaultConfig.BackoffFactor)
	v.SetDefault("llm.retry.jitter", retry.DefaultConfig.Jitter)

	v.SetDefault("storage.path", "mailtriage.db")
	v.SetDefault("storage.secrets_file", filepath.Join(".mailtriage", secretsFileName))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", LogFormatAuto)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9464")
	v.SetDefault("metrics.prometheus_url", "")

	v.SetDefault("eventlog.enabled", false)
	v.SetDefault("eventlog.dir", "logs")
}

// Load reads configuration. An explicit path must exist; without one the default
// search path is used and a missing file just means defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mailtriage"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		getLogger().Debug("no config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.source != "" {
		getLogger().Info("📋 Loaded config from %s", cfg.source)
	}
	return &cfg, nil
}
