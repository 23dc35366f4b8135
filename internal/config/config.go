package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance. When path is empty the usual
// locations are searched for config.yaml; a missing file is not an error.
func New(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/llm-email-responder/")
		v.AddConfigPath("$HOME/.llm-email-responder")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("EMAIL_RESPONDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// LLM provider defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.max_body_size", 4096)
	v.SetDefault("llm.classify_max_tokens", 10)
	v.SetDefault("llm.generate_max_tokens", 1000)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.embedding_model", "text-embedding-004")
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.embedding_model_id", "amazon.titan-embed-text-v2:0")
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	// Embedding defaults
	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.dimension", 1024)
	v.SetDefault("embedding.cache_size", 1024)

	// Mail defaults
	v.SetDefault("mail.provider", "gmail")
	v.SetDefault("mail.address", "")
	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.query", "is:unread in:inbox")
	v.SetDefault("gmail.processed_label", "")
	v.SetDefault("smtp.listen_address", "0.0.0.0:2525")
	v.SetDefault("smtp.domain", "localhost")
	v.SetDefault("smtp.queue_size", 1000)
	v.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	v.SetDefault("smtp.relay_address", "localhost:587")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")

	// Policy index defaults
	v.SetDefault("policy.dir", "./policies")
	v.SetDefault("policy.chunk_size", 1000)
	v.SetDefault("policy.chunk_overlap", 200)
	v.SetDefault("policy.top_k", 5)
	v.SetDefault("policy.build_concurrency", 4)
	v.SetDefault("policy.snapshot_path", "")
	v.SetDefault("policy.refresh_interval", "0s")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "/data/response_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/email_responder")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")

	// Processed-id ledger defaults
	v.SetDefault("processed.type", "memory")
	v.SetDefault("processed.sqlite_path", "/data/processed.db")
	v.SetDefault("processed.mysql_dsn", "user:password@tcp(localhost:3306)/email_responder")
	v.SetDefault("processed.redis_url", "redis://localhost:6379/0")
	v.SetDefault("processed.redis_key", "email_responder:processed")

	// Workflow defaults
	v.SetDefault("workflow.max_emails", 50)
	v.SetDefault("workflow.concurrency", 4)
	v.SetDefault("workflow.send_retry_delay", "2s")
	v.SetDefault("workflow.interval", "5m")
	v.SetDefault("workflow.suppress", []string{})

	// Timeouts
	v.SetDefault("timeouts.llm", "30s")
	v.SetDefault("timeouts.embedding", "15s")
	v.SetDefault("timeouts.mail", "30s")

	// Response defaults
	v.SetDefault("response.tone", "polite")
	v.SetDefault("response.max_length", 500)
	v.SetDefault("response.min_length", 10)

	// HTTP server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks enumerations and durations so misconfiguration fails at
// startup rather than on first use.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(key string, allowed ...string) {
		val := c.GetString(key)
		for _, a := range allowed {
			if val == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unsupported value %q (want one of %s)", key, val, strings.Join(allowed, ", ")))
	}
	oneOf("llm.provider", "openai", "gemini", "bedrock")
	oneOf("embedding.provider", "hashing", "openai", "gemini", "bedrock")
	oneOf("mail.provider", "gmail", "smtp")
	oneOf("cache.type", "memory", "sqlite", "mysql", "redis")
	oneOf("processed.type", "memory", "sqlite", "mysql", "redis")

	for _, key := range []string{
		"cache.ttl", "cache.cleanup_frequency", "policy.refresh_interval",
		"workflow.send_retry_delay", "workflow.interval",
		"timeouts.llm", "timeouts.embedding", "timeouts.mail",
		"server.read_timeout", "server.write_timeout",
	} {
		if _, err := c.GetDuration(key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	if size, overlap := c.GetInt("policy.chunk_size"), c.GetInt("policy.chunk_overlap"); size <= 0 || overlap < 0 || overlap >= size {
		errs = append(errs, fmt.Errorf("policy.chunk_overlap (%d) must be in [0, policy.chunk_size (%d))", overlap, size))
	}
	if c.GetInt("policy.top_k") < 0 {
		errs = append(errs, errors.New("policy.top_k must not be negative"))
	}
	return errors.Join(errs...)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// duration is GetDuration for values already checked by Validate.
func (c *Config) duration(key string) time.Duration {
	d, _ := c.GetDuration(key)
	return d
}

// Set overrides a value, typically from a command-line flag.
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
