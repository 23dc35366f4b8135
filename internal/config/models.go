package config

import "time"

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider          string
	MaxBodySize       int
	ClassifyMaxTokens int
	GenerateMaxTokens int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ModelName      string
	EmbeddingModel string
	Temperature    float32
	TopP           float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey         string
	ModelName      string
	EmbeddingModel string
	Temperature    float32
	TopP           float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region           string
	ModelID          string
	EmbeddingModelID string
	Temperature      float32
	TopP             float32
}

// EmbeddingConfig selects the embedder used by the policy index.
type EmbeddingConfig struct {
	Provider  string
	Dimension int
	CacheSize int
}

// MailConfig selects the mail gateway.
type MailConfig struct {
	Provider string
	Address  string
}

// GmailConfig holds the Gmail API settings.
type GmailConfig struct {
	CredentialsFile string
	TokenFile       string
	Query           string
	ProcessedLabel  string
}

// SMTPConfig holds the inbound listener and outbound relay settings.
type SMTPConfig struct {
	ListenAddress   string
	Domain          string
	QueueSize       int
	MaxMessageBytes int64
	RelayAddress    string
	Username        string
	Password        string
}

// PolicyConfig configures the policy index.
type PolicyConfig struct {
	Dir              string
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	BuildConcurrency int
	SnapshotPath     string
	RefreshInterval  time.Duration
}

// CacheConfig configures the response and classification cache.
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	MaxEntries       int
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisURL         string
}

// ProcessedConfig configures the processed-id ledger.
type ProcessedConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
	RedisURL   string
	RedisKey   string
}

// WorkflowConfig tunes batch processing.
type WorkflowConfig struct {
	MaxEmails      int
	Concurrency    int
	SendRetryDelay time.Duration
	Interval       time.Duration
	Suppress       []string
}

// TimeoutsConfig bounds calls to external services.
type TimeoutsConfig struct {
	LLM       time.Duration
	Embedding time.Duration
	Mail      time.Duration
}

// ResponseConfig shapes generated replies.
type ResponseConfig struct {
	Tone      string
	MaxLength int
	MinLength int
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:          c.GetString("llm.provider"),
		MaxBodySize:       c.GetInt("llm.max_body_size"),
		ClassifyMaxTokens: c.GetInt("llm.classify_max_tokens"),
		GenerateMaxTokens: c.GetInt("llm.generate_max_tokens"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:         c.GetString("openai.api_key"),
		BaseURL:        c.GetString("openai.base_url"),
		ModelName:      c.GetString("openai.model_name"),
		EmbeddingModel: c.GetString("openai.embedding_model"),
		Temperature:    float32(c.GetFloat64("openai.temperature")),
		TopP:           float32(c.GetFloat64("openai.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:         c.GetString("gemini.api_key"),
		ModelName:      c.GetString("gemini.model_name"),
		EmbeddingModel: c.GetString("gemini.embedding_model"),
		Temperature:    float32(c.GetFloat64("gemini.temperature")),
		TopP:           float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:           c.GetString("bedrock.region"),
		ModelID:          c.GetString("bedrock.model_id"),
		EmbeddingModelID: c.GetString("bedrock.embedding_model_id"),
		Temperature:      float32(c.GetFloat64("bedrock.temperature")),
		TopP:             float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetEmbedding returns the embedding configuration
func (c *Config) GetEmbedding() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:  c.GetString("embedding.provider"),
		Dimension: c.GetInt("embedding.dimension"),
		CacheSize: c.GetInt("embedding.cache_size"),
	}
}

// GetMail returns the mail gateway selection
func (c *Config) GetMail() MailConfig {
	return MailConfig{
		Provider: c.GetString("mail.provider"),
		Address:  c.GetString("mail.address"),
	}
}

// GetGmail returns the Gmail configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile: c.GetString("gmail.credentials_file"),
		TokenFile:       c.GetString("gmail.token_file"),
		Query:           c.GetString("gmail.query"),
		ProcessedLabel:  c.GetString("gmail.processed_label"),
	}
}

// GetSMTP returns the SMTP configuration
func (c *Config) GetSMTP() SMTPConfig {
	return SMTPConfig{
		ListenAddress:   c.GetString("smtp.listen_address"),
		Domain:          c.GetString("smtp.domain"),
		QueueSize:       c.GetInt("smtp.queue_size"),
		MaxMessageBytes: int64(c.GetInt("smtp.max_message_bytes")),
		RelayAddress:    c.GetString("smtp.relay_address"),
		Username:        c.GetString("smtp.username"),
		Password:        c.GetString("smtp.password"),
	}
}

// GetPolicy returns the policy index configuration
func (c *Config) GetPolicy() PolicyConfig {
	return PolicyConfig{
		Dir:              c.GetString("policy.dir"),
		ChunkSize:        c.GetInt("policy.chunk_size"),
		ChunkOverlap:     c.GetInt("policy.chunk_overlap"),
		TopK:             c.GetInt("policy.top_k"),
		BuildConcurrency: c.GetInt("policy.build_concurrency"),
		SnapshotPath:     c.GetString("policy.snapshot_path"),
		RefreshInterval:  c.duration("policy.refresh_interval"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              c.duration("cache.ttl"),
		MaxEntries:       c.GetInt("cache.max_entries"),
		CleanupFrequency: c.duration("cache.cleanup_frequency"),
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisURL:         c.GetString("cache.redis_url"),
	}
}

// GetProcessed returns the processed-id ledger configuration
func (c *Config) GetProcessed() ProcessedConfig {
	return ProcessedConfig{
		Type:       c.GetString("processed.type"),
		SQLitePath: c.GetString("processed.sqlite_path"),
		MySQLDSN:   c.GetString("processed.mysql_dsn"),
		RedisURL:   c.GetString("processed.redis_url"),
		RedisKey:   c.GetString("processed.redis_key"),
	}
}

// GetWorkflow returns the batch processing configuration
func (c *Config) GetWorkflow() WorkflowConfig {
	return WorkflowConfig{
		MaxEmails:      c.GetInt("workflow.max_emails"),
		Concurrency:    c.GetInt("workflow.concurrency"),
		SendRetryDelay: c.duration("workflow.send_retry_delay"),
		Interval:       c.duration("workflow.interval"),
		Suppress:       c.GetStringSlice("workflow.suppress"),
	}
}

// GetTimeouts returns the external call timeouts
func (c *Config) GetTimeouts() TimeoutsConfig {
	return TimeoutsConfig{
		LLM:       c.duration("timeouts.llm"),
		Embedding: c.duration("timeouts.embedding"),
		Mail:      c.duration("timeouts.mail"),
	}
}

// GetResponse returns the reply shaping configuration
func (c *Config) GetResponse() ResponseConfig {
	return ResponseConfig{
		Tone:      c.GetString("response.tone"),
		MaxLength: c.GetInt("response.max_length"),
		MinLength: c.GetInt("response.min_length"),
	}
}

// GetServer returns the HTTP server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		ReadTimeout:   c.duration("server.read_timeout"),
		WriteTimeout:  c.duration("server.write_timeout"),
	}
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}
