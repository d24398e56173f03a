package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Validation ValidationConfig
	Session    SessionConfig
	Feedback   FeedbackConfig
	Pipeline   PipelineConfig
	Retrieval  RetrievalConfig
	Milvus     MilvusConfig
	Cache      CacheConfig
	Redis      RedisConfig
	SQLite     SQLiteConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	MaxRequestsPerMinute int
	AllowedOrigins       []string
	IsDevelopment        bool
}

type ValidationConfig struct {
	MinLength int
	MaxLength int
}

type SessionConfig struct {
	TimeoutMinutes         int
	CleanupIntervalSeconds int
}

type FeedbackConfig struct {
	MinRating int
	MaxRating int
}

// PipelineConfig selects the language-model provider behind the agent
// pipeline. Provider "fallback" (or a provider without credentials) runs the
// templated stages only.
type PipelineConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
}

type RetrievalConfig struct {
	Backend   string
	IndexPath string
	TopK      int
	SeedPath  string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type CacheConfig struct {
	Backend    string
	TTLSeconds int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	// Provider credentials usually live in a local .env file; a missing file is fine.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/health-agents")

	viper.SetEnvPrefix("HEALTH_AGENTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProviderEnv(&config.Pipeline)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func (c *Config) Validate() error {
	if c.Validation.MinLength < 0 {
		return errors.New("validation.minLength must be >= 0")
	}
	if c.Validation.MaxLength < c.Validation.MinLength {
		return errors.New("validation.maxLength must be >= validation.minLength")
	}
	if c.Session.TimeoutMinutes <= 0 {
		return errors.New("session.timeoutMinutes must be > 0")
	}
	if c.Feedback.MinRating != 1 || c.Feedback.MaxRating != 5 {
		return errors.New("feedback rating bounds are fixed at [1,5]")
	}
	if c.Pipeline.TimeoutSec <= 0 {
		return errors.New("pipeline.timeoutSec must be > 0")
	}

	switch c.Pipeline.Provider {
	case "fallback", "openai", "mistral", "ollama", "anthropic":
	default:
		return fmt.Errorf("unsupported pipeline provider: %s", c.Pipeline.Provider)
	}
	switch c.Retrieval.Backend {
	case "none", "bleve", "milvus":
	default:
		return fmt.Errorf("unsupported retrieval backend: %s", c.Retrieval.Backend)
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}

	return nil
}

// applyProviderEnv fills the API key from the provider's conventional
// environment variable when none was configured explicitly.
func applyProviderEnv(p *PipelineConfig) {
	if p.APIKey != "" {
		return
	}

	var key string
	switch p.Provider {
	case "openai":
		key = "OPENAI_API_KEY"
	case "mistral":
		key = "MISTRAL_API_KEY"
	case "anthropic":
		key = "ANTHROPIC_API_KEY"
	default:
		return
	}

	v := viper.New()
	_ = v.BindEnv(key)
	p.APIKey = strings.TrimSpace(v.GetString(key))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxRequestsPerMinute", 60)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.isDevelopment", true)

	v.SetDefault("validation.minLength", 3)
	v.SetDefault("validation.maxLength", 1000)

	v.SetDefault("session.timeoutMinutes", 30)
	v.SetDefault("session.cleanupIntervalSeconds", 300)

	v.SetDefault("feedback.minRating", 1)
	v.SetDefault("feedback.maxRating", 5)

	v.SetDefault("pipeline.provider", "fallback")
	v.SetDefault("pipeline.model", "")
	v.SetDefault("pipeline.baseURL", "")
	v.SetDefault("pipeline.temperature", 0.2)
	v.SetDefault("pipeline.maxTokens", 1024)
	v.SetDefault("pipeline.timeoutSec", 90)
	v.SetDefault("pipeline.embeddingModel", "text-embedding-3-small")

	v.SetDefault("retrieval.backend", "bleve")
	v.SetDefault("retrieval.indexPath", "")
	v.SetDefault("retrieval.topK", 4)
	v.SetDefault("retrieval.seedPath", "./data/seed.yaml")

	v.SetDefault("milvus.endpoint", "localhost:19530")
	v.SetDefault("milvus.collectionName", "health_docs")
	v.SetDefault("milvus.vectorDim", 1536)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttlSeconds", 600)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("sqlite.enabled", true)
	v.SetDefault("sqlite.path", "./data/health_agents.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
