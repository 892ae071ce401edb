package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Store     StoreConfig     `yaml:"store"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Index     IndexConfig     `yaml:"index"`
	Generator GeneratorConfig `yaml:"generator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type AppConfig struct {
	Addr          string        `yaml:"addr"`
	Environment   string        `yaml:"environment"`
	LogLevel      string        `yaml:"log_level"`
	LogFile       string        `yaml:"log_file"`
	JWTSecret     string        `yaml:"jwt_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookie  bool          `yaml:"secure_cookie"`
	AdminUsername string        `yaml:"admin_username"`
	AdminPassword string        `yaml:"admin_password"`
}

// StoreConfig selects where credentials and sessions live.
type StoreConfig struct {
	Credentials string `yaml:"credentials"` // memory | postgres
	Sessions    string `yaml:"sessions"`    // memory | redis
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisURL    string `yaml:"redis_url"`
}

type EmbedderConfig struct {
	Provider     string        `yaml:"provider"` // gemini | ollama
	Model        string        `yaml:"model"`
	Dimensions   int           `yaml:"dimensions"`
	GeminiAPIKey string        `yaml:"gemini_api_key"`
	OllamaURL    string        `yaml:"ollama_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

type IndexConfig struct {
	Provider     string        `yaml:"provider"` // qdrant | pgvector
	Collection   string        `yaml:"collection"`
	QdrantHost   string        `yaml:"qdrant_host"`
	QdrantPort   int           `yaml:"qdrant_port"`
	QdrantAPIKey string        `yaml:"qdrant_api_key"`
	QdrantTLS    bool          `yaml:"qdrant_tls"`
	TopK         int           `yaml:"top_k"`
	Timeout      time.Duration `yaml:"timeout"`
}

type GeneratorConfig struct {
	Provider     string        `yaml:"provider"` // gemini | ollama
	Model        string        `yaml:"model"`
	GeminiAPIKey string        `yaml:"gemini_api_key"`
	OllamaURL    string        `yaml:"ollama_url"`
	Persona      string        `yaml:"persona"`
	Timeout      time.Duration `yaml:"timeout"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Load builds the configuration from defaults, an optional YAML file named by
// PRIVACYX_CONFIG, and finally environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("no .env file found, using system environment variables")
	} else {
		logrus.Info(".env file loaded successfully")
	}

	cfg := Default()
	if path := os.Getenv("PRIVACYX_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
		logrus.WithField("path", path).Info("config file loaded")
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Addr:        ":8080",
			Environment: "development",
			LogLevel:    "info",
			SessionTTL:  24 * time.Hour,
		},
		Store: StoreConfig{
			Credentials: "memory",
			Sessions:    "memory",
			RedisURL:    "redis://localhost:6379/0",
		},
		Embedder: EmbedderConfig{
			Provider:  "gemini",
			Model:     "text-embedding-004",
			OllamaURL: "http://localhost:11434",
			Timeout:   10 * time.Second,
		},
		Index: IndexConfig{
			Provider:   "qdrant",
			Collection: "vdpo_documents",
			QdrantHost: "localhost",
			QdrantPort: 6334,
			TopK:       5,
			Timeout:    5 * time.Second,
		},
		Generator: GeneratorConfig{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash",
			OllamaURL: "http://localhost:11434",
			Timeout:   60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4318",
			ServiceName:  "privacyx",
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("APP_ADDR", &cfg.App.Addr)
	str("GO_ENV", &cfg.App.Environment)
	str("LOG_LEVEL", &cfg.App.LogLevel)
	str("LOG_FILE_PATH", &cfg.App.LogFile)
	str("JWT_SECRET", &cfg.App.JWTSecret)
	dur("SESSION_TTL", &cfg.App.SessionTTL)
	flag("SECURE_COOKIE", &cfg.App.SecureCookie)
	str("ADMIN_USERNAME", &cfg.App.AdminUsername)
	str("ADMIN_PASSWORD", &cfg.App.AdminPassword)

	str("CREDENTIAL_STORE", &cfg.Store.Credentials)
	str("SESSION_STORE", &cfg.Store.Sessions)
	str("DB_URL", &cfg.Store.PostgresDSN)
	str("REDIS_URL", &cfg.Store.RedisURL)

	// one key serves both Gemini backends unless overridden per backend
	if key, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
		cfg.Embedder.GeminiAPIKey = key
		cfg.Generator.GeminiAPIKey = key
	}
	str("EMBEDDING_PROVIDER", &cfg.Embedder.Provider)
	str("EMBEDDING_MODEL", &cfg.Embedder.Model)
	num("EMBEDDING_DIMENSIONS", &cfg.Embedder.Dimensions)
	str("EMBEDDING_OLLAMA_URL", &cfg.Embedder.OllamaURL)
	dur("EMBEDDING_TIMEOUT", &cfg.Embedder.Timeout)

	str("VECTOR_STORE", &cfg.Index.Provider)
	str("COLLECTION_NAME", &cfg.Index.Collection)
	str("QDRANT_HOST", &cfg.Index.QdrantHost)
	num("QDRANT_GRPC_PORT", &cfg.Index.QdrantPort)
	str("QDRANT_API_KEY", &cfg.Index.QdrantAPIKey)
	flag("QDRANT_USE_TLS", &cfg.Index.QdrantTLS)
	num("TOP_K", &cfg.Index.TopK)
	dur("SEARCH_TIMEOUT", &cfg.Index.Timeout)

	str("LLM_PROVIDER", &cfg.Generator.Provider)
	str("LLM_MODEL", &cfg.Generator.Model)
	str("LLM_OLLAMA_URL", &cfg.Generator.OllamaURL)
	str("LLM_PERSONA", &cfg.Generator.Persona)
	dur("LLM_TIMEOUT", &cfg.Generator.Timeout)

	flag("OTEL_ENABLED", &cfg.Telemetry.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("OTEL_SERVICE_NAME", &cfg.Telemetry.ServiceName)

	return errors.Join(errs...)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.App.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.App.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if !oneOf(c.Store.Credentials, "memory", "postgres") {
		errs = append(errs, fmt.Errorf("unknown credential store %q", c.Store.Credentials))
	}
	if !oneOf(c.Store.Sessions, "memory", "redis") {
		errs = append(errs, fmt.Errorf("unknown session store %q", c.Store.Sessions))
	}
	if (c.Store.Credentials == "postgres" || c.Index.Provider == "pgvector") && c.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("DB_URL is required for postgres backends"))
	}
	if !oneOf(c.Embedder.Provider, "gemini", "ollama") {
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedder.Provider))
	}
	if c.Embedder.Provider == "gemini" && c.Embedder.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini embedder"))
	}
	if !oneOf(c.Index.Provider, "qdrant", "pgvector") {
		errs = append(errs, fmt.Errorf("unknown vector store %q", c.Index.Provider))
	}
	if c.Index.TopK < 1 {
		errs = append(errs, fmt.Errorf("top_k must be at least 1, got %d", c.Index.TopK))
	}
	if !oneOf(c.Generator.Provider, "gemini", "ollama") {
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.Generator.Provider))
	}
	if c.Generator.Provider == "gemini" && c.Generator.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini llm"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
