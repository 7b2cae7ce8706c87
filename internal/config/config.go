// Package config provides application configuration with multi-source priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables
//  2. Config file (~/.welldone/config.yaml)
//  3. Default values
//
// Categories:
//   - AI: chat model, embedder model and dimension
//   - Storage: PostgreSQL (vector index + conversation log), SQLite (tracker)
//   - Ingestion: chunking and batching parameters
//   - Retrieval: top-k and history window
//   - Delivery: Telegram token, message length ceiling, edit throttle
//
// Sensitive values (Postgres password, bot token) are masked in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the chat model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedder indicates the embedder model or dimension is invalid.
	ErrInvalidEmbedder = errors.New("invalid embedder")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking")

	// ErrInvalidBatchSize indicates the embedding batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidPostgres indicates the PostgreSQL connection settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL settings")

	// ErrInvalidDelivery indicates delivery limits are out of range.
	ErrInvalidDelivery = errors.New("invalid delivery settings")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
)

const (
	// DefaultEmbedderModel is the default embedding model.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultEmbedderDimension is the vector width text-embedding-004
	// produces. It must match the pgvector column width provisioned by
	// the migrations; changing either requires re-provisioning the index.
	DefaultEmbedderDimension = 768

	// DefaultHistoryLimit is the conversation window flattened into prompts.
	DefaultHistoryLimit = 5
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON; update it when
// adding new secrets.
type Config struct {
	// AI provider and model configuration
	Provider          string  `mapstructure:"provider" json:"provider"` // "googleai" (default), "ollama", "openai"
	ModelName         string  `mapstructure:"model_name" json:"model_name"`
	Temperature       float32 `mapstructure:"temperature" json:"temperature"`
	EmbedderModel     string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int     `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	OllamaHost        string  `mapstructure:"ollama_host" json:"ollama_host"`

	// Ingestion configuration
	ChunkSize    int  `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int  `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	BatchSize    int  `mapstructure:"batch_size" json:"batch_size"`
	Enrich       bool `mapstructure:"enrich" json:"enrich"`

	// Retrieval configuration
	TopK         int `mapstructure:"top_k" json:"top_k"`
	HistoryLimit int `mapstructure:"history_limit" json:"history_limit"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
	TrackerPath      string `mapstructure:"tracker_path" json:"tracker_path"`

	// Conversation log
	ConversationTTL time.Duration `mapstructure:"conversation_ttl" json:"conversation_ttl"`

	// Delivery configuration
	TelegramToken    string        `mapstructure:"telegram_token" json:"telegram_token"` // SENSITIVE
	MaxMessageLength int           `mapstructure:"max_message_length" json:"max_message_length"`
	EditInterval     time.Duration `mapstructure:"edit_interval" json:"edit_interval"`
}

// Load loads configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".welldone")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", ProviderGoogleAI)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)
	viper.SetDefault("batch_size", 10)
	viper.SetDefault("enrich", true)

	viper.SetDefault("top_k", 3)
	viper.SetDefault("history_limit", DefaultHistoryLimit)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "welldone")
	viper.SetDefault("postgres_password", "welldone_dev_password")
	viper.SetDefault("postgres_db_name", "welldone")
	viper.SetDefault("postgres_ssl_mode", "disable")
	viper.SetDefault("tracker_path", filepath.Join("data", "tracker.db"))

	viper.SetDefault("conversation_ttl", 30*24*time.Hour)

	viper.SetDefault("max_message_length", 4000)
	viper.SetDefault("edit_interval", 500*time.Millisecond)
}

// bindEnvVariables binds secrets and runtime overrides explicitly instead of
// viper.AutomaticEnv, so the accepted environment surface stays auditable.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("telegram_token", "TELEGRAM_BOT_TOKEN")
	mustBind("postgres_password", "WELLDONE_POSTGRES_PASSWORD")
	mustBind("provider", "WELLDONE_PROVIDER")
	mustBind("model_name", "WELLDONE_MODEL_NAME")
	mustBind("tracker_path", "WELLDONE_TRACKER_PATH")

	// NOTE: GEMINI_API_KEY / OPENAI_API_KEY are read directly by the Genkit
	// plugins, not via viper; Validate() only checks their presence.
}

// ConnString builds a pgx connection string from the Postgres settings.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// FullModelName returns the provider-qualified model name for Genkit.
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked to prevent substring matching against the visible fragments.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.TelegramToken = maskSecret(a.TelegramToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
