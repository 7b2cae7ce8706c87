package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks configuration validity and fails fast on errors.
// It verifies provider API keys, model names, chunking parameters and
// storage settings before any component is constructed.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateIngestion(); err != nil {
		return err
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateDelivery()
}

func (c *Config) validateProvider() error {
	switch c.Provider {
	case ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY or GOOGLE_API_KEY required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		// Local provider, no key required.
	default:
		return fmt.Errorf("%w: unknown provider %q (expected %q, %q or %q)",
			ErrInvalidModelName, c.Provider, ProviderGoogleAI, ProviderOllama, ProviderOpenAI)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedder)
	}
	if c.EmbedderDimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d",
			ErrInvalidEmbedder, c.EmbedderDimension)
	}
	if want, known := knownEmbedderDimensions[c.EmbedderModel]; known && want != c.EmbedderDimension {
		return fmt.Errorf("%w: %s produces %d-dimension vectors, configured dimension is %d",
			ErrInvalidEmbedder, c.EmbedderModel, want, c.EmbedderDimension)
	}
	return nil
}

// knownEmbedderDimensions maps common embedding models to their output
// width, so a mismatch with embedder_dimension fails at startup rather
// than on the first embedding call. Unknown models are not checked.
var knownEmbedderDimensions = map[string]int{
	"text-embedding-004":     768,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
}

func (c *Config) validateIngestion() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d",
			ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, chunk size %d)",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.BatchSize <= 0 || c.BatchSize > 100 {
		return fmt.Errorf("%w: batch size must be in [1, 100], got %d",
			ErrInvalidBatchSize, c.BatchSize)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d",
			ErrInvalidModelName, c.TopK)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("%w: history limit must be non-negative, got %d",
			ErrInvalidModelName, c.HistoryLimit)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgres)
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresUser == "" || c.PostgresDBName == "" {
		return fmt.Errorf("%w: user and database name are required", ErrInvalidPostgres)
	}
	if c.TrackerPath == "" {
		return fmt.Errorf("%w: tracker path is empty", ErrInvalidPostgres)
	}
	return nil
}

func (c *Config) validateDelivery() error {
	// Telegram enforces 4096 bytes per message; keep headroom for the
	// "Part i/N" prefix added during finalization.
	if c.MaxMessageLength < 100 || c.MaxMessageLength > 4096 {
		return fmt.Errorf("%w: max message length %d must be in [100, 4096]",
			ErrInvalidDelivery, c.MaxMessageLength)
	}
	if c.EditInterval <= 0 {
		return fmt.Errorf("%w: edit interval must be positive, got %s",
			ErrInvalidDelivery, c.EditInterval)
	}
	return nil
}
