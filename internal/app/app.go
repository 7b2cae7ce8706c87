// Package app wires the application together: configuration, storage,
// model provider and the ingestion and question answering engines.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldone-ai/assistant/internal/config"
	"github.com/welldone-ai/assistant/internal/conversation"
	"github.com/welldone-ai/assistant/internal/delivery"
	"github.com/welldone-ai/assistant/internal/document"
	"github.com/welldone-ai/assistant/internal/index"
	"github.com/welldone-ai/assistant/internal/ingest"
	"github.com/welldone-ai/assistant/internal/log"
	"github.com/welldone-ai/assistant/internal/postgres"
	"github.com/welldone-ai/assistant/internal/provider"
	"github.com/welldone-ai/assistant/internal/rag"
	"github.com/welldone-ai/assistant/internal/tracker"
)

// App bundles the initialized components.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool          *pgxpool.Pool
	Index         *index.Store
	Conversations *conversation.Store
	Tracker       *tracker.Tracker
	Provider      *provider.Provider

	Ingest *ingest.Engine
	RAG    *rag.Engine
}

// Setup initializes the application. On error, everything already
// initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	pool, err := postgres.Connect(ctx, cfg.ConnString(), logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	a.Pool = pool

	a.Index = index.New(pool, cfg.EmbedderDimension, logger)
	a.Conversations = conversation.New(pool, cfg.ConversationTTL, logger)

	tr, err := tracker.Open(cfg.TrackerPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening ingest tracker: %w", err)
	}
	a.Tracker = tr

	prov, err := provider.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing AI provider: %w", err)
	}
	a.Provider = prov

	loader := document.NewLoader(cfg.ChunkSize, cfg.ChunkOverlap, logger)

	a.Ingest = ingest.New(loader, prov.Embedder, a.Index, prov.Model, tr,
		ingest.Config{BatchSize: cfg.BatchSize, Enrich: cfg.Enrich}, logger)

	a.RAG = rag.New(prov.Embedder, a.Index, a.Conversations, prov.Model,
		rag.Config{TopK: cfg.TopK, HistoryLimit: cfg.HistoryLimit}, logger)

	return a, nil
}

// DeliveryConfig returns the delivery limits from configuration.
func (a *App) DeliveryConfig() delivery.Config {
	return delivery.Config{
		MaxLength:    a.Config.MaxMessageLength,
		EditInterval: a.Config.EditInterval,
	}
}

// Close releases held resources.
func (a *App) Close() {
	if a.Tracker != nil {
		if err := a.Tracker.Close(); err != nil {
			a.Logger.Warn("closing tracker", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
