// Package provider adapts Genkit models to the narrow embedding and
// generation interfaces the rest of the application consumes.
// Supported providers: googleai (default), ollama, openai.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/welldone-ai/assistant/internal/config"
	"github.com/welldone-ai/assistant/internal/log"
)

// ErrNoEmbedding indicates the provider returned no embedding vectors.
var ErrNoEmbedding = errors.New("provider returned no embeddings")

// Provider bundles an initialized Genkit instance with the embedder and
// model name resolved for the configured backend.
type Provider struct {
	Genkit   *genkit.Genkit
	Embedder *Embedder
	Model    *Generator
}

// Setup initializes Genkit for the configured provider and resolves
// its embedder and chat model.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*Provider, error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}

	var g *genkit.Genkit
	var embedder ai.Embedder

	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; models are registered explicitly.
		plugin.DefineModel(g, ollama.ModelDefinition{Name: cfg.ModelName, Type: "chat"}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}

	if embedder == nil {
		return nil, fmt.Errorf("resolving embedder %q for provider %q",
			cfg.EmbedderModel, cfg.Provider)
	}

	logger.Debug("provider initialized",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel)

	return &Provider{
		Genkit:   g,
		Embedder: NewEmbedder(embedder, cfg.EmbedderDimension),
		Model: NewGenerator(g, GeneratorConfig{
			ModelName:   cfg.FullModelName(),
			Temperature: cfg.Temperature,
		}),
	}, nil
}
