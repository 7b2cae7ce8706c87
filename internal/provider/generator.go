package provider

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Message is a chat turn passed to the model.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// StreamFunc receives incremental text chunks during generation.
// Returning an error aborts the generation.
type StreamFunc func(ctx context.Context, chunk string) error

// GeneratorConfig holds model selection and sampling parameters.
type GeneratorConfig struct {
	ModelName   string
	Temperature float32
}

// Generator produces chat completions through Genkit.
type Generator struct {
	g   *genkit.Genkit
	cfg GeneratorConfig
}

// NewGenerator creates a generator bound to a model.
func NewGenerator(g *genkit.Genkit, cfg GeneratorConfig) *Generator {
	return &Generator{g: g, cfg: cfg}
}

// Complete generates a full response without streaming.
func (gen *Generator) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	return gen.generate(ctx, system, messages, nil)
}

// Stream generates a response, delivering chunks to stream as they
// arrive, and returns the complete accumulated text.
func (gen *Generator) Stream(ctx context.Context, system string, messages []Message, stream StreamFunc) (string, error) {
	return gen.generate(ctx, system, messages, stream)
}

func (gen *Generator) generate(ctx context.Context, system string, messages []Message, stream StreamFunc) (string, error) {
	aiMessages := make([]*ai.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			aiMessages = append(aiMessages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			aiMessages = append(aiMessages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(gen.cfg.ModelName),
		ai.WithMessages(aiMessages...),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: float64(gen.cfg.Temperature)}),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}
	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return stream(ctx, chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, gen.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}
	return resp.Text(), nil
}
