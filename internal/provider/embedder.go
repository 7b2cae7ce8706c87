package provider

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// Embedder converts text into embedding vectors via a Genkit embedder.
type Embedder struct {
	embedder  ai.Embedder
	dimension int
}

// NewEmbedder wraps a Genkit embedder. dimension is the expected vector
// width, verified on every response.
func NewEmbedder(embedder ai.Embedder, dimension int) *Embedder {
	return &Embedder{embedder: embedder, dimension: dimension}
}

// Dimension returns the embedding width.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed returns the embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request. The result preserves input
// order: vectors[i] corresponds to texts[i].
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts",
			ErrNoEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != e.dimension {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d",
				i, len(emb.Embedding), e.dimension)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}
