package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/welldone-ai/assistant/internal/provider"
)

// enrichment is the structured metadata the model extracts per chunk.
type enrichment struct {
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Keywords   []string `json:"keywords"`
}

const enrichPrompt = `Analyze this recipe fragment and return a JSON object with fields:
"title" (dish name or empty string), "category" (soup, main, dessert, salad, drink or other),
"difficulty" (easy, medium, hard), "keywords" (up to 5 lowercase ingredient or technique words).
Return only the JSON object, no prose.

Fragment:
%s`

// enrich asks the model for structured metadata about a chunk. The
// model may wrap the JSON in a code fence or add stray text, so the
// response is parsed leniently.
func enrich(ctx context.Context, gen generator, content string) (*enrichment, error) {
	resp, err := gen.Complete(ctx, "", []provider.Message{
		{Role: "user", Content: fmt.Sprintf(enrichPrompt, content)},
	})
	if err != nil {
		return nil, fmt.Errorf("requesting enrichment: %w", err)
	}

	raw := extractJSON(resp)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in enrichment response")
	}

	var e enrichment
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("parsing enrichment response: %w", err)
	}
	return &e, nil
}

// extractJSON returns the first balanced {...} object in s, or "".
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
