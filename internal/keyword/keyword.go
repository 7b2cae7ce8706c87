// Package keyword extracts simple frequency-based keywords used to
// filter vector search results. Both ingestion and retrieval use the
// same extraction so stored and queried keywords share a vocabulary.
package keyword

import (
	"regexp"
	"sort"
	"strings"
)

// wordPattern matches words of at least four letters in any script, the
// minimum length that skips articles, prepositions and pronouns.
var wordPattern = regexp.MustCompile(`\p{L}{4,}`)

// Extract returns up to max keywords from text, ordered by descending
// frequency with ties broken alphabetically for determinism.
func Extract(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		counts[word]++
	}
	if len(counts) == 0 {
		return nil
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > max {
		words = words[:max]
	}
	return words
}
