package rag

import (
	"fmt"
	"strings"
)

// ingredientTriggers mark queries that list what the user has on hand
// rather than naming a dish.
var ingredientTriggers = []string{
	"i have",
	"we have",
	"there is",
	"there are",
	"in the fridge",
	"in my fridge",
	"leftover",
	"use up",
	"what can i",
	"what should i",
}

// shortQueryWords is the word count at or below which a query is
// treated as a bare dish name.
const shortQueryWords = 5

// Rewrite expands user queries into explicit retrieval queries. Bare
// dish names and ingredient listings get dedicated templates; anything
// else falls back to a generic recipe-search template. The mapping is
// deterministic: the same input always produces the same output.
func Rewrite(query string) string {
	q := strings.TrimSpace(query)
	if q == "" {
		return q
	}
	lower := strings.ToLower(q)

	for _, trigger := range ingredientTriggers {
		if strings.Contains(lower, trigger) {
			return fmt.Sprintf(
				"Find recipes that use these ingredients: %s. Suggest matching dishes with brief cooking instructions.", q)
		}
	}

	if len(strings.Fields(q)) <= shortQueryWords && !strings.Contains(lower, "recipe") {
		return fmt.Sprintf(
			"Find the recipe for: %s. Include the full ingredient list and step-by-step instructions.", q)
	}

	return fmt.Sprintf("Find a cooking recipe for this request: %s", q)
}
