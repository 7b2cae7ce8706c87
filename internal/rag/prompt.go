package rag

import (
	"fmt"
	"strings"

	"github.com/welldone-ai/assistant/internal/conversation"
	"github.com/welldone-ai/assistant/internal/index"
)

// systemPrompt sets the assistant persona and grounding rules.
const systemPrompt = `You are WellDone, a friendly cooking assistant.
Answer questions about recipes and cooking using ONLY the provided context documents.
If the context does not contain the answer, say so honestly instead of inventing one.
When you use a document, mention its source so the user can look it up.
Keep answers practical: ingredients first, then numbered steps. Answer in the user's language.`

// buildContext renders retrieved matches into the numbered document
// block the model is instructed to cite from.
func buildContext(matches []index.Match) string {
	if len(matches) == 0 {
		return "No relevant documents were found."
	}

	var b strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&b, "[Document %d]", i+1)
		if src, ok := m.Metadata["source"].(string); ok && src != "" {
			fmt.Fprintf(&b, " Source: %s", src)
		}
		if page, ok := numericMeta(m.Metadata["page"]); ok {
			fmt.Fprintf(&b, ", Page: %d", page)
		}
		if section, ok := m.Metadata["section"].(string); ok && section != "" {
			fmt.Fprintf(&b, ", Section: %s", section)
		}
		b.WriteString("\n")
		b.WriteString(m.Content)
		if i < len(matches)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// numericMeta reads a number out of JSON-roundtripped metadata, where
// integers come back as float64.
func numericMeta(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// flattenHistory renders prior turns into a conversation-context block.
func flattenHistory(messages []conversation.Message) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range messages {
		label := "User"
		switch m.Role {
		case conversation.RoleAssistant:
			label = "Assistant"
		case conversation.RoleSystem:
			label = "System"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// userPrompt assembles the single user message: display name,
// conversation context, numbered documents, then the task instruction.
func userPrompt(userName, history, contextBlock, instruction string) string {
	var b strings.Builder
	if userName != "" {
		fmt.Fprintf(&b, "User: %s\n\n", userName)
	}
	if history != "" {
		fmt.Fprintf(&b, "Previous conversation:\n%s\n\n", history)
	}
	fmt.Fprintf(&b, "Context documents:\n\n%s\n\n", contextBlock)
	fmt.Fprintf(&b, "Task: %s", instruction)
	return b.String()
}
