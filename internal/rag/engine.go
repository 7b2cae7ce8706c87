// Package rag answers questions by retrieving relevant documents from
// the vector index and generating grounded responses, threading
// conversation history through multi-turn dialogs.
package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/welldone-ai/assistant/internal/conversation"
	"github.com/welldone-ai/assistant/internal/index"
	"github.com/welldone-ai/assistant/internal/keyword"
	"github.com/welldone-ai/assistant/internal/log"
	"github.com/welldone-ai/assistant/internal/provider"
)

// queryKeywords is the number of keywords extracted from a query to
// filter retrieval.
const queryKeywords = 5

// embedder embeds retrieval queries.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// vectorIndex searches stored documents.
type vectorIndex interface {
	Search(ctx context.Context, embedding []float32, opts ...index.SearchOption) ([]index.Match, error)
}

// conversations persists dialog turns.
type conversations interface {
	Create(ctx context.Context, userID string, metadata map[string]any) (*conversation.Conversation, error)
	Append(ctx context.Context, conversationID uuid.UUID, role, content string, metadata map[string]any) (*conversation.Message, error)
	History(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error)
}

// generator produces streamed completions.
type generator interface {
	Stream(ctx context.Context, system string, messages []provider.Message, stream provider.StreamFunc) (string, error)
}

// Config holds retrieval parameters.
type Config struct {
	TopK         int // matches retrieved per query
	HistoryLimit int // prior turns included in the prompt
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 5
	}
}

// Engine is the question answering pipeline.
type Engine struct {
	embed embedder
	idx   vectorIndex
	convs conversations
	gen   generator
	cfg   Config

	logger log.Logger
}

// New creates an engine. convs may be nil for single-shot use without
// conversation persistence. If logger is nil, the default logger is used.
func New(embed embedder, idx vectorIndex, convs conversations, gen generator, cfg Config, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	cfg.applyDefaults()
	return &Engine{
		embed:  embed,
		idx:    idx,
		convs:  convs,
		gen:    gen,
		cfg:    cfg,
		logger: logger,
	}
}

// Retrieve returns the documents most relevant to query. topK bounds
// the number of matches; zero or negative falls back to the configured
// default. The query is rewritten for retrieval, and matches are first
// narrowed by query keywords; if the keyword filter eliminates
// everything, it is dropped so a vocabulary mismatch cannot blank out
// retrieval.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) ([]index.Match, error) {
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	rewritten := Rewrite(query)
	if rewritten != query {
		e.logger.Debug("query rewritten", "original", query, "rewritten", rewritten)
	}

	embedding, err := e.embed.Embed(ctx, rewritten)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	keywords := keyword.Extract(query, queryKeywords)
	matches, err := e.idx.Search(ctx, embedding,
		index.WithTopK(topK), index.WithKeywords(keywords))
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	if len(matches) == 0 && len(keywords) > 0 {
		matches, err = e.idx.Search(ctx, embedding, index.WithTopK(topK))
		if err != nil {
			return nil, fmt.Errorf("searching index without keyword filter: %w", err)
		}
	}

	e.logger.Debug("documents retrieved",
		"query", query,
		"keywords", keywords,
		"matches", len(matches))
	return matches, nil
}

// QueryRequest describes a question to answer.
type QueryRequest struct {
	Query          string
	UserID         string
	UserName       string
	ConversationID uuid.UUID // Nil starts a new conversation
	IncludeHistory bool
}

// QueryResult is the outcome of an answered question.
type QueryResult struct {
	Answer         string
	ConversationID uuid.UUID
	Matches        []index.Match
}

// Query answers a question end to end: it resolves the conversation,
// records the user turn, retrieves context, generates the answer
// (streaming chunks to stream when non-nil) and records the assistant
// turn. The returned result carries the full accumulated answer.
func (e *Engine) Query(ctx context.Context, req QueryRequest, stream provider.StreamFunc) (QueryResult, error) {
	var result QueryResult

	convID := req.ConversationID
	if e.convs != nil {
		if convID == uuid.Nil {
			meta := map[string]any{}
			if req.UserName != "" {
				meta["user_name"] = req.UserName
			}
			conv, err := e.convs.Create(ctx, req.UserID, meta)
			if err != nil {
				return result, fmt.Errorf("creating conversation: %w", err)
			}
			convID = conv.ID
		}
		result.ConversationID = convID

		// The user turn is recorded before generation so a failed
		// generation still leaves the question in the log.
		if _, err := e.convs.Append(ctx, convID, conversation.RoleUser, req.Query, nil); err != nil {
			return result, fmt.Errorf("recording user message: %w", err)
		}
	}

	matches, err := e.Retrieve(ctx, req.Query, 0)
	if err != nil {
		return result, err
	}
	result.Matches = matches

	var history []conversation.Message
	if e.convs != nil && req.IncludeHistory {
		// The just-appended user turn is excluded; it is carried as the
		// final prompt message instead.
		all, err := e.convs.History(ctx, convID, e.cfg.HistoryLimit+1)
		if err != nil {
			return result, fmt.Errorf("loading history: %w", err)
		}
		if len(all) > 0 {
			history = all[:len(all)-1]
		}
	}

	// Two-message payload: the system persona and one user message
	// carrying name, flattened history, documents and the instruction.
	messages := []provider.Message{{
		Role: conversation.RoleUser,
		Content: userPrompt(req.UserName, flattenHistory(history),
			buildContext(matches), Rewrite(req.Query)),
	}}

	answer, err := e.gen.Stream(ctx, systemPrompt, messages, stream)
	if err != nil {
		return result, fmt.Errorf("generating answer: %w", err)
	}
	result.Answer = answer

	if e.convs != nil {
		if _, err := e.convs.Append(ctx, convID, conversation.RoleAssistant, answer, nil); err != nil {
			return result, fmt.Errorf("recording assistant message: %w", err)
		}
	}

	e.logger.Debug("query answered",
		"user_id", req.UserID,
		"conversation_id", result.ConversationID,
		"matches", len(matches),
		"answer_len", len(answer))
	return result, nil
}
