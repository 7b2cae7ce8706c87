// Package index stores document chunks with their embeddings in
// PostgreSQL and retrieves them by cosine similarity, optionally
// filtered by metadata keywords.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/welldone-ai/assistant/internal/log"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrDimensionMismatch indicates an embedding does not match the
	// index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DB is the database access the store needs. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Document is a stored chunk with its embedding and metadata.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]any
}

// Match is a search hit with its cosine similarity in [0, 1].
type Match struct {
	ID         string
	Content    string
	Metadata   map[string]any
	Similarity float64
}

// Stats summarizes index contents.
type Stats struct {
	Documents int64
	Sources   int64
}

// Store persists documents in a pgvector-backed table.
type Store struct {
	db        DB
	dimension int
	logger    log.Logger
}

// New creates a store. dimension is the embedding width enforced on
// writes. If logger is nil, the default logger is used.
func New(db DB, dimension int, logger log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	return &Store{db: db, dimension: dimension, logger: logger}
}

// Upsert inserts documents, replacing content, embedding and metadata
// of documents whose IDs already exist.
func (s *Store) Upsert(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		if len(doc.Embedding) != s.dimension {
			return fmt.Errorf("%w: document %s has %d dimensions, index expects %d",
				ErrDimensionMismatch, doc.ID, len(doc.Embedding), s.dimension)
		}
	}

	for _, doc := range docs {
		_, err := s.db.Exec(ctx, `
			INSERT INTO documents (id, content, embedding, metadata)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				content    = EXCLUDED.content,
				embedding  = EXCLUDED.embedding,
				metadata   = EXCLUDED.metadata,
				updated_at = now()`,
			doc.ID, doc.Content, pgvector.NewVector(doc.Embedding), doc.Metadata)
		if err != nil {
			return fmt.Errorf("upserting document %s: %w", doc.ID, err)
		}
	}

	s.logger.Debug("documents upserted", "count", len(docs))
	return nil
}

// SearchOption adjusts a search.
type SearchOption func(*SearchParams)

// SearchParams is the resolved set of search options.
type SearchParams struct {
	TopK     int
	Keywords []string
}

// ApplySearchOptions resolves options onto defaults. Exposed so
// alternate index implementations can honor the same options.
func ApplySearchOptions(opts ...SearchOption) SearchParams {
	params := SearchParams{TopK: 3}
	for _, opt := range opts {
		opt(&params)
	}
	return params
}

// WithTopK sets the number of matches returned. Default is 3.
func WithTopK(k int) SearchOption {
	return func(p *SearchParams) {
		if k > 0 {
			p.TopK = k
		}
	}
}

// WithKeywords restricts matches to documents whose metadata keywords
// overlap the given set. An empty set applies no filter.
func WithKeywords(keywords []string) SearchOption {
	return func(p *SearchParams) { p.Keywords = keywords }
}

// Search returns the documents nearest to embedding by cosine
// similarity, most similar first.
func (s *Store) Search(ctx context.Context, embedding []float32, opts ...SearchOption) ([]Match, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}

	params := ApplySearchOptions(opts...)

	var filter any // nil disables the keyword predicate
	if len(params.Keywords) > 0 {
		filter = params.Keywords
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE $2::text[] IS NULL OR metadata -> 'keywords' ?| $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(embedding), filter, params.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Content, &m.Metadata, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}

	s.logger.Debug("search completed",
		"top_k", params.TopK,
		"keywords", len(params.Keywords),
		"matches", len(matches))
	return matches, nil
}

// Get returns a single document by ID.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	var vec pgvector.Vector
	err := s.db.QueryRow(ctx, `
		SELECT id, content, embedding, metadata FROM documents WHERE id = $1`,
		id).Scan(&doc.ID, &doc.Content, &vec, &doc.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", id, err)
	}
	doc.Embedding = vec.Slice()
	return &doc, nil
}

// Delete removes documents by ID. Missing IDs are not an error.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	s.logger.Debug("documents deleted", "requested", len(ids), "deleted", tag.RowsAffected())
	return nil
}

// DeleteBySource removes all documents ingested from a source.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE metadata ->> 'source' = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("deleting documents for source %s: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// Clear removes every document from the index.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `TRUNCATE documents`); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	s.logger.Debug("index cleared")
	return nil
}

// Stats reports document and distinct source counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT metadata ->> 'source') FROM documents`).
		Scan(&st.Documents, &st.Sources)
	if err != nil {
		return Stats{}, fmt.Errorf("reading index stats: %w", err)
	}
	return st, nil
}
