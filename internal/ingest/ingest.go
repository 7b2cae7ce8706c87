// Package ingest turns source files into embedded, metadata-enriched
// documents in the vector index. IDs are derived from content, so
// running the same ingest twice leaves the index unchanged.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/welldone-ai/assistant/internal/document"
	"github.com/welldone-ai/assistant/internal/index"
	"github.com/welldone-ai/assistant/internal/keyword"
	"github.com/welldone-ai/assistant/internal/log"
	"github.com/welldone-ai/assistant/internal/provider"
)

// ErrNoChunks indicates a source produced no ingestible content.
var ErrNoChunks = errors.New("no chunks produced")

// ErrNothingStored indicates every batch of a file failed.
var ErrNothingStored = errors.New("no chunks stored")

// maxKeywords is the keyword count stored per chunk.
const maxKeywords = 5

// embedder produces embedding vectors for chunk batches.
type embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// vectorIndex persists embedded documents.
type vectorIndex interface {
	Upsert(ctx context.Context, docs []index.Document) error
}

// generator produces completions for metadata enrichment.
type generator interface {
	Complete(ctx context.Context, system string, messages []provider.Message) (string, error)
}

// loader reads a source file into chunks.
type loader interface {
	Load(path string) []document.Chunk
}

// ingestTracker memoizes which files were already ingested.
type ingestTracker interface {
	Ingested(ctx context.Context, source string, modTime time.Time) (bool, error)
	Mark(ctx context.Context, source string, modTime time.Time, chunks int) error
}

// Report summarizes an ingest run.
type Report struct {
	Files   int // files processed
	Skipped int // files skipped as already ingested
	Total   int // chunks produced
	Stored  int // chunks stored in the index
	Failed  int // chunks dropped by batch failures
}

// Config holds ingestion parameters.
type Config struct {
	BatchSize int  // chunks embedded per request
	Enrich    bool // ask the model for structured metadata
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
}

// Engine ingests documents into the vector index.
type Engine struct {
	loader  loader
	embed   embedder
	idx     vectorIndex
	gen     generator
	tracker ingestTracker
	cfg     Config
	logger  log.Logger
}

// New creates an ingest engine. gen and tracker may be nil to disable
// enrichment and re-ingest memoization. If logger is nil, the default
// logger is used.
func New(ld loader, embed embedder, idx vectorIndex, gen generator, tracker ingestTracker, cfg Config, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	cfg.applyDefaults()
	return &Engine{
		loader:  ld,
		embed:   embed,
		idx:     idx,
		gen:     gen,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
	}
}

// IngestFile loads, embeds and stores a single file.
func (e *Engine) IngestFile(ctx context.Context, path string) (Report, error) {
	chunks := e.loader.Load(path)
	if len(chunks) == 0 {
		return Report{Files: 1}, fmt.Errorf("%w: %s", ErrNoChunks, path)
	}

	report := Report{Files: 1, Total: len(chunks)}
	stored, failed := e.storeChunks(ctx, chunks)
	report.Stored = stored
	report.Failed = failed

	if report.Stored == 0 {
		return report, fmt.Errorf("%w: %s", ErrNothingStored, path)
	}

	e.logger.Info("file ingested",
		"path", path,
		"chunks", report.Total,
		"stored", report.Stored)
	return report, nil
}

// IngestDirectory walks root and ingests every supported file that was
// not already ingested at its current modification time. Individual
// file failures are logged and do not abort the walk.
func (e *Engine) IngestDirectory(ctx context.Context, root string) (Report, error) {
	var report Report

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !document.Supported(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			e.logger.Warn("skipping unstatable file", "path", path, "error", err)
			return nil
		}

		if e.tracker != nil {
			done, err := e.tracker.Ingested(ctx, path, info.ModTime())
			if err != nil {
				return fmt.Errorf("checking ingest state: %w", err)
			}
			if done {
				report.Skipped++
				return nil
			}
		}

		fileReport, err := e.IngestFile(ctx, path)
		report.Files += fileReport.Files
		report.Total += fileReport.Total
		report.Stored += fileReport.Stored
		report.Failed += fileReport.Failed
		if err != nil {
			e.logger.Warn("file not ingested", "path", path, "error", err)
			return nil
		}

		if e.tracker != nil {
			if err := e.tracker.Mark(ctx, path, info.ModTime(), fileReport.Total); err != nil {
				return fmt.Errorf("recording ingest state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walking %s: %w", root, err)
	}

	e.logger.Info("directory ingested",
		"root", root,
		"files", report.Files,
		"skipped", report.Skipped,
		"stored", report.Stored,
		"failed", report.Failed)
	return report, nil
}

// storeChunks embeds chunks in batches and upserts them. A failed batch
// is dropped and counted; later batches still proceed.
func (e *Engine) storeChunks(ctx context.Context, chunks []document.Chunk) (stored, failed int) {
	for start := 0; start < len(chunks); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		n, err := e.storeBatch(ctx, batch)
		stored += n
		if err != nil {
			failed += len(batch) - n
			e.logger.Warn("batch failed",
				"offset", start,
				"size", len(batch),
				"error", err)
		}
	}
	return stored, failed
}

func (e *Engine) storeBatch(ctx context.Context, batch []document.Chunk) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := e.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding batch: %w", err)
	}

	docs := make([]index.Document, len(batch))
	for i, c := range batch {
		docs[i] = index.Document{
			ID:        docID(c.Content, c.Source, c.Page, c.Index),
			Content:   c.Content,
			Embedding: vectors[i],
			Metadata:  e.buildMetadata(ctx, c),
		}
	}

	if err := e.idx.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("storing batch: %w", err)
	}
	return len(docs), nil
}

// buildMetadata assembles chunk metadata. Keywords are always extracted
// locally so filtering works even when model enrichment is off or
// fails; enrichment results extend, never gate, the metadata.
func (e *Engine) buildMetadata(ctx context.Context, c document.Chunk) map[string]any {
	meta := map[string]any{
		"source":   c.Source,
		"chunk":    c.Index,
		"keywords": keyword.Extract(c.Content, maxKeywords),
	}
	if c.Page > 0 {
		meta["page"] = c.Page
	}
	if c.Section != "" {
		meta["section"] = c.Section
	}
	if c.ImageRef != "" {
		meta["image_ref"] = c.ImageRef
	}

	if e.cfg.Enrich && e.gen != nil {
		enriched, err := enrich(ctx, e.gen, c.Content)
		if err != nil {
			e.logger.Debug("enrichment skipped", "source", c.Source, "chunk", c.Index, "error", err)
			return meta
		}
		if enriched.Title != "" {
			meta["title"] = enriched.Title
		}
		if enriched.Category != "" {
			meta["category"] = enriched.Category
		}
		if enriched.Difficulty != "" {
			meta["difficulty"] = enriched.Difficulty
		}
		if len(enriched.Keywords) > 0 {
			meta["keywords"] = mergeKeywords(meta["keywords"].([]string), enriched.Keywords)
		}
	}
	return meta
}

// mergeKeywords unions extracted and enriched keywords, extracted first,
// capped at maxKeywords * 2.
func mergeKeywords(extracted, enriched []string) []string {
	seen := make(map[string]bool, len(extracted)+len(enriched))
	merged := make([]string, 0, len(extracted)+len(enriched))
	for _, lists := range [][]string{extracted, enriched} {
		for _, k := range lists {
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, k)
		}
	}
	if len(merged) > maxKeywords*2 {
		merged = merged[:maxKeywords*2]
	}
	return merged
}
