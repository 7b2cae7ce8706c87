package document

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/welldone-ai/assistant/internal/log"
)

// Loader reads source files and produces chunks ready for embedding.
// Unsupported or unreadable files yield no chunks; a warning is logged
// so a directory ingest never aborts on one bad file.
type Loader struct {
	splitter *Splitter
	logger   log.Logger
}

// NewLoader creates a loader with the given chunking parameters.
// If logger is nil, the default logger is used.
func NewLoader(chunkSize, chunkOverlap int, logger log.Logger) *Loader {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	return &Loader{
		splitter: NewSplitter(chunkSize, chunkOverlap),
		logger:   logger,
	}
}

// Supported reports whether the loader can handle the file extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	default:
		return false
	}
}

// Load reads path and returns its chunks. Page breaks (form feed) in
// plain text split the document into pages; HTML is reduced to article
// text first. Failures are logged and produce an empty result.
func (l *Loader) Load(path string) []Chunk {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("skipping unreadable file", "path", path, "error", err)
		return nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return l.chunkText(path, string(data), "", "")
	case ".html", ".htm":
		return l.loadHTML(path, data)
	default:
		l.logger.Warn("skipping unsupported file type", "path", path)
		return nil
	}
}

func (l *Loader) loadHTML(path string, data []byte) []Chunk {
	pageURL := &url.URL{Scheme: "file", Path: path}
	article, err := readability.FromReader(strings.NewReader(string(data)), pageURL)
	if err != nil {
		l.logger.Warn("skipping unparseable HTML", "path", path, "error", err)
		return nil
	}
	return l.chunkText(path, article.TextContent, article.Title, article.Image)
}

// chunkText splits text into pages on form feed, then chunks each page.
// A document without form feeds is a single unpaged document (Page 0).
func (l *Loader) chunkText(source, text, section, imageRef string) []Chunk {
	pages := strings.Split(text, "\f")
	paged := len(pages) > 1

	var chunks []Chunk
	for pageIdx, page := range pages {
		pageNum := 0
		if paged {
			pageNum = pageIdx + 1
		}
		for i, content := range l.splitter.Split(page) {
			chunks = append(chunks, Chunk{
				Content:  content,
				Source:   source,
				Page:     pageNum,
				Index:    i,
				Section:  section,
				ImageRef: imageRef,
			})
		}
	}

	l.logger.Debug("document loaded",
		"source", source,
		"pages", len(pages),
		"chunks", len(chunks))
	return chunks
}
