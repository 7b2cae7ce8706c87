package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldone-ai/assistant/internal/document"
	"github.com/welldone-ai/assistant/internal/index"
	"github.com/welldone-ai/assistant/internal/log"
	"github.com/welldone-ai/assistant/internal/provider"
)

type fakeEmbedder struct {
	calls   [][]string
	failOn  int // 1-based call number that fails; 0 never fails
	callNum int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.callNum++
	f.calls = append(f.calls, texts)
	if f.failOn == f.callNum {
		return nil, errors.New("embedding service unavailable")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i]))}
	}
	return vectors, nil
}

type fakeIndex struct {
	docs map[string]index.Document
	err  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]index.Document)}
}

func (f *fakeIndex) Upsert(_ context.Context, docs []index.Document) error {
	if f.err != nil {
		return f.err
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Complete(context.Context, string, []provider.Message) (string, error) {
	return f.response, f.err
}

type fakeLoader struct {
	chunks map[string][]document.Chunk
}

func (f *fakeLoader) Load(path string) []document.Chunk {
	return f.chunks[path]
}

type fakeTracker struct {
	marked map[string]time.Time
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{marked: make(map[string]time.Time)}
}

func (f *fakeTracker) Ingested(_ context.Context, source string, modTime time.Time) (bool, error) {
	t, ok := f.marked[source]
	return ok && t.Equal(modTime), nil
}

func (f *fakeTracker) Mark(_ context.Context, source string, modTime time.Time, _ int) error {
	f.marked[source] = modTime
	return nil
}

func chunksOf(source string, contents ...string) []document.Chunk {
	out := make([]document.Chunk, len(contents))
	for i, c := range contents {
		out[i] = document.Chunk{Content: c, Source: source, Index: i}
	}
	return out
}

func TestDocID_Deterministic(t *testing.T) {
	a := docID("beet soup with cabbage", "recipes/borscht.txt", 1, 0)
	b := docID("beet soup with cabbage", "recipes/borscht.txt", 1, 0)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "doc_"))
	assert.Len(t, a, len("doc_")+16)
}

func TestDocID_DistinguishesProvenance(t *testing.T) {
	base := docID("same content", "a.txt", 1, 0)
	assert.NotEqual(t, base, docID("same content", "b.txt", 1, 0))
	assert.NotEqual(t, base, docID("same content", "a.txt", 2, 0))
	assert.NotEqual(t, base, docID("same content", "a.txt", 1, 1))
	assert.NotEqual(t, base, docID("other content", "a.txt", 1, 0))
}

func TestDocID_LongContentFingerprint(t *testing.T) {
	head := strings.Repeat("a", 5000)
	tail := strings.Repeat("b", 5000)

	// Differences confined to the middle do not change the ID.
	long1 := head + strings.Repeat("x", 2000) + tail
	long2 := head + strings.Repeat("y", 2000) + tail
	assert.Equal(t,
		docID(long1, "big.txt", 0, 0),
		docID(long2, "big.txt", 0, 0))

	// Differences in the head do.
	long3 := "Z" + long1[1:]
	assert.NotEqual(t,
		docID(long1, "big.txt", 0, 0),
		docID(long3, "big.txt", 0, 0))
}

func TestIngestFile_StoresAllChunks(t *testing.T) {
	ld := &fakeLoader{chunks: map[string][]document.Chunk{
		"r.txt": chunksOf("r.txt", "chunk one tomato", "chunk two basil", "chunk three olive"),
	}}
	emb := &fakeEmbedder{}
	idx := newFakeIndex()

	eng := New(ld, emb, idx, nil, nil, Config{BatchSize: 2}, log.NewNop())
	report, err := eng.IngestFile(context.Background(), "r.txt")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Stored)
	assert.Zero(t, report.Failed)
	assert.Len(t, idx.docs, 3)

	// Batching: 3 chunks at batch size 2 means two embed calls.
	require.Len(t, emb.calls, 2)
	assert.Len(t, emb.calls[0], 2)
	assert.Len(t, emb.calls[1], 1)
}

func TestIngestFile_Idempotent(t *testing.T) {
	ld := &fakeLoader{chunks: map[string][]document.Chunk{
		"r.txt": chunksOf("r.txt", "stable chunk content"),
	}}
	idx := newFakeIndex()

	eng := New(ld, &fakeEmbedder{}, idx, nil, nil, Config{}, log.NewNop())
	_, err := eng.IngestFile(context.Background(), "r.txt")
	require.NoError(t, err)
	_, err = eng.IngestFile(context.Background(), "r.txt")
	require.NoError(t, err)

	assert.Len(t, idx.docs, 1, "re-ingesting identical content must not duplicate")
}

func TestIngestFile_EmptyFile(t *testing.T) {
	ld := &fakeLoader{chunks: map[string][]document.Chunk{}}
	eng := New(ld, &fakeEmbedder{}, newFakeIndex(), nil, nil, Config{}, log.NewNop())

	_, err := eng.IngestFile(context.Background(), "empty.txt")
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestIngestFile_FailedBatchIsIsolated(t *testing.T) {
	ld := &fakeLoader{chunks: map[string][]document.Chunk{
		"r.txt": chunksOf("r.txt", "one", "two", "three", "four"),
	}}
	emb := &fakeEmbedder{failOn: 1} // first batch fails, second succeeds
	idx := newFakeIndex()

	eng := New(ld, emb, idx, nil, nil, Config{BatchSize: 2}, log.NewNop())
	report, err := eng.IngestFile(context.Background(), "r.txt")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Stored)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, idx.docs, 2)
}

func TestIngestFile_NothingStored(t *testing.T) {
	ld := &fakeLoader{chunks: map[string][]document.Chunk{
		"r.txt": chunksOf("r.txt", "one", "two"),
	}}
	emb := &fakeEmbedder{failOn: 1} // the only batch fails

	eng := New(ld, emb, newFakeIndex(), nil, nil, Config{BatchSize: 2}, log.NewNop())
	report, err := eng.IngestFile(context.Background(), "r.txt")
	assert.ErrorIs(t, err, ErrNothingStored)
	assert.Zero(t, report.Stored)
	assert.Equal(t, 2, report.Failed)
}

func TestIngestFile_ChunkProvenanceMetadata(t *testing.T) {
	ld := &fakeLoader{chunks: map[string][]document.Chunk{
		"r.html": {{
			Content:  "braised short ribs with red wine",
			Source:   "r.html",
			Page:     2,
			Section:  "Mains",
			ImageRef: "https://example.com/ribs.jpg",
		}},
	}}
	idx := newFakeIndex()

	eng := New(ld, &fakeEmbedder{}, idx, nil, nil, Config{}, log.NewNop())
	_, err := eng.IngestFile(context.Background(), "r.html")
	require.NoError(t, err)

	require.Len(t, idx.docs, 1)
	for _, d := range idx.docs {
		assert.Equal(t, "r.html", d.Metadata["source"])
		assert.Equal(t, 2, d.Metadata["page"])
		assert.Equal(t, "Mains", d.Metadata["section"])
		assert.Equal(t, "https://example.com/ribs.jpg", d.Metadata["image_ref"])
	}
}

func TestIngestFile_EnrichmentFailureKeepsChunk(t *testing.T) {
	ld := &fakeLoader{chunks: map[string][]document.Chunk{
		"r.txt": chunksOf("r.txt", "tomato soup with fresh basil leaves"),
	}}
	idx := newFakeIndex()
	gen := &fakeGenerator{err: errors.New("model overloaded")}

	eng := New(ld, &fakeEmbedder{}, idx, gen, nil, Config{Enrich: true}, log.NewNop())
	report, err := eng.IngestFile(context.Background(), "r.txt")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stored)
	for _, d := range idx.docs {
		// Locally extracted keywords survive the enrichment failure.
		assert.NotEmpty(t, d.Metadata["keywords"])
		assert.NotContains(t, d.Metadata, "title")
	}
}

func TestIngestFile_EnrichmentMergesMetadata(t *testing.T) {
	ld := &fakeLoader{chunks: map[string][]document.Chunk{
		"r.txt": chunksOf("r.txt", "tomato soup with fresh basil leaves"),
	}}
	idx := newFakeIndex()
	gen := &fakeGenerator{response: "Here you go:\n```json\n" +
		`{"title":"Tomato Soup","category":"soup","difficulty":"easy","keywords":["tomato","soup"]}` +
		"\n```"}

	eng := New(ld, &fakeEmbedder{}, idx, gen, nil, Config{Enrich: true}, log.NewNop())
	_, err := eng.IngestFile(context.Background(), "r.txt")
	require.NoError(t, err)

	for _, d := range idx.docs {
		assert.Equal(t, "Tomato Soup", d.Metadata["title"])
		assert.Equal(t, "soup", d.Metadata["category"])
		keywords := d.Metadata["keywords"].([]string)
		assert.Contains(t, keywords, "tomato")
		assert.Contains(t, keywords, "basil")
	}
}

func TestIngestDirectory_SkipsIngestedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "soup.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o600))

	ld := &fakeLoader{chunks: map[string][]document.Chunk{
		path: chunksOf(path, "soup recipe content"),
	}}
	idx := newFakeIndex()
	tracker := newFakeTracker()

	eng := New(ld, &fakeEmbedder{}, idx, nil, tracker, Config{}, log.NewNop())

	report, err := eng.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Zero(t, report.Skipped)

	// Second run: unchanged file is skipped entirely.
	report, err = eng.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, report.Files)
	assert.Equal(t, 1, report.Skipped)
}

func TestIngestDirectory_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.png"), []byte("png"), 0o600))

	eng := New(&fakeLoader{}, &fakeEmbedder{}, newFakeIndex(), nil, nil, Config{}, log.NewNop())
	report, err := eng.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, report.Files)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounded by prose", `Sure! {"a":{"b":2}} Hope that helps.`, `{"a":{"b":2}}`},
		{"brace inside string", `{"a":"}"}`, `{"a":"}"}`},
		{"no object", "no json here", ""},
		{"unbalanced", `{"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}
