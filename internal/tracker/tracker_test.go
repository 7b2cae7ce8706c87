package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldone-ai/assistant/internal/log"
)

func openTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := Open(filepath.Join(t.TempDir(), "tracker.db"), log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTracker_MarkAndCheck(t *testing.T) {
	tr := openTestTracker(t)
	ctx := context.Background()
	modTime := time.Now().Truncate(time.Second)

	ok, err := tr.Ingested(ctx, "recipes/borscht.txt", modTime)
	require.NoError(t, err)
	assert.False(t, ok, "unknown file must read as not ingested")

	require.NoError(t, tr.Mark(ctx, "recipes/borscht.txt", modTime, 4))

	ok, err = tr.Ingested(ctx, "recipes/borscht.txt", modTime)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTracker_ModifiedFileReadsAsNotIngested(t *testing.T) {
	tr := openTestTracker(t)
	ctx := context.Background()
	modTime := time.Now().Truncate(time.Second)

	require.NoError(t, tr.Mark(ctx, "recipes/soup.txt", modTime, 2))

	ok, err := tr.Ingested(ctx, "recipes/soup.txt", modTime.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_MarkOverwritesPreviousRecord(t *testing.T) {
	tr := openTestTracker(t)
	ctx := context.Background()
	first := time.Now().Add(-time.Hour).Truncate(time.Second)
	second := first.Add(time.Hour)

	require.NoError(t, tr.Mark(ctx, "recipes/pie.md", first, 3))
	require.NoError(t, tr.Mark(ctx, "recipes/pie.md", second, 5))

	ok, err := tr.Ingested(ctx, "recipes/pie.md", second)
	require.NoError(t, err)
	assert.True(t, ok)

	records, err := tr.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 5, records[0].Chunks)
}

func TestTracker_Forget(t *testing.T) {
	tr := openTestTracker(t)
	ctx := context.Background()
	modTime := time.Now().Truncate(time.Second)

	require.NoError(t, tr.Mark(ctx, "recipes/salad.txt", modTime, 1))
	require.NoError(t, tr.Forget(ctx, "recipes/salad.txt"))

	ok, err := tr.Ingested(ctx, "recipes/salad.txt", modTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_ReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.db")
	ctx := context.Background()
	modTime := time.Now().Truncate(time.Second)

	tr, err := Open(path, log.NewNop())
	require.NoError(t, err)
	require.NoError(t, tr.Mark(ctx, "recipes/stew.txt", modTime, 7))
	require.NoError(t, tr.Close())

	tr, err = Open(path, log.NewNop())
	require.NoError(t, err)
	defer func() { _ = tr.Close() }()

	ok, err := tr.Ingested(ctx, "recipes/stew.txt", modTime)
	require.NoError(t, err)
	assert.True(t, ok)
}
