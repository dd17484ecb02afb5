package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/state"
)

// fakeIndex is an in-memory Index that applies the same score/date
// filtering contract the qdrant-backed store does.
type fakeIndex struct {
	chunks  map[string][]Chunk // keyed by upsert path
	upserts int
	deletes []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{chunks: map[string][]Chunk{}}
}

func (f *fakeIndex) Upsert(ctx context.Context, path string, chunks []Chunk) error {
	f.upserts++
	f.chunks[path] = append(f.chunks[path], chunks...)
	return nil
}

func (f *fakeIndex) DeleteByPrefix(ctx context.Context, prefix string) error {
	f.deletes = append(f.deletes, prefix)
	for key := range f.chunks {
		if strings.HasPrefix(key, prefix) {
			delete(f.chunks, key)
		}
	}
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, filters SearchFilters) ([]SearchResult, error) {
	var out []SearchResult
	for _, chunks := range f.chunks {
		for _, c := range chunks {
			if !dateInRange(c.SourceDate, filters) {
				continue
			}
			out = append(out, SearchResult{
				Path:      c.Path,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
				Snippet:   c.Text,
				Score:     0.9,
			})
		}
	}
	return out, nil
}

func (f *fakeIndex) Paths(ctx context.Context) ([]string, error) {
	var paths []string
	for key := range f.chunks {
		paths = append(paths, key)
	}
	return paths, nil
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func newTestService(t *testing.T) (*Service, *fakeIndex, *fakeEmbedder, state.Paths) {
	t.Helper()
	paths := state.Paths{Root: t.TempDir()}
	require.NoError(t, paths.EnsureAll())

	index := newFakeIndex()
	embedder := &fakeEmbedder{}
	svc, err := NewService(nil, paths, index, embedder, Config{
		ChunkConfig: ChunkConfig{TargetTokens: 100, OverlapTokens: 10},
	})
	require.NoError(t, err)
	return svc, index, embedder, paths
}

func TestSyncIsIdempotentWhenSourcesUnchanged(t *testing.T) {
	svc, index, _, paths := newTestService(t)
	notePath := filepath.Join(paths.NotesDir(), "MEMORY.md")
	require.NoError(t, os.WriteFile(notePath, []byte("# Preferences\n\nUser prefers dark mode.\n"), 0o644))

	ctx := context.Background()
	require.NoError(t, svc.Sync(ctx))
	firstUpserts := index.upserts
	require.Positive(t, firstUpserts)

	require.NoError(t, svc.Sync(ctx))
	require.Equal(t, firstUpserts, index.upserts, "second sync with unchanged sources must upsert nothing")
}

func TestSyncReindexesChangedNoteAndDropsRemovedNote(t *testing.T) {
	svc, index, _, paths := newTestService(t)
	notePath := filepath.Join(paths.NotesDir(), "MEMORY.md")
	require.NoError(t, os.WriteFile(notePath, []byte("first version\n"), 0o644))

	ctx := context.Background()
	require.NoError(t, svc.Sync(ctx))
	afterFirst := index.upserts

	// mtime granularity is one second on some filesystems; force a change
	// the fingerprint sees.
	require.NoError(t, os.WriteFile(notePath, []byte("second version, now longer\n"), 0o644))
	require.NoError(t, os.Chtimes(notePath, time.Now(), time.Now().Add(2*time.Second)))
	require.NoError(t, svc.Sync(ctx))
	require.Greater(t, index.upserts, afterFirst)

	require.NoError(t, os.Remove(notePath))
	require.NoError(t, svc.Sync(ctx))
	require.Empty(t, index.chunks["MEMORY.md"])
}

func TestSyncTailsChatLogsIncrementally(t *testing.T) {
	svc, _, embedder, paths := newTestService(t)
	logPath := filepath.Join(paths.ChatLogDir(), "2026-02-01.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(logPath), 0o755))
	require.NoError(t, os.WriteFile(logPath, []byte(`{"user":"hi","assistant":"hello"}`+"\n"), 0o644))

	ctx := context.Background()
	require.NoError(t, svc.Sync(ctx))
	afterFirst := embedder.calls

	// appending must re-chunk only the new tail, not re-embed the old lines
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"user":"more","assistant":"sure"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, svc.Sync(ctx))
	require.Equal(t, afterFirst+1, embedder.calls)

	require.NoError(t, svc.Sync(ctx))
	require.Equal(t, afterFirst+1, embedder.calls, "no new lines means no new embeddings")
}

func TestSearchFiltersByDateRangeInUserTimezone(t *testing.T) {
	svc, index, _, paths := newTestService(t)

	// the chunk's source still has to exist for the staleness filter
	notePath := filepath.Join(paths.NotesDir(), "memory")
	require.NoError(t, os.MkdirAll(notePath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(notePath, "note.md"), []byte("x\n"), 0o644))

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	index.chunks["memory/note.md"] = []Chunk{
		{Path: "memory/note.md", StartLine: 1, EndLine: 1, Text: "fresh", SourceDate: yesterday},
		{Path: "memory/note.md", StartLine: 2, EndLine: 2, Text: "stale", SourceDate: "2025-02-15"},
	}

	results, err := svc.Search(context.Background(), "anything", SearchFilters{
		K: 10, DateRange: "yesterday", Timezone: "UTC",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "fresh", results[0].Snippet)
}

func TestSearchDropsResultsWhoseSourceDisappeared(t *testing.T) {
	svc, index, _, _ := newTestService(t)
	index.chunks["gone.md"] = []Chunk{
		{Path: "gone.md", StartLine: 1, EndLine: 1, Text: "orphan"},
	}

	results, err := svc.Search(context.Background(), "anything", SearchFilters{K: 10})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestReadFileReturnsRequestedWindowAndRefusesFilesystemPaths(t *testing.T) {
	svc, _, _, paths := newTestService(t)
	notePath := filepath.Join(paths.NotesDir(), "MEMORY.md")
	require.NoError(t, os.WriteFile(notePath, []byte("one\ntwo\nthree\nfour\n"), 0o644))

	window, err := svc.ReadFile("MEMORY.md", 2, 2)
	require.NoError(t, err)
	require.Equal(t, "two\nthree", window)

	_, err = svc.ReadFile("filesystem/home/user", 1, 1)
	require.Error(t, err)
}
