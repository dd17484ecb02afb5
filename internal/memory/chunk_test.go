package memory_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/memory"
)

func TestChunkLinesSplitsAtTokenTarget(t *testing.T) {
	lines := make([]string, 40)
	for i := range lines {
		lines[i] = fmt.Sprintf("word%d word%d word%d word%d word%d", i, i, i, i, i)
	}

	chunks := memory.ChunkLines("notes.md", lines, 1, memory.ChunkConfig{TargetTokens: 50}, "2026-01-01")
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		require.LessOrEqual(t, c.Tokens, 50)
		require.Equal(t, "notes.md", c.Path)
		require.Equal(t, "2026-01-01", c.SourceDate)
	}
	require.Equal(t, 1, chunks[0].StartLine)
	require.Equal(t, 40, chunks[len(chunks)-1].EndLine)
}

func TestChunkLinesOverlapRepeatsTrailingLines(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = fmt.Sprintf("alpha%d beta%d gamma%d delta%d", i, i, i, i)
	}

	chunks := memory.ChunkLines("n.md", lines, 1, memory.ChunkConfig{TargetTokens: 20, OverlapTokens: 8}, "")
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		require.Less(t, chunks[i].StartLine, chunks[i-1].EndLine+1,
			"chunk %d should start before the previous chunk's end", i)
	}
}

func TestChunkLinesOversizedSingleLineStillChunks(t *testing.T) {
	huge := strings.Repeat("token ", 900)
	chunks := memory.ChunkLines("big.md", []string{huge}, 1, memory.ChunkConfig{TargetTokens: 100}, "")
	require.Len(t, chunks, 1)
	require.Equal(t, 1, chunks[0].StartLine)
	require.Equal(t, 1, chunks[0].EndLine)
}

func TestChunkMarkdownBreaksOnHeadings(t *testing.T) {
	source := []byte("# Setup\n\nInstall the tools.\n\n# Usage\n\nRun the binary.\n")
	chunks := memory.ChunkMarkdown("README.md", source, memory.ChunkConfig{TargetTokens: 512}, "2026-01-01")
	require.Len(t, chunks, 2)

	require.Contains(t, chunks[0].Text, "Install the tools.")
	require.NotContains(t, chunks[0].Text, "Run the binary.")
	require.Contains(t, chunks[1].Text, "Run the binary.")
	require.Equal(t, 1, chunks[0].StartLine)
	require.Equal(t, 5, chunks[1].StartLine)
}

func TestChunkMarkdownEmptyInput(t *testing.T) {
	require.Empty(t, memory.ChunkMarkdown("empty.md", nil, memory.ChunkConfig{}, ""))
}
