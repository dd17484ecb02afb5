package memory

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ChunkConfig bounds the token-window chunker.
type ChunkConfig struct {
	TargetTokens  int
	OverlapTokens int
}

// approxTokens estimates token count by whitespace-separated word count,
// the cheap heuristic every chunk boundary in this package is measured by.
func approxTokens(s string) int {
	return len(strings.Fields(s))
}

// ChunkLines splits lines into overlapping token windows starting at
// startLineOffset (1-based line number of lines[0]).
func ChunkLines(path string, lines []string, startLineOffset int, cfg ChunkConfig, sourceDate string) []Chunk {
	if len(lines) == 0 {
		return nil
	}
	target := cfg.TargetTokens
	if target <= 0 {
		target = 512
	}
	overlap := cfg.OverlapTokens

	var chunks []Chunk
	i := 0
	for i < len(lines) {
		tokens := 0
		j := i
		for j < len(lines) {
			lineTokens := approxTokens(lines[j])
			if tokens > 0 && tokens+lineTokens > target {
				break
			}
			tokens += lineTokens
			j++
		}
		if j == i {
			j = i + 1 // a single oversized line still forms its own chunk
		}
		text := strings.Join(lines[i:j], "\n")
		chunks = append(chunks, Chunk{
			Path:       path,
			StartLine:  startLineOffset + i,
			EndLine:    startLineOffset + j - 1,
			Text:       text,
			SourceDate: sourceDate,
			Tokens:     approxTokens(text),
		})

		if j >= len(lines) {
			break
		}
		// step back by roughly overlap tokens worth of lines
		back := 0
		k := j - 1
		for k > i && back < overlap {
			back += approxTokens(lines[k])
			k--
		}
		next := k + 1
		if next <= i {
			next = j
		}
		i = next
	}
	return chunks
}

// ChunkMarkdown splits a Markdown document on heading boundaries (via
// goldmark's parser) before applying the token-window chunker within each
// section, so a chunk never straddles an unrelated heading when the
// section itself fits the target.
func ChunkMarkdown(path string, source []byte, cfg ChunkConfig, sourceDate string) []Chunk {
	reader := text.NewReader(source)
	doc := goldmark.New().Parser().Parse(reader)

	lineStarts := computeLineStarts(source)

	boundarySet := map[int]struct{}{0: {}}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			if lines := h.Lines(); lines.Len() > 0 {
				// The heading's segment starts at its text, after any "#"
				// marker; the section boundary is the start of that line.
				line := lineForOffset(lineStarts, lines.At(0).Start)
				boundarySet[lineStarts[line-1]] = struct{}{}
			}
		}
		return ast.WalkContinue, nil
	})
	boundarySet[len(source)] = struct{}{}

	boundaries := make([]int, 0, len(boundarySet))
	for b := range boundarySet {
		boundaries = append(boundaries, b)
	}
	sort.Ints(boundaries)

	var chunks []Chunk
	for i := 0; i < len(boundaries)-1; i++ {
		start, end := boundaries[i], boundaries[i+1]
		if start >= end {
			continue
		}
		section := string(source[start:end])
		lines := strings.Split(strings.TrimRight(section, "\n"), "\n")
		startLine := lineForOffset(lineStarts, start)
		chunks = append(chunks, ChunkLines(path, lines, startLine, cfg, sourceDate)...)
	}
	return chunks
}

func computeLineStarts(source []byte) []int {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' && i+1 < len(source) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineForOffset(lineStarts []int, offset int) int {
	idx := sort.Search(len(lineStarts), func(i int) bool { return lineStarts[i] > offset })
	return idx // lineStarts is 0-indexed by line, so idx == 1-based line number
}
