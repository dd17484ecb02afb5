// Package memory implements semantic retrieval over notes, chat logs, and
// optional filesystem listings: chunking, fingerprint-based sync, and
// cosine-similarity search against a vector store.
package memory

import "context"

// Chunk is one indexable unit of text, carrying enough span information to
// re-render its source window and to filter by date.
type Chunk struct {
	Path       string  `json:"path"`
	StartLine  int     `json:"startLine"`
	EndLine    int     `json:"endLine"`
	Text       string  `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
	SourceDate string  `json:"sourceDate,omitempty"`
	Tokens     int     `json:"tokens"`
}

// SearchFilters bounds a Search call.
type SearchFilters struct {
	K         int
	MinScore  float64
	DateFrom  string
	DateTo    string
	DateRange string
	// Timezone is the IANA zone DateRange shorthands are computed in.
	Timezone string
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Path      string
	StartLine int
	EndLine   int
	Snippet   string
	Score     float64
}

// Index is the key-value+vector store keyed by (path, chunk start line).
type Index interface {
	// Upsert writes or replaces the chunks for path, each identified by its
	// StartLine. Chunks arrive with Embedding already set; Upsert does not
	// embed.
	Upsert(ctx context.Context, path string, chunks []Chunk) error
	// DeleteByPrefix removes every chunk whose path has the given prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error
	// Search returns chunks ranked by cosine similarity to vector.
	Search(ctx context.Context, vector []float32, filters SearchFilters) ([]SearchResult, error)
	// Paths returns every distinct path currently indexed.
	Paths(ctx context.Context) ([]string, error)
}

// Embedder produces vectors for text, backed by a model.Client in practice.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
