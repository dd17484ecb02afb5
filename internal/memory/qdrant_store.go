package memory

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/mooassistant/moo/internal/merrors"
)

// QdrantStore is an Index backed by a qdrant collection, one point per
// chunk, keyed by a deterministic UUID derived from (path, start line) so
// re-indexing a path overwrites its previous chunks in place.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

// NewQdrantStore connects to baseURL and ensures collection exists with the
// given vector dimension, creating it with cosine distance if absent.
func NewQdrantStore(log *slog.Logger, baseURL, apiKey, collection string, dimension int) (*QdrantStore, error) {
	if log == nil {
		log = slog.Default()
	}
	host, port, useTLS, err := parseQdrantEndpoint(baseURL)
	if err != nil {
		return nil, merrors.NewStoreError("memory_index", err)
	}
	if collection == "" {
		collection = "memory"
	}
	if dimension <= 0 {
		dimension = 1536
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, APIKey: apiKey, UseTLS: useTLS})
	if err != nil {
		return nil, merrors.NewStoreError("memory_index", err)
	}

	store := &QdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
		logger:     log.With(slog.String("store", "qdrant")),
	}

	ctx := context.Background()
	if err := store.ensureCollection(ctx); err != nil {
		return nil, merrors.NewStoreError("memory_index", err)
	}
	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// chunkPointID derives a stable point id from a chunk's own span so that
// re-upserting unchanged content is idempotent and tailing a growing file
// (new chunks, same path) never collides with previously written chunks.
func chunkPointID(path string, startLine int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", path, startLine))).String()
}

// Upsert implements Index.
func (s *QdrantStore) Upsert(ctx context.Context, path string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload, err := qdrant.TryValueMap(map[string]any{
			"path":       c.Path,
			"startLine":  c.StartLine,
			"endLine":    c.EndLine,
			"text":       c.Text,
			"sourceDate": c.SourceDate,
			"tokens":     c.Tokens,
		})
		if err != nil {
			return merrors.NewStoreError("memory_index", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunkPointID(path, c.StartLine)),
			Vectors: qdrant.NewVectorsDense(c.Embedding),
			Payload: payload,
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return merrors.NewStoreError("memory_index", err)
	}
	return nil
}

// DeleteByPrefix implements Index. qdrant has no native prefix filter on a
// payload string, so this scrolls the collection and deletes client-side
// matches by id; acceptable at this index's scale (a personal assistant's
// notes/chat-log/filesystem corpus, not a multi-tenant store).
func (s *QdrantStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	scrolled, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(10000)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return merrors.NewStoreError("memory_index", err)
	}

	var ids []*qdrant.PointId
	for _, p := range scrolled {
		path := stringField(p.GetPayload(), "path")
		if strings.HasPrefix(path, prefix) {
			ids = append(ids, p.GetId())
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorIDs(ids),
	})
	if err != nil {
		return merrors.NewStoreError("memory_index", err)
	}
	return nil
}

// Search implements Index.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, filters SearchFilters) ([]SearchResult, error) {
	limit := filters.K
	if limit <= 0 {
		limit = 10
	}
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, merrors.NewStoreError("memory_index", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		score := float64(r.GetScore())
		if score < filters.MinScore {
			continue
		}
		payload := r.GetPayload()
		sourceDate := stringField(payload, "sourceDate")
		if !dateInRange(sourceDate, filters) {
			continue
		}
		out = append(out, SearchResult{
			Path:      stringField(payload, "path"),
			StartLine: intField(payload, "startLine"),
			EndLine:   intField(payload, "endLine"),
			Snippet:   stringField(payload, "text"),
			Score:     score,
		})
	}
	return out, nil
}

// Paths implements Index.
func (s *QdrantStore) Paths(ctx context.Context) ([]string, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(10000)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, merrors.NewStoreError("memory_index", err)
	}
	seen := map[string]struct{}{}
	var paths []string
	for _, p := range points {
		path := stringField(p.GetPayload(), "path")
		if path == "" {
			continue
		}
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	return v.GetStringValue()
}

func intField(payload map[string]*qdrant.Value, key string) int {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0
	}
	return int(v.GetIntegerValue())
}

func parseQdrantEndpoint(endpoint string) (string, int, bool, error) {
	if endpoint == "" {
		return "localhost", 6334, false, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", 0, false, err
	}
	useTLS := u.Scheme == "https"
	host := u.Hostname()
	if host == "" {
		host = endpoint
	}
	port := 6334
	if p := u.Port(); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}
	return host, port, useTLS, nil
}
