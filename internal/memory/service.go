package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mooassistant/moo/internal/merrors"
	"github.com/mooassistant/moo/internal/state"
)

const (
	notesPrefix      = ""
	chatLogPrefix    = "chat-log/"
	filesystemPrefix = "filesystem/"
)

// Service implements sync and search over notes, chat logs, and optional
// filesystem listings, backed by an Index and an Embedder.
type Service struct {
	index    Index
	embedder Embedder
	chunkCfg ChunkConfig
	logger   *slog.Logger

	notesDir       string
	workspaceDir   string
	chatLogDirs    []string // workspaceDir/chat-log and workspaceDir/chat-log/private
	filesystemDirs []string

	fingerprints *fingerprintStore
}

// Config configures a Service's sources.
type Config struct {
	ChunkConfig    ChunkConfig
	FilesystemDirs []string
}

// NewService builds a Service rooted at paths, persisting sync progress
// under paths.MemoryIndexDir().
func NewService(log *slog.Logger, paths state.Paths, index Index, embedder Embedder, cfg Config) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	fp, err := loadFingerprintStore(filepath.Join(paths.MemoryIndexDir(), "fingerprints.json"))
	if err != nil {
		return nil, merrors.NewStoreError("memory_index", err)
	}
	return &Service{
		index:    index,
		embedder: embedder,
		chunkCfg: cfg.ChunkConfig,
		logger:   log.With(slog.String("component", "memory")),

		notesDir:     paths.NotesDir(),
		workspaceDir: paths.WorkspaceDir(),
		chatLogDirs: []string{
			paths.ChatLogDir(),
			paths.PrivateChatLogDir(),
		},
		filesystemDirs: cfg.FilesystemDirs,
		fingerprints:   fp,
	}, nil
}

// Sync walks every configured source, upserting chunks for changed content
// and deleting chunks for sources that disappeared.
func (s *Service) Sync(ctx context.Context) error {
	if err := s.syncNotes(ctx); err != nil {
		return err
	}
	if err := s.syncChatLogs(ctx); err != nil {
		return err
	}
	if err := s.syncFilesystem(ctx); err != nil {
		return err
	}
	return s.fingerprints.save()
}

func (s *Service) syncNotes(ctx context.Context) error {
	seen := map[string]struct{}{}

	err := filepath.WalkDir(s.notesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, err := filepath.Rel(s.notesDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		key := "notes:" + rel
		seen[key] = struct{}{}

		info, err := d.Info()
		if err != nil {
			return err
		}
		fp := fingerprint{ModTimeUnix: info.ModTime().Unix(), Size: info.Size()}
		if old, ok := s.fingerprints.get(key); ok && old == fp {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sourceDate := info.ModTime().UTC().Format(dateLayout)
		chunks := ChunkMarkdown(rel, content, s.chunkCfg, sourceDate)
		if err := s.index.DeleteByPrefix(ctx, rel); err != nil {
			return err
		}
		if err := s.embedAndUpsert(ctx, rel, chunks); err != nil {
			return err
		}
		s.fingerprints.set(key, fp)
		return nil
	})
	if err != nil {
		return fmt.Errorf("memory: sync notes: %w", err)
	}

	for _, key := range s.fingerprints.keysWithPrefix("notes:") {
		if _, ok := seen[key]; ok {
			continue
		}
		rel := strings.TrimPrefix(key, "notes:")
		if err := s.index.DeleteByPrefix(ctx, rel); err != nil {
			return fmt.Errorf("memory: delete removed note %s: %w", rel, err)
		}
		s.fingerprints.delete(key)
	}
	return nil
}

func (s *Service) syncChatLogs(ctx context.Context) error {
	seen := map[string]struct{}{}

	for _, dir := range s.chatLogDirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
				return nil
			}
			rel, err := filepath.Rel(s.workspaceDir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			key := "chatlog:" + rel
			seen[key] = struct{}{}

			lines, err := readLines(path)
			if err != nil {
				return err
			}
			old, _ := s.fingerprints.get(key)
			if len(lines) <= old.LastLine {
				return nil
			}
			newLines := lines[old.LastLine:]
			// rel is already workspace-relative, e.g. "chat-log/2024-01-01.jsonl"
			// or "chat-log/private/<jid>.jsonl" — it IS the chunk path.
			sourceDate := dateFromChatLogName(rel)
			chunks := ChunkLines(rel, newLines, old.LastLine+1, s.chunkCfg, sourceDate)
			if err := s.embedAndUpsert(ctx, rel, chunks); err != nil {
				return err
			}
			s.fingerprints.set(key, fingerprint{LastLine: len(lines)})
			return nil
		})
		if err != nil {
			return fmt.Errorf("memory: sync chat logs: %w", err)
		}
	}

	for _, key := range s.fingerprints.keysWithPrefix("chatlog:") {
		if _, ok := seen[key]; ok {
			continue
		}
		rel := strings.TrimPrefix(key, "chatlog:")
		if err := s.index.DeleteByPrefix(ctx, rel); err != nil {
			return fmt.Errorf("memory: delete removed chat log %s: %w", rel, err)
		}
		s.fingerprints.delete(key)
	}
	return nil
}

func dateFromChatLogName(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, ".jsonl")
	if _, err := time.Parse(dateLayout, name); err == nil {
		return name
	}
	return ""
}

func (s *Service) syncFilesystem(ctx context.Context) error {
	seen := map[string]struct{}{}
	for _, dir := range s.filesystemDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("memory: sync filesystem %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			suffix := ""
			if e.IsDir() {
				suffix = "/"
			}
			names = append(names, e.Name()+suffix)
		}
		sort.Strings(names)

		key := "fs:" + dir
		seen[key] = struct{}{}
		listing := strings.Join(names, "\n")
		fp := fingerprint{Size: int64(len(listing)), RealPath: dir}
		if old, ok := s.fingerprints.get(key); ok && old.Size == fp.Size && old.RealPath == fp.RealPath {
			continue
		}

		chunkPath := filesystemPrefix + filepath.ToSlash(strings.TrimPrefix(dir, string(filepath.Separator)))
		chunks := []Chunk{{
			Path:       chunkPath,
			StartLine:  1,
			EndLine:    len(names),
			Text:       listing,
			SourceDate: time.Now().UTC().Format(dateLayout),
			Tokens:     approxTokens(listing),
		}}
		if err := s.index.DeleteByPrefix(ctx, chunkPath); err != nil {
			return err
		}
		if err := s.embedAndUpsert(ctx, chunkPath, chunks); err != nil {
			return err
		}
		s.fingerprints.set(key, fp)
		if err := s.fingerprints.save(); err != nil {
			return fmt.Errorf("memory: save sync progress: %w", err)
		}
	}

	for _, key := range s.fingerprints.keysWithPrefix("fs:") {
		if _, ok := seen[key]; ok {
			continue
		}
		dir := strings.TrimPrefix(key, "fs:")
		chunkPath := filesystemPrefix + filepath.ToSlash(strings.TrimPrefix(dir, string(filepath.Separator)))
		if err := s.index.DeleteByPrefix(ctx, chunkPath); err != nil {
			return fmt.Errorf("memory: delete removed filesystem listing %s: %w", dir, err)
		}
		s.fingerprints.delete(key)
	}
	return nil
}

func (s *Service) embedAndUpsert(ctx context.Context, path string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return merrors.NewProviderError("embed", err)
	}
	if len(vectors) != len(chunks) {
		return merrors.NewProviderError("embed", errors.New("embedding count mismatch"))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return s.index.Upsert(ctx, path, chunks)
}

// Search embeds query and returns ranked, still-existing results.
func (s *Service) Search(ctx context.Context, query string, filters SearchFilters) ([]SearchResult, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, merrors.NewProviderError("embed", err)
	}
	results, err := s.index.Search(ctx, vectors[0], filters)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if s.sourceExists(r.Path) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *Service) sourceExists(path string) bool {
	switch {
	case strings.HasPrefix(path, chatLogPrefix):
		// Chat-log chunk paths are workspace-relative, "chat-log/" included.
		_, err := os.Stat(filepath.Join(s.workspaceDir, path))
		return err == nil
	case strings.HasPrefix(path, filesystemPrefix):
		rel := strings.TrimPrefix(path, filesystemPrefix)
		_, err := os.Stat(string(filepath.Separator) + rel)
		return err == nil
	default:
		_, err := os.Stat(filepath.Join(s.notesDir, path))
		return err == nil
	}
}

// ReadFile resolves a notes or chat-log path and returns the requested
// line window (1-based, inclusive); filesystem-listing chunks are not
// readable this way.
func (s *Service) ReadFile(path string, from, lines int) (string, error) {
	if strings.HasPrefix(path, filesystemPrefix) {
		return "", merrors.NewToolContractError("memory_get", errors.New("filesystem-listing chunks are not directly readable"))
	}

	var real string
	switch {
	case strings.HasPrefix(path, chatLogPrefix):
		real = filepath.Join(s.workspaceDir, path)
	default:
		real = filepath.Join(s.notesDir, path)
	}

	all, err := readLines(real)
	if err != nil {
		return "", merrors.NewStoreError("memory_index", err)
	}
	if from <= 0 {
		from = 1
	}
	if lines <= 0 {
		lines = len(all)
	}
	start := from - 1
	if start > len(all) {
		return "", nil
	}
	end := start + lines
	if end > len(all) {
		end = len(all)
	}
	return strings.Join(all[start:end], "\n"), nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
