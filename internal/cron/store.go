package cron

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/mooassistant/moo/internal/merrors"
)

const currentVersion = 1

// Store is the atomic JSON-file-backed cron job store. All mutations
// rewrite the whole file via temp-file + rename for crash safety.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	doc  Document
}

// NewStore opens (or lazily creates) the store at path, tolerating a
// missing or corrupt file by yielding an empty document.
func NewStore(log *slog.Logger, path string) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{path: path, logger: log.With(slog.String("component", "cron_store"))}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

func (s *Store) load() (Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Document{Version: currentVersion, Jobs: []Job{}}, nil
	}
	if err != nil {
		return Document{}, merrors.NewStoreError("cron", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("cron store file is corrupt, starting empty", slog.String("path", s.path))
		return Document{Version: currentVersion, Jobs: []Job{}}, nil
	}
	if doc.Jobs == nil {
		doc.Jobs = []Job{}
	}
	if doc.Version == 0 {
		doc.Version = currentVersion
	}
	return doc, nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return merrors.NewStoreError("cron", err)
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return merrors.NewStoreError("cron", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return merrors.NewStoreError("cron", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return merrors.NewStoreError("cron", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return merrors.NewStoreError("cron", err)
	}
	if err := f.Close(); err != nil {
		return merrors.NewStoreError("cron", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return merrors.NewStoreError("cron", err)
	}
	return nil
}

// LoadJobs returns a snapshot of all jobs.
func (s *Store) LoadJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.doc.Jobs))
	copy(out, s.doc.Jobs)
	return out
}

// AddJob assigns an ID (if absent) and persists a new job.
func (s *Store) AddJob(j Job) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	s.doc.Jobs = append(s.doc.Jobs, j)
	if err := s.save(); err != nil {
		return Job{}, err
	}
	return j, nil
}

// UpdateJob applies patch to the job with the given id and persists it.
func (s *Store) UpdateJob(id string, patch func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Jobs {
		if s.doc.Jobs[i].ID == id {
			patch(&s.doc.Jobs[i])
			if err := s.save(); err != nil {
				return Job{}, err
			}
			return s.doc.Jobs[i], nil
		}
	}
	return Job{}, merrors.NewStoreError("cron", fmt.Errorf("job %s not found", id))
}

// RemoveJob deletes the job with the given id and persists the result.
func (s *Store) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.doc.Jobs[:0]
	found := false
	for _, j := range s.doc.Jobs {
		if j.ID == id {
			found = true
			continue
		}
		filtered = append(filtered, j)
	}
	if !found {
		return merrors.NewStoreError("cron", fmt.Errorf("job %s not found", id))
	}
	s.doc.Jobs = filtered
	return s.save()
}
