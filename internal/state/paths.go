// Package state resolves the per-user state directory and the fixed set of
// locations hanging off it: config, auth blobs, cron store, workspace
// (notes, chat logs), memory index, and uploads.
//
// The state directory is overridden by exactly one environment variable,
// MOO_STATE_DIR, reserved for the CLI test harness. No other environment
// variable is part of the public contract.
package state

import (
	"os"
	"path/filepath"
)

const stateDirEnvVar = "MOO_STATE_DIR"

// Paths is the resolved set of locations under one state directory.
type Paths struct {
	Root string
}

// Resolve returns the Paths for the current process: MOO_STATE_DIR if set,
// otherwise ~/.moo.
func Resolve() (Paths, error) {
	if dir := os.Getenv(stateDirEnvVar); dir != "" {
		return Paths{Root: dir}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, err
	}
	return Paths{Root: filepath.Join(home, ".moo")}, nil
}

// ConfigPath is the single JSON configuration document.
func (p Paths) ConfigPath() string { return filepath.Join(p.Root, "config.json") }

// AuthDir holds per-transport auth blobs (e.g. a linked-device session).
func (p Paths) AuthDir() string { return filepath.Join(p.Root, "auth") }

// CronStorePath is the cron job store file.
func (p Paths) CronStorePath() string { return filepath.Join(p.Root, "cron.json") }

// WorkspaceDir holds notes and chat logs.
func (p Paths) WorkspaceDir() string { return filepath.Join(p.Root, "workspace") }

// NotesDir holds indexable Markdown notes (MEMORY.md lives directly under it).
func (p Paths) NotesDir() string { return p.WorkspaceDir() }

// ChatLogDir holds the per-day aggregate and per-chat private logs.
func (p Paths) ChatLogDir() string { return filepath.Join(p.WorkspaceDir(), "chat-log") }

// PrivateChatLogDir holds per-chat private JSONL files.
func (p Paths) PrivateChatLogDir() string { return filepath.Join(p.ChatLogDir(), "private") }

// GroupChatLogDir holds per-group JSONL directories, isolated from private memory.
func (p Paths) GroupChatLogDir() string { return filepath.Join(p.WorkspaceDir(), "group-chat-log") }

// MemoryIndexDir holds the memory index's local bookkeeping (sync fingerprints,
// resumable filesystem-listing progress); the vectors themselves live in the
// configured vector store.
func (p Paths) MemoryIndexDir() string { return filepath.Join(p.Root, "memory-index") }

// UploadsDir holds inbound media saved by transports.
func (p Paths) UploadsDir() string { return filepath.Join(p.Root, "uploads") }

// EnsureAll creates every directory a fresh state directory needs.
func (p Paths) EnsureAll() error {
	dirs := []string{
		p.Root,
		p.AuthDir(),
		p.WorkspaceDir(),
		p.PrivateChatLogDir(),
		p.GroupChatLogDir(),
		p.MemoryIndexDir(),
		p.UploadsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
