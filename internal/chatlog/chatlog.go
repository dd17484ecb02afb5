// Package chatlog is the append-only conversation store: one exchange per
// JSON Lines record, written to a per-chat file, a per-day aggregate, and
// (for groups) an isolated per-group/per-day file that never touches
// private memory.
package chatlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mooassistant/moo/internal/state"
)

// Entry is one exchange: a user message and the assistant's reply.
type Entry struct {
	TS        int64  `json:"ts"`
	JID       string `json:"jid,omitempty"`
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Exchange is the read-side shape: one turn as two role/content pairs,
// ready for injection into an agent's message history.
type Exchange struct {
	Role    string
	Content string
}

// Log appends exchanges and tails recent context.
type Log struct {
	paths  state.Paths
	logger *slog.Logger
}

// New builds a Log rooted at paths.
func New(log *slog.Logger, paths state.Paths) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{paths: paths, logger: log.With(slog.String("component", "chatlog"))}
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func safeName(id string) string {
	return unsafePathChars.ReplaceAllString(id, "_")
}

// Append writes one exchange for a private chat identified by jid, to both
// the per-chat file and the per-day aggregate.
func (l *Log) Append(jid string, e Entry) error {
	e.JID = jid
	if e.TS == 0 {
		e.TS = time.Now().UTC().UnixMilli()
	}
	if err := appendLine(l.privateChatPath(jid), e); err != nil {
		return fmt.Errorf("chatlog: append private chat: %w", err)
	}
	if err := appendLine(l.aggregatePath(e.TS), e); err != nil {
		return fmt.Errorf("chatlog: append aggregate: %w", err)
	}
	l.logger.Debug("exchange appended", slog.String("jid", jid))
	return nil
}

// AppendGroup writes one exchange for groupId to the isolated group path
// only; it never touches the private chat files or the aggregate.
func (l *Log) AppendGroup(groupID string, e Entry) error {
	if e.TS == 0 {
		e.TS = time.Now().UTC().UnixMilli()
	}
	if err := appendLine(l.groupPath(groupID, e.TS), e); err != nil {
		return fmt.Errorf("chatlog: append group: %w", err)
	}
	l.logger.Debug("group exchange appended", slog.String("group", groupID))
	return nil
}

func appendLine(path string, e Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

func (l *Log) privateChatPath(jid string) string {
	return filepath.Join(l.paths.PrivateChatLogDir(), safeName(jid)+".jsonl")
}

// PrivateDir returns the directory holding per-chat private log files.
func (l *Log) PrivateDir() string { return l.paths.PrivateChatLogDir() }

func (l *Log) aggregatePath(tsMillis int64) string {
	day := time.UnixMilli(tsMillis).UTC().Format("2006-01-02")
	return filepath.Join(l.paths.ChatLogDir(), day+".jsonl")
}

func (l *Log) groupPath(groupID string, tsMillis int64) string {
	day := time.UnixMilli(tsMillis).UTC().Format("2006-01-02")
	return filepath.Join(l.paths.GroupChatLogDir(), safeName(groupID), day+".jsonl")
}

// ReadLastPrivateExchanges tails the per-chat file for jid and returns its
// last n records (oldest first), each as a user Exchange followed by an
// assistant Exchange, so up to 2n values.
func (l *Log) ReadLastPrivateExchanges(jid string, n int) ([]Exchange, error) {
	entries, err := tailEntries(l.privateChatPath(jid), n)
	if err != nil {
		return nil, fmt.Errorf("chatlog: read private chat: %w", err)
	}
	return toExchanges(entries), nil
}

// ReadLastGroupExchanges reads every per-day group file for groupId (in
// file-name, so date, order) and returns the last n records as user and
// assistant Exchange values. It only ever reads from the isolated group
// path, never private chat files.
func (l *Log) ReadLastGroupExchanges(groupID string, n int) ([]Exchange, error) {
	dir := filepath.Join(l.paths.GroupChatLogDir(), safeName(groupID))
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("chatlog: read group dir: %w", err)
	}

	var all []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		entries, err := readAllEntries(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("chatlog: read group file %s: %w", f.Name(), err)
		}
		all = append(all, entries...)
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return toExchanges(all), nil
}

// LastActivityMs returns the timestamp of the most recent exchange in
// jid's private chat file, or ok=false if the chat has no history yet.
func (l *Log) LastActivityMs(jid string) (ts int64, ok bool, err error) {
	entries, err := tailEntries(l.privateChatPath(jid), 1)
	if err != nil {
		return 0, false, fmt.Errorf("chatlog: read private chat: %w", err)
	}
	if len(entries) == 0 {
		return 0, false, nil
	}
	return entries[0].TS, true, nil
}

func toExchanges(entries []Entry) []Exchange {
	out := make([]Exchange, 0, len(entries)*2)
	for _, e := range entries {
		out = append(out, Exchange{Role: "user", Content: e.User})
		out = append(out, Exchange{Role: "assistant", Content: e.Assistant})
	}
	return out
}

func readAllEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func tailEntries(path string, n int) ([]Entry, error) {
	entries, err := readAllEntries(path)
	if err != nil {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
