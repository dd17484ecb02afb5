package builtin

import (
	"context"
	"fmt"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/memory"
	"github.com/mooassistant/moo/internal/skill"
)

const (
	MemorySkillID  = "memory"
	toolMemorySearch = "memory_search"
	toolMemoryGet    = "memory_get"

	defaultMemorySearchK = 8
)

// Searcher is the subset of memory.Service the memory skill needs.
type Searcher interface {
	Search(ctx context.Context, query string, filters memory.SearchFilters) ([]memory.SearchResult, error)
	ReadFile(path string, from, lines int) (string, error)
}

// MemoryExecutor exposes the two tools of the memory skill: search (a
// semantic query) and get (reading a specific window of a referenced
// source).
type MemoryExecutor struct {
	svc      Searcher
	timezone string
}

// NewMemoryExecutor builds a MemoryExecutor over svc, using timezone to
// resolve dateRange shorthands.
func NewMemoryExecutor(svc Searcher, timezone string) *MemoryExecutor {
	return &MemoryExecutor{svc: svc, timezone: timezone}
}

// MemoryDescriptor describes the memory skill: both tools, available in
// groups (recall is harmless read-only context, unlike file/shell access).
func MemoryDescriptor() skill.Descriptor {
	return skill.Descriptor{
		ID:          MemorySkillID,
		Name:        "memory",
		Description: "Search and read indexed notes, chat history, and filesystem listings",
		Doc:         "memory_search finds relevant snippets by meaning; memory_get reads a specific window of a snippet's source.",
		Tools: []skill.ToolDescriptor{
			{
				Name:        toolMemorySearch,
				Description: "Semantically search notes, chat logs, and filesystem listings",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":     map[string]any{"type": "string", "description": "What to search for"},
						"k":         map[string]any{"type": "integer", "description": "Max results, default 8"},
						"minScore":  map[string]any{"type": "number", "description": "Minimum similarity score"},
						"dateFrom":  map[string]any{"type": "string", "description": "YYYY-MM-DD lower bound"},
						"dateTo":    map[string]any{"type": "string", "description": "YYYY-MM-DD upper bound"},
						"dateRange": map[string]any{"type": "string", "description": "yesterday | last_week | last_7_days | last_month"},
					},
					"required": []string{"query"},
				},
			},
			{
				Name:        toolMemoryGet,
				Description: "Read a line window from a notes or chat-log path returned by memory_search",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path":  map[string]any{"type": "string", "description": "Source path from a memory_search result"},
						"from":  map[string]any{"type": "integer", "description": "1-based starting line"},
						"lines": map[string]any{"type": "integer", "description": "Number of lines to read"},
					},
					"required": []string{"path"},
				},
			},
		},
	}
}

// Execute implements skill.Executor.
func (e *MemoryExecutor) Execute(ctx context.Context, _ agentctx.Context, toolName string, args map[string]any) (string, error) {
	switch toolName {
	case toolMemorySearch:
		return e.search(ctx, args)
	case toolMemoryGet:
		return e.get(args)
	default:
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
}

func (e *MemoryExecutor) search(ctx context.Context, args map[string]any) (string, error) {
	query, err := skill.RequireString(args, "query")
	if err != nil {
		return "", err
	}
	k, _, err := skill.IntArg(args, "k")
	if err != nil {
		return "", err
	}
	if k <= 0 {
		k = defaultMemorySearchK
	}
	minScore, _, err := skill.FloatArg(args, "minScore")
	if err != nil {
		return "", err
	}

	filters := memory.SearchFilters{
		K:         k,
		MinScore:  minScore,
		DateFrom:  skill.StringArg(args, "dateFrom"),
		DateTo:    skill.StringArg(args, "dateTo"),
		DateRange: skill.StringArg(args, "dateRange"),
		Timezone:  e.timezone,
	}
	results, err := e.svc.Search(ctx, query, filters)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "no results", nil
	}

	out := ""
	for i, r := range results {
		if i > 0 {
			out += "\n---\n"
		}
		out += fmt.Sprintf("%s:%d-%d (score %.3f)\n%s", r.Path, r.StartLine, r.EndLine, r.Score, r.Snippet)
	}
	return out, nil
}

func (e *MemoryExecutor) get(args map[string]any) (string, error) {
	path, err := skill.RequireString(args, "path")
	if err != nil {
		return "", err
	}
	from, _, err := skill.IntArg(args, "from")
	if err != nil {
		return "", err
	}
	lines, _, err := skill.IntArg(args, "lines")
	if err != nil {
		return "", err
	}
	return e.svc.ReadFile(path, from, lines)
}
