package builtin

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/skill"
)

const (
	WebSkillID  = "web_fetch"
	toolWebFetch = "web_fetch"

	webFetchTimeout  = 20 * time.Second
	maxWebFetchChars = 12000
)

// WebExecutor turns a URL into clean, readable text via go-readability's
// boilerplate stripper. It only extracts fetched HTML into text; it is
// not a browser.
type WebExecutor struct{}

// NewWebExecutor builds a WebExecutor.
func NewWebExecutor() *WebExecutor { return &WebExecutor{} }

// WebDescriptor describes the web_fetch skill, available in groups (it has
// no local filesystem/shell surface, just an outbound HTTP GET).
func WebDescriptor() skill.Descriptor {
	return skill.Descriptor{
		ID:          WebSkillID,
		Name:        "web_fetch",
		Description: "Fetch a URL and return its readable text content",
		Doc:         "web_fetch downloads a page and strips navigation/boilerplate, returning plain text truncated to a safe length.",
		Tools: []skill.ToolDescriptor{{
			Name:        toolWebFetch,
			Description: "Fetch a URL and extract its main readable text",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{"type": "string", "description": "The page URL to fetch"},
				},
				"required": []string{"url"},
			},
		}},
	}
}

// Execute implements skill.Executor.
func (e *WebExecutor) Execute(ctx context.Context, _ agentctx.Context, toolName string, args map[string]any) (string, error) {
	if toolName != toolWebFetch {
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
	raw, err := skill.RequireString(args, "url")
	if err != nil {
		return "", err
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", raw)
	}

	article, err := readability.FromURL(parsed.String(), webFetchTimeout)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", raw, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("no readable content found at %s", raw)
	}
	if len(text) > maxWebFetchChars {
		text = text[:maxWebFetchChars] + "\n...[truncated]"
	}
	if article.Title != "" {
		return fmt.Sprintf("%s\n\n%s", article.Title, text), nil
	}
	return text, nil
}
