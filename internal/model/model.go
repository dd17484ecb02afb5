// Package model defines the ModelClient contract: uniform access to
// chat-with-tools, embeddings, vision, image generation, and speech,
// irrespective of provider, plus the provider-selection policy.
package model

import "context"

// Role is a Message's role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured function request emitted by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one entry in a turn's ordered conversation sequence.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolSchema is the JSON-Schema-subset shape tools are exposed to the model
// as: {name, description, parameters: {type, properties, required}}.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatOptions bounds a single chat call.
type ChatOptions struct {
	MaxTokens int
}

// ChatResult carries exactly one of Text (terminal) or a non-empty ToolCalls.
type ChatResult struct {
	Text      string
	ToolCalls []ToolCall
}

// IsTerminal reports whether this result is a final assistant reply rather
// than a tool-call request.
func (r ChatResult) IsTerminal() bool { return len(r.ToolCalls) == 0 }

// ImageOptions bounds image generation.
type ImageOptions struct {
	Size string
}

// GeneratedImage is a locally saved image plus its caption.
type GeneratedImage struct {
	Path    string
	Caption string
}

// Client is the ModelClient contract. Every method may return a
// *merrors.ProviderError on transport failure, or for Chat specifically a
// *merrors.ProviderError-wrapped contract violation when the response
// carries neither text nor tool calls.
type Client interface {
	// Chat returns exactly one of Text or a non-empty ToolCalls.
	Chat(ctx context.Context, messages []Message, tools []ToolSchema, opts ChatOptions) (ChatResult, error)
	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// DescribeImage answers a vision prompt about imageRef (URL, data URI, or local path).
	DescribeImage(ctx context.Context, imageRef, prompt, systemPrompt string) (string, error)
	// GenerateImage returns a locally saved image for prompt.
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (GeneratedImage, error)
	// Transcribe returns the text spoken in the audio file at audioPath.
	Transcribe(ctx context.Context, audioPath string) (string, error)
	// Synthesize returns the path to a newly written audio file speaking text.
	Synthesize(ctx context.Context, text string) (string, error)
}
