package model

import (
	"context"
	"errors"

	"github.com/mooassistant/moo/internal/merrors"
)

// Capability names a ModelClient method that a ProviderEntry may advertise.
const (
	CapChat    = "chat"
	CapEmbed   = "embed"
	CapVision  = "vision"
	CapImage   = "image"
	CapSpeech  = "speech"
	CapTTS     = "tts"
)

// ProviderEntry is the Registry's view of one configured provider: enough
// to decide selection order without depending on internal/config.
type ProviderEntry struct {
	ID           string
	Capabilities []string
	Credentialed bool
	Client       Client
}

// HasCapability reports whether p advertises cap.
func (p ProviderEntry) HasCapability(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ErrNoProvider builds the ProviderError returned when no configured entry
// advertises the requested capability with valid credentials.
func ErrNoProvider(cap string) error {
	return merrors.NewProviderError(cap, errors.New("no credentialed provider advertises this capability"))
}

// Registry implements the "first capable + credentialed provider wins"
// selection policy per capability, trying entries in declared order.
type Registry struct {
	entries []ProviderEntry
}

// NewRegistry builds a Registry over entries, preserving declared order.
func NewRegistry(entries []ProviderEntry) *Registry {
	return &Registry{entries: entries}
}

// ByID returns the Client for the entry with the given id, or false if no
// such entry exists or it is not credentialed. Used where config names a
// provider explicitly (e.g. memory.embedding.providerId) rather than
// relying on capability-order fallback.
func (r *Registry) ByID(id string) (Client, bool) {
	for _, e := range r.entries {
		if e.ID == id && e.Credentialed && e.Client != nil {
			return e.Client, true
		}
	}
	return nil, false
}

// For returns the first entry's Client that advertises cap and is
// credentialed, or false if none qualifies.
func (r *Registry) For(cap string) (Client, bool) {
	for _, e := range r.entries {
		if e.Credentialed && e.HasCapability(cap) && e.Client != nil {
			return e.Client, true
		}
	}
	return nil, false
}

// Chat dispatches to the first provider advertising "chat".
func (r *Registry) Chat(ctx context.Context, messages []Message, tools []ToolSchema, opts ChatOptions) (ChatResult, error) {
	c, ok := r.For(CapChat)
	if !ok {
		return ChatResult{}, ErrNoProvider(CapChat)
	}
	return c.Chat(ctx, messages, tools, opts)
}

// Embed dispatches to the first provider advertising "embed".
func (r *Registry) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c, ok := r.For(CapEmbed)
	if !ok {
		return nil, ErrNoProvider(CapEmbed)
	}
	return c.Embed(ctx, texts)
}

// DescribeImage dispatches to the first provider advertising "vision". No
// separate fallback entry is consulted.
func (r *Registry) DescribeImage(ctx context.Context, imageRef, prompt, systemPrompt string) (string, error) {
	c, ok := r.For(CapVision)
	if !ok {
		return "", ErrNoProvider(CapVision)
	}
	return c.DescribeImage(ctx, imageRef, prompt, systemPrompt)
}

// GenerateImage dispatches to the first provider advertising "image".
func (r *Registry) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (GeneratedImage, error) {
	c, ok := r.For(CapImage)
	if !ok {
		return GeneratedImage{}, ErrNoProvider(CapImage)
	}
	return c.GenerateImage(ctx, prompt, opts)
}

// Transcribe dispatches to the first provider advertising "speech".
func (r *Registry) Transcribe(ctx context.Context, audioPath string) (string, error) {
	c, ok := r.For(CapSpeech)
	if !ok {
		return "", ErrNoProvider(CapSpeech)
	}
	return c.Transcribe(ctx, audioPath)
}

// Synthesize dispatches to the first provider advertising "tts".
func (r *Registry) Synthesize(ctx context.Context, text string) (string, error) {
	c, ok := r.For(CapTTS)
	if !ok {
		return "", ErrNoProvider(CapTTS)
	}
	return c.Synthesize(ctx, text)
}
