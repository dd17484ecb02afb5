package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/model"
	"github.com/mooassistant/moo/internal/skill"
)

const (
	MediaSkillID = "media"

	toolImageDescribe   = "image_describe"
	toolImageGenerate   = "image_generate"
	toolSpeechTranscribe = "speech_transcribe"
	toolSpeechSynthesize = "speech_synthesize"
)

// ModelCapabilities is the subset of model.Client(-like) operations the
// media skill passes straight through to. model.Registry satisfies it.
type ModelCapabilities interface {
	DescribeImage(ctx context.Context, imageRef, prompt, systemPrompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string, opts model.ImageOptions) (model.GeneratedImage, error)
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Synthesize(ctx context.Context, text string) (string, error)
}

// MediaExecutor formats ModelCapabilities results as the string/JSON
// contract every tool executor returns.
type MediaExecutor struct {
	client ModelCapabilities
}

// NewMediaExecutor builds a MediaExecutor over client.
func NewMediaExecutor(client ModelCapabilities) *MediaExecutor {
	return &MediaExecutor{client: client}
}

// MediaDescriptor describes the media skill's four tools, disabled in
// group contexts (generated/transcribed files are saved to the owner's
// uploads directory and a group send directive would leak them broadly).
func MediaDescriptor() skill.Descriptor {
	return skill.Descriptor{
		ID:            MediaSkillID,
		Name:          "media",
		Description:   "Describe images, generate images, and transcribe/synthesize speech",
		Doc:           "image_generate and speech_synthesize return a JSON {imageReply, caption} or {voiceReply} directive the transport sends as a side-channel reply.",
		GroupDisabled: true,
		Tools: []skill.ToolDescriptor{
			{
				Name:        toolImageDescribe,
				Description: "Describe the contents of an image",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"imageRef":     map[string]any{"type": "string", "description": "URL, data URI, or local path"},
						"prompt":       map[string]any{"type": "string", "description": "What to look for"},
						"systemPrompt": map[string]any{"type": "string", "description": "Optional vision system prompt"},
					},
					"required": []string{"imageRef", "prompt"},
				},
			},
			{
				Name:        toolImageGenerate,
				Description: "Generate an image from a text prompt",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"prompt": map[string]any{"type": "string", "description": "What to depict"},
						"size":   map[string]any{"type": "string", "description": "Optional size hint, e.g. \"1024x1024\""},
					},
					"required": []string{"prompt"},
				},
			},
			{
				Name:        toolSpeechTranscribe,
				Description: "Transcribe speech from a local audio file",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"audioPath": map[string]any{"type": "string", "description": "Local path to the audio file"},
					},
					"required": []string{"audioPath"},
				},
			},
			{
				Name:        toolSpeechSynthesize,
				Description: "Synthesize speech audio from text",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{"type": "string", "description": "The text to speak"},
					},
					"required": []string{"text"},
				},
			},
		},
	}
}

// Execute implements skill.Executor.
func (e *MediaExecutor) Execute(ctx context.Context, _ agentctx.Context, toolName string, args map[string]any) (string, error) {
	switch toolName {
	case toolImageDescribe:
		imageRef, err := skill.RequireString(args, "imageRef")
		if err != nil {
			return "", err
		}
		prompt, err := skill.RequireString(args, "prompt")
		if err != nil {
			return "", err
		}
		return e.client.DescribeImage(ctx, imageRef, prompt, skill.StringArg(args, "systemPrompt"))
	case toolImageGenerate:
		prompt, err := skill.RequireString(args, "prompt")
		if err != nil {
			return "", err
		}
		img, err := e.client.GenerateImage(ctx, prompt, model.ImageOptions{Size: skill.StringArg(args, "size")})
		if err != nil {
			return "", err
		}
		return toJSON(map[string]string{"imageReply": img.Path, "caption": img.Caption})
	case toolSpeechTranscribe:
		audioPath, err := skill.RequireString(args, "audioPath")
		if err != nil {
			return "", err
		}
		return e.client.Transcribe(ctx, audioPath)
	case toolSpeechSynthesize:
		text, err := skill.RequireString(args, "text")
		if err != nil {
			return "", err
		}
		path, err := e.client.Synthesize(ctx, text)
		if err != nil {
			return "", err
		}
		return toJSON(map[string]string{"voiceReply": path})
	default:
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
