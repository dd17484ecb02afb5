// Package openai implements model.Client against any OpenAI-compatible
// chat-completions/embeddings/images/audio HTTP API, which covers
// self-hosted gateways for OpenAI, Anthropic-compatible, and local models
// alike.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mooassistant/moo/internal/merrors"
	"github.com/mooassistant/moo/internal/model"
)

type multipartBody struct {
	w *multipart.Writer
}

func multipartWriter(buf *bytes.Buffer) *multipartBody {
	return &multipartBody{w: multipart.NewWriter(buf)}
}

func (m *multipartBody) writeField(name, value string) error {
	return m.w.WriteField(name, value)
}

func (m *multipartBody) writeFile(field, filename string, data []byte) error {
	part, err := m.w.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

func (m *multipartBody) close() error {
	return m.w.Close()
}

func (m *multipartBody) contentType() string {
	return m.w.FormDataContentType()
}

const defaultTimeout = 25 * time.Second

// Client is an OpenAI-compatible model.Client.
type Client struct {
	name        string
	baseURL     string
	apiKey      string
	chatModel   string
	embedModel  string
	visionModel string
	imageModel  string
	speechModel string
	ttsModel    string
	uploadsDir  string
	logger      *slog.Logger
	http        *http.Client
}

// Config carries the per-provider wiring a Client needs.
type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	ChatModel   string
	EmbedModel  string
	VisionModel string
	ImageModel  string
	SpeechModel string
	TTSModel    string
	UploadsDir  string
	Timeout     time.Duration
}

// New builds a Client from cfg.
func New(log *slog.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("openai client: base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai client: api key is required")
	}
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		chatModel:   cfg.ChatModel,
		embedModel:  cfg.EmbedModel,
		visionModel: cfg.VisionModel,
		imageModel:  cfg.ImageModel,
		speechModel: cfg.SpeechModel,
		ttsModel:    cfg.TTSModel,
		uploadsDir:  cfg.UploadsDir,
		logger:      log.With(slog.String("provider", cfg.Name)),
		http:        &http.Client{Timeout: timeout},
	}, nil
}

type chatRequestMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []chatToolCallIn `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type chatToolCallIn struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function chatFunctionCallIn `json:"function"`
}

type chatFunctionCallIn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function model.ToolSchema `json:"function"`
}

type chatRequest struct {
	Model     string                `json:"model"`
	Messages  []chatRequestMessage  `json:"messages"`
	Tools     []chatTool            `json:"tools,omitempty"`
	MaxTokens int                   `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat implements model.Client.
func (c *Client) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSchema, opts model.ChatOptions) (model.ChatResult, error) {
	if c.chatModel == "" {
		return model.ChatResult{}, merrors.NewProviderError(c.name, errors.New("chat model not configured"))
	}

	req := chatRequest{
		Model:     c.chatModel,
		MaxTokens: opts.MaxTokens,
	}
	for _, m := range messages {
		out := chatRequestMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			out.ToolCalls = append(out.ToolCalls, chatToolCallIn{
				ID:   tc.ID,
				Type: "function",
				Function: chatFunctionCallIn{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		req.Messages = append(req.Messages, out)
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, chatTool{Type: "function", Function: t})
	}

	var resp chatResponse
	if err := c.post(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return model.ChatResult{}, err
	}
	if len(resp.Choices) == 0 {
		return model.ChatResult{}, merrors.NewProviderError(c.name, errors.New("no choices in chat response"))
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) > 0 {
		result := model.ChatResult{}
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]any{}
				}
			}
			id := tc.ID
			if id == "" {
				id = uuid.NewString()
			}
			result.ToolCalls = append(result.ToolCalls, model.ToolCall{
				ID:        id,
				Name:      tc.Function.Name,
				Arguments: args,
			})
		}
		return result, nil
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return model.ChatResult{}, merrors.NewProviderError(c.name, errors.New("chat response has neither text nor tool calls"))
	}
	return model.ChatResult{Text: choice.Message.Content}, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements model.Client.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedModel == "" {
		return nil, merrors.NewProviderError(c.name, errors.New("embed model not configured"))
	}
	var resp embeddingResponse
	if err := c.post(ctx, "/v1/embeddings", embeddingRequest{Input: texts, Model: c.embedModel}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, merrors.NewProviderError(c.name, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

type visionRequest struct {
	Model    string               `json:"model"`
	Messages []chatRequestMessage `json:"messages"`
}

// DescribeImage implements model.Client.
func (c *Client) DescribeImage(ctx context.Context, imageRef, prompt, systemPrompt string) (string, error) {
	if c.visionModel == "" {
		return "", merrors.NewProviderError(c.name, errors.New("vision model not configured"))
	}
	ref, err := toDataURIIfLocal(imageRef)
	if err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}

	var messages []chatRequestMessage
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, chatRequestMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatRequestMessage{Role: "user", Content: fmt.Sprintf("%s\n[image: %s]", prompt, ref)})

	var resp chatResponse
	if err := c.post(ctx, "/v1/chat/completions", visionRequest{Model: c.visionModel, Messages: messages}, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", merrors.NewProviderError(c.name, errors.New("no choices in vision response"))
	}
	return resp.Choices[0].Message.Content, nil
}

type imageGenRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

type imageGenResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// GenerateImage implements model.Client.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts model.ImageOptions) (model.GeneratedImage, error) {
	if c.imageModel == "" {
		return model.GeneratedImage{}, merrors.NewProviderError(c.name, errors.New("image model not configured"))
	}
	var resp imageGenResponse
	if err := c.post(ctx, "/v1/images/generations", imageGenRequest{Model: c.imageModel, Prompt: prompt, Size: opts.Size}, &resp); err != nil {
		return model.GeneratedImage{}, err
	}
	if len(resp.Data) == 0 {
		return model.GeneratedImage{}, merrors.NewProviderError(c.name, errors.New("no image returned"))
	}
	path, err := c.saveImage(resp.Data[0].B64JSON)
	if err != nil {
		return model.GeneratedImage{}, merrors.NewProviderError(c.name, err)
	}
	return model.GeneratedImage{Path: path, Caption: prompt}, nil
}

// Transcribe implements model.Client.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if c.speechModel == "" {
		return "", merrors.NewProviderError(c.name, errors.New("speech model not configured"))
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}

	body := &bytes.Buffer{}
	writer := multipartWriter(body)
	if err := writer.writeField("model", c.speechModel); err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}
	if err := writer.writeFile("file", filepath.Base(audioPath), data); err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}
	if err := writer.close(); err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}
	req.Header.Set("Content-Type", writer.contentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize implements model.Client.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	if c.ttsModel == "" {
		return "", merrors.NewProviderError(c.name, errors.New("tts model not configured"))
	}
	payload, err := json.Marshal(speechRequest{Model: c.ttsModel, Input: text})
	if err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", merrors.NewProviderError(c.name, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}
	path := filepath.Join(c.uploadsOrTemp(), uuid.NewString()+".mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", merrors.NewProviderError(c.name, err)
	}
	return path, nil
}

func (c *Client) uploadsOrTemp() string {
	if c.uploadsDir != "" {
		_ = os.MkdirAll(c.uploadsDir, 0o755)
		return c.uploadsDir
	}
	return os.TempDir()
}

func (c *Client) saveImage(b64 string) (string, error) {
	if b64 == "" {
		return "", errors.New("image response had no inline data")
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	path := filepath.Join(c.uploadsOrTemp(), uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return merrors.NewProviderError(c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return merrors.NewProviderError(c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return merrors.NewProviderError(c.name, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return merrors.NewProviderError(c.name, err)
	}
	if resp.StatusCode/100 != 2 {
		return merrors.NewProviderError(c.name, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return merrors.NewProviderError(c.name, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func toDataURIIfLocal(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", err
	}
	mime := "image/png"
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".webp":
		mime = "image/webp"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}
