// Package agent implements the tool-using conversation loop: builds the
// per-turn prompt, invokes the ModelClient with the enabled tool set,
// dispatches tool calls to skill executors, and stops on a terminal
// assistant reply or a safety cap.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/chatlog"
	"github.com/mooassistant/moo/internal/model"
	"github.com/mooassistant/moo/internal/skill"
)

const (
	defaultMaxIterations = 8
	defaultTurnTimeout    = 120 * time.Second
	defaultHistoryTurns   = 12
)

// ChatClient is the ModelClient surface the loop drives.
type ChatClient interface {
	Chat(ctx context.Context, messages []model.Message, tools []model.ToolSchema, opts model.ChatOptions) (model.ChatResult, error)
}

// History reads and writes the recent-exchange context a turn needs.
type History interface {
	ReadLastPrivateExchanges(jid string, n int) ([]chatlog.Exchange, error)
	ReadLastGroupExchanges(groupID string, n int) ([]chatlog.Exchange, error)
	Append(jid string, e chatlog.Entry) error
	AppendGroup(groupID string, e chatlog.Entry) error
}

// ContextBuilder builds the per-turn agentctx.Context for a chat.
type ContextBuilder func(jid string, isGroup bool) agentctx.Context

// Request describes one turn.
type Request struct {
	SystemPrompt string
	UserMessage  string
	JID          string
	IsGroup      bool
	// EnabledSkillIDs overrides the loop's default enabled-skill set for
	// this turn (empty means use the loop's configured default).
	EnabledSkillIDs []string
}

// Result is the terminal outcome of one turn: the text to send, plus any
// side-channel media directive an executor's result carried, which the
// transport honours after the turn completes.
type Result struct {
	Text        string
	ImagePath   string
	ImageCaption string
	VoicePath   string
}

var thinkBlockPattern = "</think>"

// Loop is the Agent Loop: per-turn prompt assembly, model invocation, tool
// dispatch, and the iteration/wall-clock safety caps.
type Loop struct {
	model   ChatClient
	skills  *skill.Registry
	history History
	ctxFor  ContextBuilder
	logger  *slog.Logger

	enabledSkillIDs []string
	maxIterations   int
	turnTimeout     time.Duration
	historyTurns    int
}

// Config configures a Loop.
type Config struct {
	EnabledSkillIDs []string
	MaxIterations   int
	TurnTimeout     time.Duration
	HistoryTurns    int
}

// New builds a Loop.
func New(log *slog.Logger, chatModel ChatClient, skills *skill.Registry, history History, ctxFor ContextBuilder, cfg Config) *Loop {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	return &Loop{
		model:           chatModel,
		skills:          skills,
		history:         history,
		ctxFor:          ctxFor,
		logger:          log.With(slog.String("component", "agent_loop")),
		enabledSkillIDs: cfg.EnabledSkillIDs,
		maxIterations:   cfg.MaxIterations,
		turnTimeout:     cfg.TurnTimeout,
		historyTurns:    cfg.HistoryTurns,
	}
}

// RunTurn satisfies cron.AgentRunner: it runs a full turn and returns only
// the text. Any side-channel media directive from the turn is discarded,
// so media produced in a cron or tide turn is not delivered.
func (l *Loop) RunTurn(ctx context.Context, systemPrompt, userMessage, jid string) (string, error) {
	result, err := l.Run(ctx, Request{SystemPrompt: systemPrompt, UserMessage: userMessage, JID: jid})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Run executes one full turn: prompt assembly, model calls, tool
// dispatch, bounded by the iteration and wall-clock caps.
func (l *Loop) Run(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.turnTimeout)
	defer cancel()

	enabledIDs := req.EnabledSkillIDs
	if len(enabledIDs) == 0 {
		enabledIDs = l.enabledSkillIDs
	}
	actx := l.ctxFor(req.JID, req.IsGroup)
	tools := l.skills.Tools(enabledIDs, req.IsGroup)

	messages, err := l.buildMessages(req)
	if err != nil {
		return Result{}, err
	}

	var directive Result
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		if ctx.Err() != nil {
			return l.timeoutResult(req, directive), nil
		}

		chatResult, err := l.model.Chat(ctx, messages, tools, model.ChatOptions{})
		if err != nil {
			if ctx.Err() != nil {
				return l.timeoutResult(req, directive), nil
			}
			return Result{}, fmt.Errorf("agent loop: %w", err)
		}

		if chatResult.IsTerminal() {
			text := stripThinking(chatResult.Text)
			if err := l.recordExchange(req, text); err != nil {
				l.logger.Warn("chat log append failed", slog.Any("err", err))
			}
			directive.Text = text
			return directive, nil
		}

		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			ToolCalls: chatResult.ToolCalls,
		})
		for _, call := range chatResult.ToolCalls {
			result := l.skills.Dispatch(ctx, actx, enabledIDs, call.Name, call.Arguments)
			applyDirective(&directive, result)
			messages = append(messages, model.Message{
				Role:       model.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	text := fmt.Sprintf("stopped after %d tool steps", l.maxIterations)
	if err := l.recordExchange(req, text); err != nil {
		l.logger.Warn("chat log append failed", slog.Any("err", err))
	}
	directive.Text = text
	return directive, nil
}

func (l *Loop) timeoutResult(req Request, directive Result) Result {
	text := "sorry, that took too long and I had to stop"
	if err := l.recordExchange(req, text); err != nil {
		l.logger.Warn("chat log append failed", slog.Any("err", err))
	}
	directive.Text = text
	return directive
}

func (l *Loop) buildMessages(req Request) ([]model.Message, error) {
	var history []chatlog.Exchange
	var err error
	if req.IsGroup {
		history, err = l.history.ReadLastGroupExchanges(req.JID, l.historyTurns)
	} else {
		history, err = l.history.ReadLastPrivateExchanges(req.JID, l.historyTurns)
	}
	if err != nil {
		return nil, fmt.Errorf("agent loop: read history: %w", err)
	}

	messages := make([]model.Message, 0, len(history)+2)
	messages = append(messages, model.Message{Role: model.RoleSystem, Content: req.SystemPrompt})
	for _, h := range history {
		messages = append(messages, model.Message{Role: model.Role(h.Role), Content: h.Content})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: req.UserMessage})
	return messages, nil
}

func (l *Loop) recordExchange(req Request, assistantText string) error {
	entry := chatlog.Entry{User: req.UserMessage, Assistant: assistantText}
	if req.IsGroup {
		return l.history.AppendGroup(req.JID, entry)
	}
	return l.history.Append(req.JID, entry)
}

// stripThinking removes a provider's "thinking" preamble (everything up to
// and including a trailing </think> marker) and any leading assistant
// prefix markers before the reply is sent.
func stripThinking(text string) string {
	if idx := strings.LastIndex(text, thinkBlockPattern); idx >= 0 {
		text = text[idx+len(thinkBlockPattern):]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "Assistant:")
	return strings.TrimSpace(text)
}

// directivePayload is the shape a skill executor emits when it wants the
// transport to send media as a side channel alongside (or instead of) the
// final text.
type directivePayload struct {
	ImageReply string `json:"imageReply"`
	Caption    string `json:"caption"`
	VoiceReply string `json:"voiceReply"`
}

func applyDirective(into *Result, toolResult string) {
	var p directivePayload
	if err := json.Unmarshal([]byte(toolResult), &p); err != nil {
		return
	}
	if p.ImageReply != "" {
		into.ImagePath = p.ImageReply
		into.ImageCaption = p.Caption
	}
	if p.VoiceReply != "" {
		into.VoicePath = p.VoiceReply
	}
}
