// Package builtin implements the concrete skill executors the registry
// dispatches to: shell, file read/edit, memory search/get, cron
// add/list/remove, web fetch, and the image/speech passthroughs.
package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/skill"
)

const (
	ShellSkillID = "core_shell"
	toolShell    = "core_shell"

	defaultShellTimeout = 20 * time.Second
	maxShellOutput      = 8000 // bytes
)

// ShellConfig holds the skill's guardrails as data rather than scattered
// checks: an allow-list of command names, a timeout, and an output cap.
// Denial in group contexts is expressed by ShellDescriptor's
// GroupDisabled flag, not by a check inside the executor.
type ShellConfig struct {
	AllowedCommands []string
	Timeout         time.Duration
	MaxOutputBytes  int
}

func (c ShellConfig) allowed(name string) bool {
	for _, a := range c.AllowedCommands {
		if a == name {
			return true
		}
	}
	return false
}

// ShellExecutor runs an allow-listed command synchronously with a timeout
// and truncates captured output to the configured cap.
type ShellExecutor struct {
	cfg ShellConfig
}

// NewShellExecutor builds a ShellExecutor, applying defaults for an
// unconfigured timeout or output cap.
func NewShellExecutor(cfg ShellConfig) *ShellExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultShellTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = maxShellOutput
	}
	return &ShellExecutor{cfg: cfg}
}

// ShellDescriptor describes the core_shell skill: one tool, disabled in
// group contexts.
func ShellDescriptor() skill.Descriptor {
	return skill.Descriptor{
		ID:          ShellSkillID,
		Name:        "core_shell",
		Description: "Run an allow-listed shell command and return its output",
		Doc:         "core_shell runs one allow-listed command with a timeout; use it for local inspection tasks, never to fetch or execute untrusted code.",
		GroupDisabled: true,
		Tools: []skill.ToolDescriptor{{
			Name:        toolShell,
			Description: "Execute an allow-listed shell command and return combined stdout/stderr",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "The command name (must be on the allow-list)",
					},
					"args": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Command arguments",
					},
				},
				"required": []string{"command"},
			},
		}},
	}
}

// Execute implements skill.Executor.
func (e *ShellExecutor) Execute(ctx context.Context, _ agentctx.Context, toolName string, args map[string]any) (string, error) {
	if toolName != toolShell {
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
	command, err := skill.RequireString(args, "command")
	if err != nil {
		return "", err
	}
	if !e.cfg.allowed(command) {
		return "", fmt.Errorf("command %q is not on the allow-list", command)
	}

	var cmdArgs []string
	if raw, ok := args["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				cmdArgs = append(cmdArgs, s)
			}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, cmdArgs...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	runErr := cmd.Run()

	output := out.String()
	if len(output) > e.cfg.MaxOutputBytes {
		output = output[:e.cfg.MaxOutputBytes] + "\n...[truncated]"
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command %q timed out after %s", command, e.cfg.Timeout)
	}
	if runErr != nil {
		return "", fmt.Errorf("command %q failed: %w\noutput: %s", command, runErr, strings.TrimSpace(output))
	}
	return output, nil
}
