package skill_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/skill"
)

type echoExecutor struct {
	err error
}

func (e echoExecutor) Execute(ctx context.Context, actx agentctx.Context, toolName string, args map[string]any) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return "ran " + toolName, nil
}

func descriptor(id string, groupDisabled bool, tools ...string) skill.Descriptor {
	d := skill.Descriptor{ID: id, Name: id, GroupDisabled: groupDisabled, Doc: id + " doc"}
	for _, t := range tools {
		d.Tools = append(d.Tools, skill.ToolDescriptor{Name: t, Parameters: map[string]any{"type": "object"}})
	}
	return d
}

func TestDispatchRoutesToolNameToOwningSkill(t *testing.T) {
	r := skill.NewRegistry()
	r.Register(descriptor("mem", false, "memory_search", "memory_get"), echoExecutor{})

	got := r.Dispatch(context.Background(), agentctx.Context{}, []string{"mem"}, "memory_get", nil)
	require.Equal(t, "ran memory_get", got)
}

func TestDispatchUnknownToolReturnsErrorJSON(t *testing.T) {
	r := skill.NewRegistry()
	got := r.Dispatch(context.Background(), agentctx.Context{}, nil, "nope", nil)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &payload))
	require.Contains(t, payload["error"], "unknown tool")
}

func TestDispatchExecutorFailureNeverPropagates(t *testing.T) {
	r := skill.NewRegistry()
	r.Register(descriptor("boom", false, "boom"), echoExecutor{err: errors.New("kaput")})

	got := r.Dispatch(context.Background(), agentctx.Context{}, []string{"boom"}, "boom", nil)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &payload))
	require.Contains(t, payload["error"], "kaput")
}

func TestDispatchRefusesDisabledSkill(t *testing.T) {
	r := skill.NewRegistry()
	r.Register(descriptor("shell", false, "shell"), echoExecutor{})

	got := r.Dispatch(context.Background(), agentctx.Context{}, []string{"other"}, "shell", nil)
	require.Contains(t, got, "not enabled")
}

func TestDispatchRefusesGroupDisabledSkillInGroups(t *testing.T) {
	r := skill.NewRegistry()
	r.Register(descriptor("shell", true, "shell"), echoExecutor{})

	got := r.Dispatch(context.Background(), agentctx.Context{IsGroup: true}, []string{"shell"}, "shell", nil)
	require.Contains(t, got, "disabled in group chats")

	got = r.Dispatch(context.Background(), agentctx.Context{IsGroup: false}, []string{"shell"}, "shell", nil)
	require.Equal(t, "ran shell", got)
}

func TestToolsFiltersByEnabledSetAndGroupContext(t *testing.T) {
	r := skill.NewRegistry()
	r.Register(descriptor("shell", true, "shell"), echoExecutor{})
	r.Register(descriptor("mem", false, "memory_search", "memory_get"), echoExecutor{})
	r.Register(descriptor("web", false, "web_fetch"), echoExecutor{})

	names := func(tools []skill.ToolDescriptor) []string {
		var out []string
		for _, t := range tools {
			out = append(out, t.Name)
		}
		return out
	}

	require.Equal(t, []string{"shell", "memory_search", "memory_get"},
		names(r.Tools([]string{"shell", "mem"}, false)))
	require.Equal(t, []string{"memory_search", "memory_get"},
		names(r.Tools([]string{"shell", "mem"}, true)))
	require.Empty(t, r.Tools(nil, false))
}

func TestRegisterPanicsOnDuplicates(t *testing.T) {
	r := skill.NewRegistry()
	r.Register(descriptor("a", false, "x"), echoExecutor{})

	require.Panics(t, func() { r.Register(descriptor("a", false, "y"), echoExecutor{}) })
	require.Panics(t, func() { r.Register(descriptor("b", false, "x"), echoExecutor{}) })
}

func TestDocsFollowRegistrationOrder(t *testing.T) {
	r := skill.NewRegistry()
	r.Register(descriptor("b", false, "b1"), echoExecutor{})
	r.Register(descriptor("a", false, "a1"), echoExecutor{})

	require.Equal(t, []string{"b doc", "a doc"}, r.Docs([]string{"a", "b"}, false))
}
