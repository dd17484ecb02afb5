// Package skill holds the static skill registry: a fixed id -> executor
// map built at startup (no runtime plugin loading), the tool-name ->
// skill-id index multi-tool skills need, and group-context filtering.
// internal/skill/builtin implements the concrete executors.
package skill

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/merrors"
	"github.com/mooassistant/moo/internal/model"
)

// ToolDescriptor is the JSON-Schema-subset shape exposed to the model.
type ToolDescriptor = model.ToolSchema

// Descriptor describes one registered skill: its identity, an optional doc
// string injected into the system prompt, the tools it exposes, and
// whether it is implicitly disabled in group contexts.
type Descriptor struct {
	ID            string
	Name          string
	Description   string
	Doc           string
	Tools         []ToolDescriptor
	GroupDisabled bool
}

// Executor runs one of a skill's tools. A returned error is captured by the
// Registry and turned into a {"error": "..."} string; it must never
// propagate past Dispatch.
type Executor interface {
	Execute(ctx context.Context, actx agentctx.Context, toolName string, args map[string]any) (string, error)
}

type entry struct {
	descriptor Descriptor
	executor   Executor
}

// Registry is the immutable-after-startup id -> executor map plus the
// tool-name -> skill-id index.
type Registry struct {
	skills    map[string]entry
	toolOwner map[string]string // tool name -> skill id
	order     []string          // registration order, for stable tool listing
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		skills:    map[string]entry{},
		toolOwner: map[string]string{},
	}
}

// Register adds a skill's descriptor and executor, indexing each of its
// tools by name. It panics on a duplicate skill id or tool name: both are
// programming errors fixed at startup wiring, never at runtime.
func (r *Registry) Register(d Descriptor, e Executor) {
	if _, exists := r.skills[d.ID]; exists {
		panic(fmt.Sprintf("skill: duplicate skill id %q", d.ID))
	}
	for _, t := range d.Tools {
		if owner, exists := r.toolOwner[t.Name]; exists {
			panic(fmt.Sprintf("skill: tool %q already owned by skill %q", t.Name, owner))
		}
		r.toolOwner[t.Name] = d.ID
	}
	r.skills[d.ID] = entry{descriptor: d, executor: e}
	r.order = append(r.order, d.ID)
}

// Tools returns the JSON-Schema-subset tool list for every skill in
// enabledIDs, excluding group-disabled skills when isGroup is true.
func (r *Registry) Tools(enabledIDs []string, isGroup bool) []ToolDescriptor {
	enabled := make(map[string]struct{}, len(enabledIDs))
	for _, id := range enabledIDs {
		enabled[id] = struct{}{}
	}
	var out []ToolDescriptor
	for _, id := range r.order {
		if _, ok := enabled[id]; !ok {
			continue
		}
		e := r.skills[id]
		if isGroup && e.descriptor.GroupDisabled {
			continue
		}
		out = append(out, e.descriptor.Tools...)
	}
	return out
}

// Docs returns the non-empty skill docs for enabledIDs, in registration
// order, for injection into the system prompt.
func (r *Registry) Docs(enabledIDs []string, isGroup bool) []string {
	enabled := make(map[string]struct{}, len(enabledIDs))
	for _, id := range enabledIDs {
		enabled[id] = struct{}{}
	}
	var out []string
	for _, id := range r.order {
		if _, ok := enabled[id]; !ok {
			continue
		}
		e := r.skills[id]
		if isGroup && e.descriptor.GroupDisabled {
			continue
		}
		if e.descriptor.Doc != "" {
			out = append(out, e.descriptor.Doc)
		}
	}
	return out
}

// Dispatch resolves toolName to its owning skill and runs it, converting
// any error (unknown tool, group-disabled, or an executor failure) into
// the `{"error": "..."}` string contract so the agent loop can feed it
// back to the model as a tool result rather than aborting the turn.
func (r *Registry) Dispatch(ctx context.Context, actx agentctx.Context, enabledIDs []string, toolName string, args map[string]any) string {
	result, err := r.dispatch(ctx, actx, enabledIDs, toolName, args)
	if err != nil {
		return errorJSON(err)
	}
	return result
}

func (r *Registry) dispatch(ctx context.Context, actx agentctx.Context, enabledIDs []string, toolName string, args map[string]any) (string, error) {
	skillID, ok := r.toolOwner[toolName]
	if !ok {
		return "", merrors.NewToolContractError(toolName, fmt.Errorf("unknown tool"))
	}
	enabled := false
	for _, id := range enabledIDs {
		if id == skillID {
			enabled = true
			break
		}
	}
	if !enabled {
		return "", merrors.NewToolContractError(toolName, fmt.Errorf("skill %q is not enabled", skillID))
	}
	e, ok := r.skills[skillID]
	if !ok {
		return "", merrors.NewToolContractError(toolName, fmt.Errorf("unknown skill %q", skillID))
	}
	if actx.IsGroup && e.descriptor.GroupDisabled {
		return "", merrors.NewToolContractError(toolName, fmt.Errorf("skill %q is disabled in group chats", skillID))
	}

	result, err := e.executor.Execute(ctx, actx, toolName, args)
	if err != nil {
		return "", merrors.NewSkillError(skillID, err)
	}
	return result, nil
}

func errorJSON(err error) string {
	data, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
