// Package merrors defines the error taxonomy shared across moo's packages.
//
// Every error raised below the agent loop is one of these kinds. The agent
// loop and the transport bridge are the only places that convert a kind into
// a tool-result string or a user-facing sentence; nothing else is expected
// to inspect these types directly other than with errors.As.
package merrors

import "fmt"

// ConfigError wraps a fatal startup configuration problem: a missing
// required field, malformed JSON, or an unresolved env reference.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError for the named field.
func NewConfigError(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}

// ProviderError wraps an HTTP/transport failure or malformed response from
// the LLM or another external service.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider error: %v", e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError for the named provider.
func NewProviderError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

// ToolContractError means the model called an unknown tool, or supplied
// arguments that fail the tool's schema. It is returned to the model as a
// tool-result string so it can self-correct, and counts against the
// per-turn iteration cap.
type ToolContractError struct {
	Tool string
	Err  error
}

func (e *ToolContractError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolContractError) Unwrap() error { return e.Err }

// NewToolContractError builds a ToolContractError for the named tool.
func NewToolContractError(tool string, err error) error {
	return &ToolContractError{Tool: tool, Err: err}
}

// SkillError wraps a failure raised by a skill executor. The registry
// captures it and returns {"error": "..."} to the agent loop; it never
// propagates past Dispatch.
type SkillError struct {
	Skill string
	Err   error
}

func (e *SkillError) Error() string {
	return fmt.Sprintf("skill %s: %v", e.Skill, e.Err)
}

func (e *SkillError) Unwrap() error { return e.Err }

// NewSkillError builds a SkillError for the named skill.
func NewSkillError(skill string, err error) error {
	return &SkillError{Skill: skill, Err: err}
}

// TransportError means sending the final reply failed. Live chat logs it
// with no retry; cron drives its 5s/15s retry policy off it.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError builds a TransportError for the named transport.
func NewTransportError(transport string, err error) error {
	return &TransportError{Transport: transport, Err: err}
}

// StoreError means a cron or index persistence write/read failed. It is
// treated as ProviderError-equivalent for the current turn; the next
// successful write reconciles state.
type StoreError struct {
	Store string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Store, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError builds a StoreError for the named store.
func NewStoreError(store string, err error) error {
	return &StoreError{Store: store, Err: err}
}
