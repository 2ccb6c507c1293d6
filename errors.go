package mesh

import "fmt"

// ErrProvider reports a model API failure: a non-2xx status or an
// unparseable response body.
type ErrProvider struct {
	Provider string
	Status   int
	Message  string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, e.Message)
}

// ErrTransport reports a connection-level failure reaching the model API.
type ErrTransport struct {
	Provider string
	Err      error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Provider, e.Err)
}

func (e *ErrTransport) Unwrap() error { return e.Err }

// ErrStepLimit reports an exhausted step budget. Scope is "agent" or "team".
type ErrStepLimit struct {
	Scope string
	Limit int
}

func (e *ErrStepLimit) Error() string {
	return fmt.Sprintf("%s step limit reached (%d)", e.Scope, e.Limit)
}

// ErrConfig reports a reference to an unknown configuration entity.
// Kind is "team", "agent", "tool", "model", or "provider".
type ErrConfig struct {
	Kind string
	Name string
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("unknown %s: %q", e.Kind, e.Name)
}
