package mesh

import (
	"errors"
	"testing"
)

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ErrProvider{Provider: "openai", Status: 429, Message: "rate limited"}, `openai: http 429: rate limited`},
		{&ErrTransport{Provider: "anthropic", Err: errors.New("dial tcp: refused")}, `anthropic: transport: dial tcp: refused`},
		{&ErrStepLimit{Scope: "agent", Limit: 10}, `agent step limit reached (10)`},
		{&ErrStepLimit{Scope: "team", Limit: 20}, `team step limit reached (20)`},
		{&ErrConfig{Kind: "tool", Name: "bash"}, `unknown tool: "bash"`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrTransportUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &ErrTransport{Provider: "openai", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Unwrap does not reach the inner error")
	}
}
