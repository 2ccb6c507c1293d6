package mesh

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitAdmitsUnderBudget(t *testing.T) {
	inner := &scriptedModel{decisions: []ModelResponse{{Content: "a"}, {Content: "b"}}}
	m := WithRateLimit(inner, RPM(10))

	for i := 0; i < 2; i++ {
		if _, err := m.Call(context.Background(), ModelRequest{}); err != nil {
			t.Fatalf("Call %d: %v", i, err)
		}
	}
	if inner.callCalls != 2 {
		t.Errorf("calls = %d, want 2", inner.callCalls)
	}
}

func TestRateLimitBlocksOverRPM(t *testing.T) {
	inner := &scriptedModel{}
	m := WithRateLimit(inner, RPM(1))

	if _, err := m.Call(context.Background(), ModelRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// The second call must block until the window slides or the context
	// gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.Call(ctx, ModelRequest{})
	if err != context.DeadlineExceeded {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if inner.callCalls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.callCalls)
	}
}

func TestRateLimitBlocksOverTPM(t *testing.T) {
	inner := &scriptedModel{decisions: []ModelResponse{
		{Content: "big", Usage: Usage{PromptTokens: 900, CompletionTokens: 200}},
	}}
	m := WithRateLimit(inner, TPM(1000))

	if _, err := m.Call(context.Background(), ModelRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.Call(ctx, ModelRequest{}); err != context.DeadlineExceeded {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestRateLimitStreamForwardsAndRecordsUsage(t *testing.T) {
	stream := finalStream("hi")
	stream[len(stream)-1].Usage = &Usage{PromptTokens: 800, CompletionTokens: 300}
	inner := &scriptedModel{streams: [][]Chunk{stream}}
	m := WithRateLimit(inner, TPM(1000))

	ch := make(chan Chunk, 16)
	if err := m.CallStream(context.Background(), ModelRequest{}, ch); err != nil {
		t.Fatalf("CallStream: %v", err)
	}
	n := 0
	for range ch {
		n++
	}
	if n != 2 {
		t.Errorf("chunks = %d, want 2", n)
	}

	// The recorded stream usage now blocks the next call.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.Call(ctx, ModelRequest{}); err != context.DeadlineExceeded {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestRateLimitUnlimitedByDefault(t *testing.T) {
	inner := &scriptedModel{}
	m := WithRateLimit(inner)
	for i := 0; i < 5; i++ {
		if _, err := m.Call(context.Background(), ModelRequest{}); err != nil {
			t.Fatalf("Call %d: %v", i, err)
		}
	}
}
