package mesh

import (
	"context"
	"sync"
	"time"
)

// rateLimitModel wraps a Model with proactive rate limiting over a sliding
// one-minute window. Calls block until the budget allows them.
type rateLimitModel struct {
	inner Model
	mu    sync.Mutex

	// Requests per minute: timestamps of admitted requests.
	rpm       int
	rpmWindow []time.Time

	// Tokens per minute: usage recorded after each completed call.
	tpm       int
	tpmWindow []tokenEntry
}

type tokenEntry struct {
	at     time.Time
	tokens int
}

// RateLimitOption configures a rate-limit wrapper.
type RateLimitOption func(*rateLimitModel)

// RPM sets the maximum requests per minute.
func RPM(n int) RateLimitOption {
	return func(r *rateLimitModel) { r.rpm = n }
}

// TPM sets the maximum tokens per minute, prompt and completion combined.
// The limit is soft: the call that crosses it completes, later calls block
// until the window slides.
func TPM(n int) RateLimitOption {
	return func(r *rateLimitModel) { r.tpm = n }
}

// WithRateLimit wraps m with proactive rate limiting. Composes with the
// other wrappers, typically outermost:
//
//	m = mesh.WithRateLimit(mesh.WithRetry(m), mesh.RPM(60))
func WithRateLimit(m Model, opts ...RateLimitOption) Model {
	r := &rateLimitModel{inner: m}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *rateLimitModel) Name() string { return r.inner.Name() }

func (r *rateLimitModel) Call(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	if err := r.waitForBudget(ctx); err != nil {
		return ModelResponse{}, err
	}
	resp, err := r.inner.Call(ctx, req)
	if err == nil {
		r.recordUsage(resp.Usage)
	}
	return resp, err
}

func (r *rateLimitModel) CallStream(ctx context.Context, req ModelRequest, ch chan<- Chunk) error {
	if err := r.waitForBudget(ctx); err != nil {
		close(ch)
		return err
	}

	// Forward the stream, capturing usage off the terminal chunk.
	mid := make(chan Chunk, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.inner.CallStream(ctx, req, mid)
	}()
	for chunk := range mid {
		if chunk.Type == ChunkFinish && chunk.Usage != nil {
			r.recordUsage(*chunk.Usage)
		}
		ch <- chunk
	}
	close(ch)
	return <-errCh
}

// waitForBudget blocks until both windows admit a request.
func (r *rateLimitModel) waitForBudget(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Minute)

		r.rpmWindow = pruneTimes(r.rpmWindow, cutoff)
		r.tpmWindow = pruneTokens(r.tpmWindow, cutoff)

		rpmOK := r.rpm <= 0 || len(r.rpmWindow) < r.rpm
		tpmOK := true
		if r.tpm > 0 {
			total := 0
			for _, e := range r.tpmWindow {
				total += e.tokens
			}
			tpmOK = total < r.tpm
		}

		if rpmOK && tpmOK {
			if r.rpm > 0 {
				r.rpmWindow = append(r.rpmWindow, now)
			}
			r.mu.Unlock()
			return nil
		}

		// Wait until the oldest blocking entry leaves the window.
		var wait time.Duration
		if !rpmOK && len(r.rpmWindow) > 0 {
			wait = r.rpmWindow[0].Add(time.Minute).Sub(now)
		}
		if !tpmOK && len(r.tpmWindow) > 0 {
			w := r.tpmWindow[0].at.Add(time.Minute).Sub(now)
			if wait == 0 || w < wait {
				wait = w
			}
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *rateLimitModel) recordUsage(u Usage) {
	if r.tpm <= 0 {
		return
	}
	total := u.PromptTokens + u.CompletionTokens
	if total <= 0 {
		total = u.TotalTokens
	}
	if total <= 0 {
		return
	}
	r.mu.Lock()
	r.tpmWindow = append(r.tpmWindow, tokenEntry{at: time.Now(), tokens: total})
	r.mu.Unlock()
}

func pruneTimes(s []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(s) && s[i].Before(cutoff) {
		i++
	}
	return s[i:]
}

func pruneTokens(s []tokenEntry, cutoff time.Time) []tokenEntry {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	return s[i:]
}

var _ Model = (*rateLimitModel)(nil)
