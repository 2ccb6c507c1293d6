package mesh

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryModel wraps a Model and retries transient failures (connection
// errors, HTTP 429/500/502/503) with exponential backoff.
type retryModel struct {
	inner       Model
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// RetryOption configures a retry wrapper.
type RetryOption func(*retryModel)

// RetryMaxAttempts sets the maximum number of attempts (default 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryModel) { r.maxAttempts = n }
}

// RetryBaseDelay sets the delay before the second attempt (default 1s).
// Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryModel) { r.baseDelay = d }
}

// RetryLogger sets the structured logger for retry events.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryModel) { r.logger = l }
}

// WithRetry wraps m with automatic retry on transient failures. Streams are
// only retried while no chunk has reached the caller; once content is out,
// errors pass through so no duplicate deltas are sent.
func WithRetry(m Model, opts ...RetryOption) Model {
	r := &retryModel{
		inner:       m,
		maxAttempts: 3,
		baseDelay:   time.Second,
		logger:      nopLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *retryModel) Name() string { return r.inner.Name() }

func (r *retryModel) Call(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		resp, err := r.inner.Call(ctx, req)
		if err == nil || !isTransient(err) {
			return resp, err
		}
		last = err
		r.logRetry(err, i)
		if i < r.maxAttempts-1 {
			if err := r.sleep(ctx, i); err != nil {
				return ModelResponse{}, err
			}
		}
	}
	r.logger.Error("retry: attempts exhausted", "provider", r.inner.Name(), "attempts", r.maxAttempts, "err", last)
	return ModelResponse{}, last
}

func (r *retryModel) CallStream(ctx context.Context, req ModelRequest, ch chan<- Chunk) error {
	defer close(ch)

	for i := 0; ; i++ {
		mid := make(chan Chunk, 16)
		errCh := make(chan error, 1)
		go func() {
			errCh <- r.inner.CallStream(ctx, req, mid)
		}()

		// A transient terminal chunk is held back; everything before it
		// means content reached the caller and a retry would duplicate it.
		var sent bool
		var held *Chunk
		for chunk := range mid {
			if chunk.Type == ChunkError && !sent && transientStatus(chunk.Status) {
				c := chunk
				held = &c
				continue
			}
			sent = true
			ch <- chunk
		}
		err := <-errCh

		retryable := !sent && i < r.maxAttempts-1 &&
			(held != nil || (err != nil && isTransient(err)))
		if !retryable {
			if held != nil {
				ch <- *held
			}
			if held != nil || sent {
				return err
			}
			if err != nil && isTransient(err) {
				r.logger.Error("retry: attempts exhausted", "provider", r.inner.Name(), "attempts", r.maxAttempts, "err", err)
			}
			return err
		}

		if held != nil {
			r.logRetry(&ErrProvider{Provider: r.inner.Name(), Status: held.Status, Message: held.Message}, i)
		} else {
			r.logRetry(err, i)
		}
		if err := r.sleep(ctx, i); err != nil {
			return err
		}
	}
}

func (r *retryModel) logRetry(err error, attempt int) {
	r.logger.Warn("retry: transient failure",
		"provider", r.inner.Name(),
		"attempt", attempt+1,
		"max_attempts", r.maxAttempts,
		"err", err)
}

// sleep waits out the backoff for attempt i, honoring cancellation.
func (r *retryModel) sleep(ctx context.Context, i int) error {
	timer := time.NewTimer(retryBackoff(r.baseDelay, i))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTransient reports whether err is worth retrying: any transport failure,
// or a provider error with a retryable status.
func isTransient(err error) bool {
	var te *ErrTransport
	if errors.As(err, &te) {
		return true
	}
	var pe *ErrProvider
	return errors.As(err, &pe) && transientStatus(pe.Status)
}

func transientStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503:
		return true
	}
	return false
}

// retryBackoff returns the delay for retry i (0-indexed): base * 2^i plus
// up to 50% jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

var _ Model = (*retryModel)(nil)
