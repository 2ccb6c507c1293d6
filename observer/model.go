package observer

import (
	"context"
	"time"

	mesh "github.com/nevindra/mesh"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedModel wraps a mesh.Model with OTEL instrumentation.
type ObservedModel struct {
	inner mesh.Model
	inst  *Instruments
	model string
}

// WrapModel returns an instrumented model that emits traces, metrics, and
// logs for every call.
func WrapModel(inner mesh.Model, model string, inst *Instruments) *ObservedModel {
	return &ObservedModel{inner: inner, inst: inst, model: model}
}

var _ mesh.Model = (*ObservedModel)(nil)

func (o *ObservedModel) Name() string { return o.inner.Name() }

func (o *ObservedModel) Call(ctx context.Context, req mesh.ModelRequest) (mesh.ModelResponse, error) {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(
			AttrLLMModel.String(o.model),
			AttrLLMProvider.String(o.inner.Name()),
		),
	}
	spanName := "llm.call"
	method := "call"
	if len(req.Tools) > 0 {
		toolNames := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			toolNames[i] = t.Name
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(toolNames),
		))
		spanName = "llm.call_with_tools"
		method = "call_with_tools"
	}

	ctx, span := o.inst.Tracer.Start(ctx, spanName, spanAttrs...)
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Call(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.record(ctx, span, method, status, durationMs, resp.Usage)
	return resp, err
}

func (o *ObservedModel) CallStream(ctx context.Context, req mesh.ModelRequest, ch chan<- mesh.Chunk) error {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.call_stream", trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	// Forward through a buffered channel so chunk counting never blocks the
	// inner provider's sends.
	bufSize := max(cap(ch), 64)
	wrappedCh := make(chan mesh.Chunk, bufSize)
	chunks := 0
	var usage mesh.Usage
	sawError := false
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for c := range wrappedCh {
			chunks++
			if c.Type == mesh.ChunkFinish && c.Usage != nil {
				usage = *c.Usage
			}
			if c.Type == mesh.ChunkError {
				sawError = true
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	err := o.inner.CallStream(ctx, req, wrappedCh)
	<-done

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if sawError {
		status = "stream_error"
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(AttrStreamChunks.Int(chunks))
	o.record(ctx, span, "call_stream", status, durationMs, usage)
	return err
}

func (o *ObservedModel) record(ctx context.Context, span trace.Span, method, status string, durationMs float64, usage mesh.Usage) {
	attrs := metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
	)

	span.SetAttributes(
		AttrTokensInput.Int(usage.PromptTokens),
		AttrTokensOutput.Int(usage.CompletionTokens),
	)

	o.inst.TokenUsage.Add(ctx, int64(usage.PromptTokens), metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(usage.CompletionTokens), metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "output"),
	))
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.LLMDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.String("llm.method", method),
		otellog.Int("llm.tokens.input", usage.PromptTokens),
		otellog.Int("llm.tokens.output", usage.CompletionTokens),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}
