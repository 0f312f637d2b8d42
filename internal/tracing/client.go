// Copyright 2026 The Oracle Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing wraps backend clients with OpenTelemetry spans. Each
// operation produces one span carrying model, status, and token usage
// attributes; streaming spans stay open until the stream closes.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unstableneutron/oracle/pkg/backend"
)

const tracerName = "github.com/unstableneutron/oracle/internal/tracing"

// TracedClient wraps a backend client with tracing instrumentation.
type TracedClient struct {
	inner  backend.Client
	tracer trace.Tracer
}

// WrapClient instruments a backend client using the global tracer provider.
func WrapClient(c backend.Client) backend.Client {
	return &TracedClient{
		inner:  c,
		tracer: otel.Tracer(tracerName),
	}
}

// Name returns the underlying client's name.
func (t *TracedClient) Name() string {
	return t.inner.Name()
}

// Stream opens a span that spans the whole stream lifetime and relays
// events through it.
func (t *TracedClient) Stream(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error) {
	ctx, span := t.tracer.Start(ctx, "backend.stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(requestAttrs(t.inner.Name(), req)...),
	)

	events, err := t.inner.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	out := make(chan backend.StreamEvent, cap(events))
	go func() {
		defer close(out)
		defer span.End()
		for ev := range events {
			if ev.Err != nil {
				span.RecordError(ev.Err)
				span.SetStatus(codes.Error, ev.Err.Error())
			}
			if ev.Response != nil {
				span.SetAttributes(responseAttrs(ev.Response)...)
			}
			out <- ev
		}
	}()
	return out, nil
}

// Create traces background job submission.
func (t *TracedClient) Create(ctx context.Context, req backend.Request) (*backend.Job, error) {
	ctx, span := t.tracer.Start(ctx, "backend.create",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(requestAttrs(t.inner.Name(), req)...),
	)
	defer span.End()

	job, err := t.inner.Create(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("backend.job_id", job.ID),
		attribute.String("backend.job_status", string(job.Status)),
	)
	return job, nil
}

// Retrieve traces one status poll.
func (t *TracedClient) Retrieve(ctx context.Context, id string) (*backend.Response, error) {
	ctx, span := t.tracer.Start(ctx, "backend.retrieve",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("backend.name", t.inner.Name()),
			attribute.String("backend.response_id", id),
		),
	)
	defer span.End()

	resp, err := t.inner.Retrieve(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(responseAttrs(resp)...)
	return resp, nil
}

func requestAttrs(name string, req backend.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("backend.name", name),
		attribute.String("backend.model", req.Model),
		attribute.Bool("backend.background", req.Background),
		attribute.Bool("backend.web_search", req.WebSearch),
	}
	if req.MaxOutputTokens > 0 {
		attrs = append(attrs, attribute.Int("backend.max_output_tokens", req.MaxOutputTokens))
	}
	return attrs
}

func responseAttrs(resp *backend.Response) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("backend.response_status", string(resp.Status)),
		attribute.Int("backend.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("backend.usage.output_tokens", resp.Usage.OutputTokens),
		attribute.Int("backend.usage.reasoning_tokens", resp.Usage.ReasoningTokens),
		attribute.Int("backend.usage.total_tokens", resp.Usage.TotalTokens),
	}
}

var _ backend.Client = (*TracedClient)(nil)
