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

// Package metrics instruments backend clients with Prometheus counters and
// histograms.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unstableneutron/oracle/pkg/backend"
)

// Metrics holds the collectors for backend call instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_backend_requests_total",
			Help: "Total backend API operations by outcome.",
		}, []string{"backend", "model", "operation", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_tokens_total",
			Help: "Total tokens reported by backends.",
		}, []string{"backend", "model", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oracle_backend_operation_duration_seconds",
			Help:    "Backend operation duration in seconds.",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"backend", "model", "operation"}),
	}
	m.registry.MustRegister(m.requests, m.tokens, m.duration)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for tests and composition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// InstrumentClient wraps a backend client so every operation is counted and
// timed.
func (m *Metrics) InstrumentClient(c backend.Client) backend.Client {
	return &instrumentedClient{inner: c, metrics: m}
}

type instrumentedClient struct {
	inner   backend.Client
	metrics *Metrics
}

func (c *instrumentedClient) Name() string {
	return c.inner.Name()
}

// Stream relays events through a counting goroutine; the duration sample
// covers the whole stream, not just connection setup.
func (c *instrumentedClient) Stream(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error) {
	start := time.Now()
	events, err := c.inner.Stream(ctx, req)
	if err != nil {
		c.observe("stream", req.Model, "error", start)
		return nil, err
	}

	out := make(chan backend.StreamEvent, cap(events))
	go func() {
		defer close(out)
		outcome := "ok"
		for ev := range events {
			if ev.Err != nil {
				outcome = "error"
			}
			if ev.Response != nil {
				c.countTokens(req.Model, ev.Response.Usage)
			}
			out <- ev
		}
		c.observe("stream", req.Model, outcome, start)
	}()
	return out, nil
}

func (c *instrumentedClient) Create(ctx context.Context, req backend.Request) (*backend.Job, error) {
	start := time.Now()
	job, err := c.inner.Create(ctx, req)
	c.observe("create", req.Model, outcomeOf(err), start)
	return job, err
}

func (c *instrumentedClient) Retrieve(ctx context.Context, id string) (*backend.Response, error) {
	start := time.Now()
	resp, err := c.inner.Retrieve(ctx, id)
	c.observe("retrieve", "", outcomeOf(err), start)
	if err == nil && resp.Status == backend.StatusCompleted {
		c.countTokens(resp.Model, resp.Usage)
	}
	return resp, err
}

func (c *instrumentedClient) observe(operation, model, outcome string, start time.Time) {
	name := c.inner.Name()
	c.metrics.requests.WithLabelValues(name, model, operation, outcome).Inc()
	c.metrics.duration.WithLabelValues(name, model, operation).Observe(time.Since(start).Seconds())
}

func (c *instrumentedClient) countTokens(model string, usage backend.Usage) {
	name := c.inner.Name()
	c.metrics.tokens.WithLabelValues(name, model, "input").Add(float64(usage.InputTokens))
	c.metrics.tokens.WithLabelValues(name, model, "output").Add(float64(usage.OutputTokens))
	c.metrics.tokens.WithLabelValues(name, model, "reasoning").Add(float64(usage.ReasoningTokens))
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ backend.Client = (*instrumentedClient)(nil)
