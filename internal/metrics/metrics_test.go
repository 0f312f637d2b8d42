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

package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unstableneutron/oracle/pkg/backend"
)

type stubClient struct {
	streamFn   func(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error)
	createFn   func(ctx context.Context, req backend.Request) (*backend.Job, error)
	retrieveFn func(ctx context.Context, id string) (*backend.Response, error)
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Stream(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error) {
	return s.streamFn(ctx, req)
}

func (s *stubClient) Create(ctx context.Context, req backend.Request) (*backend.Job, error) {
	return s.createFn(ctx, req)
}

func (s *stubClient) Retrieve(ctx context.Context, id string) (*backend.Response, error) {
	return s.retrieveFn(ctx, id)
}

func TestStreamCountsTokensAndOutcome(t *testing.T) {
	stub := &stubClient{
		streamFn: func(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error) {
			ch := make(chan backend.StreamEvent, 2)
			ch <- backend.StreamEvent{Delta: "hi"}
			ch <- backend.StreamEvent{Response: &backend.Response{
				Status: backend.StatusCompleted,
				Usage:  backend.Usage{InputTokens: 10, OutputTokens: 5, ReasoningTokens: 2},
			}}
			close(ch)
			return ch, nil
		},
	}
	m := New()
	client := m.InstrumentClient(stub)

	events, err := client.Stream(context.Background(), backend.Request{Model: "gpt-5.2"})
	require.NoError(t, err)
	for range events {
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("stub", "gpt-5.2", "stream", "ok")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.tokens.WithLabelValues("stub", "gpt-5.2", "input")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.tokens.WithLabelValues("stub", "gpt-5.2", "output")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.tokens.WithLabelValues("stub", "gpt-5.2", "reasoning")))
}

func TestStreamErrorOutcome(t *testing.T) {
	stub := &stubClient{
		streamFn: func(ctx context.Context, req backend.Request) (<-chan backend.StreamEvent, error) {
			ch := make(chan backend.StreamEvent, 1)
			ch <- backend.StreamEvent{Err: assert.AnError}
			close(ch)
			return ch, nil
		},
	}
	m := New()
	client := m.InstrumentClient(stub)

	events, err := client.Stream(context.Background(), backend.Request{Model: "gpt-5.2"})
	require.NoError(t, err)
	for range events {
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("stub", "gpt-5.2", "stream", "error")))
}

func TestCreateAndRetrieveCounted(t *testing.T) {
	stub := &stubClient{
		createFn: func(ctx context.Context, req backend.Request) (*backend.Job, error) {
			return &backend.Job{ID: "resp_1", Status: backend.StatusQueued}, nil
		},
		retrieveFn: func(ctx context.Context, id string) (*backend.Response, error) {
			return &backend.Response{
				Model:  "gpt-5.2-pro",
				Status: backend.StatusCompleted,
				Usage:  backend.Usage{InputTokens: 7, OutputTokens: 3},
			}, nil
		},
	}
	m := New()
	client := m.InstrumentClient(stub)
	ctx := context.Background()

	_, err := client.Create(ctx, backend.Request{Model: "gpt-5.2-pro"})
	require.NoError(t, err)
	_, err = client.Retrieve(ctx, "resp_1")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("stub", "gpt-5.2-pro", "create", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("stub", "", "retrieve", "ok")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.tokens.WithLabelValues("stub", "gpt-5.2-pro", "input")))
}

func TestRetrieveErrorCounted(t *testing.T) {
	stub := &stubClient{
		retrieveFn: func(ctx context.Context, id string) (*backend.Response, error) {
			return nil, assert.AnError
		},
	}
	m := New()
	client := m.InstrumentClient(stub)

	_, err := client.Retrieve(context.Background(), "resp_1")
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("stub", "", "retrieve", "error")))
}
