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

package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unstableneutron/oracle/pkg/errors"
	"github.com/unstableneutron/oracle/pkg/oracle"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{Path: filepath.Join(t.TempDir(), "oracle.db"), WAL: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateSessionStatus(ctx, "run-1", oracle.StatusPatch{State: oracle.RunStateRunning}))

	rec, err := store.GetSession(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, oracle.RunStateRunning, rec.State)

	require.NoError(t, store.UpdateSessionStatus(ctx, "run-1", oracle.StatusPatch{
		State:   oracle.RunStateError,
		Message: "gpt-5.2: transport failure",
	}))

	rec, err = store.GetSession(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, oracle.RunStateError, rec.State)
	assert.Equal(t, "gpt-5.2: transport failure", rec.Message)
}

func TestSessionUpdateKeepsEarlierMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateSessionStatus(ctx, "run-1", oracle.StatusPatch{
		State:   oracle.RunStateError,
		Message: "something broke",
	}))
	require.NoError(t, store.UpdateSessionStatus(ctx, "run-1", oracle.StatusPatch{State: oracle.RunStateError}))

	rec, err := store.GetSession(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "something broke", rec.Message)
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession(context.Background(), "nope")

	var nfe *errors.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "session", nfe.Resource)
}

func TestModelRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateModelRunStatus(ctx, "run-1", "gpt-5.2", oracle.StatusPatch{
		State:      oracle.RunStateRunning,
		LogLocator: "/tmp/logs/run-1/gpt-5.2.log",
	}))

	cost := 0.0125
	require.NoError(t, store.UpdateModelRunStatus(ctx, "run-1", "gpt-5.2", oracle.StatusPatch{
		State: oracle.RunStateCompleted,
		Usage: &oracle.UsageSummary{InputTokens: 100, OutputTokens: 40, TotalTokens: 140, Cost: &cost},
	}))

	runs, err := store.ListModelRuns(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, oracle.RunStateCompleted, runs[0].State)
	assert.Equal(t, 140, runs[0].Usage.TotalTokens)
	require.NotNil(t, runs[0].Usage.Cost)
	assert.InDelta(t, cost, *runs[0].Usage.Cost, 1e-9)
	// Completion without a locator keeps the one recorded at dispatch.
	assert.Equal(t, "/tmp/logs/run-1/gpt-5.2.log", runs[0].LogPath)
}

func TestListModelRunsOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, model := range []string{"gpt-5.2-pro", "gpt-5.2", "gpt-5.2-mini"} {
		require.NoError(t, store.UpdateModelRunStatus(ctx, "run-1", model, oracle.StatusPatch{State: oracle.RunStateRunning}))
	}

	runs, err := store.ListModelRuns(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "gpt-5.2", runs[0].Model)
	assert.Equal(t, "gpt-5.2-mini", runs[1].Model)
	assert.Equal(t, "gpt-5.2-pro", runs[2].Model)
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateSessionStatus(ctx, "run-a", oracle.StatusPatch{State: oracle.RunStateCompleted}))
	require.NoError(t, store.UpdateSessionStatus(ctx, "run-b", oracle.StatusPatch{State: oracle.RunStateRunning}))

	sessions, err := store.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestCreateLogWriterWritesFile(t *testing.T) {
	store := newTestStore(t)

	lw, err := store.CreateLogWriter("run-1", "gpt-5.2")
	require.NoError(t, err)

	require.NoError(t, lw.WriteChunk("Hello "))
	require.NoError(t, lw.WriteChunk("world"))
	require.NoError(t, lw.WriteLine(""))
	require.NoError(t, lw.Close())

	data, err := os.ReadFile(lw.Locator())
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", string(data))
}

func TestCreateLogWriterSanitizesModelName(t *testing.T) {
	store := newTestStore(t)

	lw, err := store.CreateLogWriter("run-1", "org/model:v1")
	require.NoError(t, err)
	defer lw.Close()

	assert.Equal(t, "org_model_v1.log", filepath.Base(lw.Locator()))
}
