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

// Package session persists run state and per-model output logs so a caller
// can inspect in-flight or completed work after the process that started it
// has moved on.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unstableneutron/oracle/pkg/errors"
	"github.com/unstableneutron/oracle/pkg/oracle"
)

// Compile-time interface assertion.
var _ oracle.StatusStore = (*Store)(nil)

// Store is a SQLite-backed session state store with file-based output logs.
type Store struct {
	db      *sql.DB
	logsDir string
}

// Config contains store configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// LogsDir is the directory for per-model output logs. Defaults to a
	// "logs" directory next to the database file.
	LogsDir string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens the store, creating the database and logs directory as needed.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, &errors.ConfigError{Key: "session.path", Reason: "database path is required"}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logsDir := cfg.LogsDir
	if logsDir == "" {
		logsDir = filepath.Join(filepath.Dir(cfg.Path), "logs")
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, logsDir: logsDir}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// configurePragmas sets SQLite configuration options.
func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000", // 5 second timeout for lock contention
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			run_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			message TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS model_runs (
			run_id TEXT NOT NULL,
			model TEXT NOT NULL,
			state TEXT NOT NULL,
			message TEXT,
			input_tokens INTEGER DEFAULT 0,
			output_tokens INTEGER DEFAULT 0,
			reasoning_tokens INTEGER DEFAULT 0,
			total_tokens INTEGER DEFAULT 0,
			cost REAL,
			log_path TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (run_id, model)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
		`CREATE INDEX IF NOT EXISTS idx_model_runs_run_id ON model_runs(run_id)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// UpdateSessionStatus upserts the session-level state.
func (s *Store) UpdateSessionStatus(ctx context.Context, runID string, patch oracle.StatusPatch) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (run_id, state, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			state = excluded.state,
			message = CASE WHEN excluded.message != '' THEN excluded.message ELSE sessions.message END,
			updated_at = excluded.updated_at`,
		runID, string(patch.State), patch.Message, now, now)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", runID, err)
	}
	return nil
}

// UpdateModelRunStatus upserts one model's state within the session.
func (s *Store) UpdateModelRunStatus(ctx context.Context, runID, model string, patch oracle.StatusPatch) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var inputTokens, outputTokens, reasoningTokens, totalTokens int
	var cost sql.NullFloat64
	if patch.Usage != nil {
		inputTokens = patch.Usage.InputTokens
		outputTokens = patch.Usage.OutputTokens
		reasoningTokens = patch.Usage.ReasoningTokens
		totalTokens = patch.Usage.TotalTokens
		if patch.Usage.Cost != nil {
			cost = sql.NullFloat64{Float64: *patch.Usage.Cost, Valid: true}
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_runs (run_id, model, state, message, input_tokens, output_tokens,
			reasoning_tokens, total_tokens, cost, log_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, model) DO UPDATE SET
			state = excluded.state,
			message = CASE WHEN excluded.message != '' THEN excluded.message ELSE model_runs.message END,
			input_tokens = CASE WHEN excluded.total_tokens > 0 THEN excluded.input_tokens ELSE model_runs.input_tokens END,
			output_tokens = CASE WHEN excluded.total_tokens > 0 THEN excluded.output_tokens ELSE model_runs.output_tokens END,
			reasoning_tokens = CASE WHEN excluded.total_tokens > 0 THEN excluded.reasoning_tokens ELSE model_runs.reasoning_tokens END,
			total_tokens = CASE WHEN excluded.total_tokens > 0 THEN excluded.total_tokens ELSE model_runs.total_tokens END,
			cost = COALESCE(excluded.cost, model_runs.cost),
			log_path = CASE WHEN excluded.log_path != '' THEN excluded.log_path ELSE model_runs.log_path END,
			updated_at = excluded.updated_at`,
		runID, model, string(patch.State), patch.Message,
		inputTokens, outputTokens, reasoningTokens, totalTokens,
		cost, patch.LogLocator, now, now)
	if err != nil {
		return fmt.Errorf("failed to update model run %s/%s: %w", runID, model, err)
	}
	return nil
}

// CreateLogWriter opens a per-model output log file under the logs
// directory. The locator is the file path.
func (s *Store) CreateLogWriter(runID, model string) (oracle.LogWriter, error) {
	dir := filepath.Join(s.logsDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, sanitizeFilename(model)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &fileLogWriter{f: f, path: path}, nil
}

// SessionRecord is one session row.
type SessionRecord struct {
	RunID     string
	State     oracle.RunState
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ModelRunRecord is one model run row.
type ModelRunRecord struct {
	RunID     string
	Model     string
	State     oracle.RunState
	Message   string
	Usage     oracle.UsageSummary
	LogPath   string
	UpdatedAt time.Time
}

// GetSession returns one session by run ID.
func (s *Store) GetSession(ctx context.Context, runID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, state, COALESCE(message, ''), created_at, updated_at
		FROM sessions WHERE run_id = ?`, runID)

	var rec SessionRecord
	var createdAt, updatedAt string
	if err := row.Scan(&rec.RunID, &rec.State, &rec.Message, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &errors.NotFoundError{Resource: "session", ID: runID}
		}
		return nil, fmt.Errorf("failed to load session %s: %w", runID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// ListModelRuns returns the per-model rows for one session, ordered by model.
func (s *Store) ListModelRuns(ctx context.Context, runID string) ([]ModelRunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, model, state, COALESCE(message, ''), input_tokens, output_tokens,
			reasoning_tokens, total_tokens, cost, COALESCE(log_path, ''), updated_at
		FROM model_runs WHERE run_id = ? ORDER BY model`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list model runs for %s: %w", runID, err)
	}
	defer rows.Close()

	var records []ModelRunRecord
	for rows.Next() {
		var rec ModelRunRecord
		var cost sql.NullFloat64
		var updatedAt string
		if err := rows.Scan(&rec.RunID, &rec.Model, &rec.State, &rec.Message,
			&rec.Usage.InputTokens, &rec.Usage.OutputTokens,
			&rec.Usage.ReasoningTokens, &rec.Usage.TotalTokens,
			&cost, &rec.LogPath, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan model run: %w", err)
		}
		if cost.Valid {
			c := cost.Float64
			rec.Usage.Cost = &c
		}
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, state, COALESCE(message, ''), created_at, updated_at
		FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.RunID, &rec.State, &rec.Message, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// sanitizeFilename replaces path separators in model identifiers.
func sanitizeFilename(name string) string {
	out := []rune(name)
	for i, r := range out {
		switch r {
		case '/', '\\', ':':
			out[i] = '_'
		}
	}
	return string(out)
}
