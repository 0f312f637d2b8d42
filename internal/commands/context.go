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

package commands

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/unstableneutron/oracle/internal/format"
	"github.com/unstableneutron/oracle/pkg/errors"
)

// newRunID mints a fresh session identifier.
func newRunID() string {
	return uuid.New().String()
}

type contextKey string

const loggerKey contextKey = "logger"

func withLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// renderError formats a CLI-facing error, surfacing the suggestion when the
// error type carries one.
func renderError(err error) string {
	msg := format.StatusError.Render(format.SymbolError) + " " + err.Error()

	var suggestion string
	var ve *errors.ValidationError
	var be *errors.BackendError
	switch {
	case errors.As(err, &ve) && ve.Suggestion != "":
		suggestion = ve.Suggestion
	case errors.As(err, &be) && be.Suggestion != "":
		suggestion = be.Suggestion
	}
	if suggestion != "" {
		msg += "\n" + format.Muted.Render("  hint: "+suggestion)
	}
	return msg
}
