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

// Package commands implements the oracle CLI.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/unstableneutron/oracle/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records build-time version information.
func SetVersion(v, c, d string) {
	version, commit, buildDate = v, c, d
}

// NewRootCommand creates the root oracle command.
func NewRootCommand() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "oracle [prompt]",
		Short: "Ask one question to one or more models",
		Long: `Oracle sends a prompt to one or more LLM backends and streams the answers.

With a single model the answer streams straight to stdout. With several
models each answer is persisted to its own log and printed as it settles,
so a fast model is never blocked behind a slow one.

The prompt comes from the argument, or from stdin when piped:
  oracle "why is the sky blue"
  git diff | oracle -m gpt-5.2 -m gpt-5.2-pro "review this change"

Deep-reasoning models marked background-eligible in the catalog are
submitted as background jobs and polled, so a dropped connection cannot
lose a half-hour generation. Override per invocation with --background.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.models, "model", "m", nil, "Model to query (repeatable)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Per-model deadline (default from catalog)")
	flags.StringVar(&opts.background, "background", "", "Force background execution: true or false (default from catalog)")
	flags.IntVar(&opts.maxOutputTokens, "max-output-tokens", 0, "Cap response length")
	flags.BoolVar(&opts.search, "search", false, "Enable the backend web search tool")
	flags.StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")
	flags.StringVar(&opts.configPath, "config", "", "Model catalog overlay file (default $ORACLE_CONFIG)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Session state directory (default $ORACLE_DATA_DIR)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress banners and summaries")

	cmd.AddCommand(newModelsCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newSessionsCommand(opts))
	cmd.AddCommand(newAuthCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	logger := log.New(log.FromEnv())

	cmd := NewRootCommand()
	cmd.SetContext(withLogger(cmd.Context(), logger))

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		return 1
	}
	return 0
}

// defaultDataDir resolves the session state directory: flag, then
// ORACLE_DATA_DIR, then ~/.local/share/oracle.
func defaultDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if dir := os.Getenv("ORACLE_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oracle"
	}
	return filepath.Join(home, ".local", "share", "oracle")
}

// defaultConfigPath resolves the catalog overlay path.
func defaultConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("ORACLE_CONFIG")
}
