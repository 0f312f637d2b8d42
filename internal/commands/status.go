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
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/unstableneutron/oracle/internal/format"
	"github.com/unstableneutron/oracle/internal/session"
	"github.com/unstableneutron/oracle/pkg/oracle"
)

func openStore(opts *askOptions) (*session.Store, error) {
	return session.New(session.Config{
		Path: filepath.Join(defaultDataDir(opts.dataDir), "oracle.db"),
		WAL:  true,
	})
}

// newStatusCommand shows one run's session and per-model state.
func newStatusCommand(opts *askOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			sess, err := store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			runs, err := store.ListModelRuns(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", sess.RunID, renderState(sess.State))
			if sess.Message != "" {
				fmt.Fprintln(out, format.Muted.Render("  "+sess.Message))
			}
			for _, run := range runs {
				fmt.Fprintf(out, "  %-16s %-10s %s tokens  %s\n",
					run.Model,
					renderState(run.State),
					format.Tokens(run.Usage.TotalTokens),
					format.Cost(run.Usage.Cost),
				)
				if run.LogPath != "" {
					fmt.Fprintln(out, format.Muted.Render("    log: "+run.LogPath))
				}
			}
			return nil
		},
	}
}

// newSessionsCommand lists recent runs.
func newSessionsCommand(opts *askOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, sess := range sessions {
				fmt.Fprintf(out, "%s  %-10s %s\n",
					sess.RunID,
					renderState(sess.State),
					format.Muted.Render(sess.UpdatedAt.Local().Format("2006-01-02 15:04:05")),
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to show")
	return cmd
}

func renderState(state oracle.RunState) string {
	switch state {
	case oracle.RunStateCompleted:
		return format.StatusOK.Render(string(state))
	case oracle.RunStateError, oracle.RunStateCancelled:
		return format.StatusError.Render(string(state))
	default:
		return string(state)
	}
}
