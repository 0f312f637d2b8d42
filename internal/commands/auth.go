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
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/unstableneutron/oracle/internal/format"
	"github.com/unstableneutron/oracle/internal/secrets"
	"github.com/unstableneutron/oracle/pkg/errors"
)

// newAuthCommand manages API keys in the system keychain.
func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage backend API keys in the system keychain",
	}
	cmd.AddCommand(newAuthSetCommand())
	cmd.AddCommand(newAuthRemoveCommand())
	return cmd
}

func newAuthSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <backend>",
		Short: "Store an API key (prompted, never echoed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keychain := secrets.NewKeychain()
			if !keychain.Available() {
				return &errors.ConfigError{
					Key:    "keychain",
					Reason: "system keychain unavailable; set the API key via environment variable instead",
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "API key for %s: ", args[0])
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("failed to read key: %w", err)
			}

			key := strings.TrimSpace(string(raw))
			if key == "" {
				return &errors.ValidationError{Field: "api_key", Message: "key must not be empty"}
			}
			if err := keychain.Set(args[0]+"-api-key", key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.StatusOK.Render(format.SymbolOK)+" stored in keychain")
			return nil
		},
	}
}

func newAuthRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <backend>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keychain := secrets.NewKeychain()
			if err := keychain.Delete(args[0] + "-api-key"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.StatusOK.Render(format.SymbolOK)+" removed")
			return nil
		},
	}
}
