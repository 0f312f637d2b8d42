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

	"github.com/spf13/cobra"

	"github.com/unstableneutron/oracle/internal/config"
	"github.com/unstableneutron/oracle/internal/format"
)

// newModelsCommand lists the model catalog.
func newModelsCommand(opts *askOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := config.LoadCatalog(defaultConfigPath(opts.configPath))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range catalog.IDs() {
				mc, err := catalog.Lookup(id)
				if err != nil {
					return err
				}

				mode := "streaming"
				if mc.Background {
					mode = "background"
				}
				pricing := format.Muted.Render("pricing unknown")
				if mc.Pricing != nil {
					pricing = fmt.Sprintf("$%.2f/$%.2f per MTok", mc.Pricing.InputPerMTok, mc.Pricing.OutputPerMTok)
				}
				fmt.Fprintf(out, "%-16s %-12s %-10s %s\n", id, mc.Backend, mode, pricing)
			}
			return nil
		},
	}
}
