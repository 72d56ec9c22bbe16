/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stampd/internal/export"
	"stampd/internal/telemetry"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a PDF contact sheet of recent results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()
		entries, err := e.st.History(cmd.Context(), exportLimit)
		if err != nil {
			return err
		}
		n, err := export.ContactSheet(cmd.Context(), e.st, entries, exportOut, export.SheetOptions{})
		if err != nil {
			return err
		}
		if e.cfg.General.TelemetryOptIn {
			telemetry.Event("history_exported", map[string]any{"previews": n})
		}
		fmt.Printf("Wrote %s (%d previews)\n", exportOut, n)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "history.pdf", "output PDF path")
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "n", 24, "maximum runs to include (0 for all)")
}
