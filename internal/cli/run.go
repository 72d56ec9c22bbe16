/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stampd/internal/command"
	"stampd/internal/persist"
	"stampd/internal/pipeline"
	"stampd/internal/telemetry"
)

var (
	runParentURL  string
	runOverride   string
	runPersist    bool
	runClientKey  string
	runOutPath    string
	runPreviewOut string
)

var runCmd = &cobra.Command{
	Use:   "run [instruction...]",
	Short: "Execute one instruction end to end",
	Long: `Parse the instruction, obtain the base image, composite overlays and
store the result. The instruction is the joined positional arguments, or an
explicit JSON command via --override (use "-" for stdin).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" && runOverride == "" {
			return errors.New("an instruction or --override is required")
		}

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		req := pipeline.Request{
			Text:           text,
			Tag:            command.TagCLI,
			ParentImageURL: runParentURL,
			ClientKey:      runClientKey,
			Persist:        runPersist,
		}
		if runOverride != "" {
			raw, err := readOverride(runOverride)
			if err != nil {
				return err
			}
			parsed, err := command.DecodeOverride(raw)
			if err != nil {
				return err
			}
			req.Override = &parsed
		}

		p := e.newPipeline()
		ctx := cmd.Context()
		if runPersist && e.cfg.Persist.PostgresDSN != "" {
			up, err := persist.Open(ctx, e.cfg.Persist.PostgresDSN, e.cfg.Persist.PublicBaseURL)
			if err != nil {
				return fmt.Errorf("connect persistence: %w", err)
			}
			defer up.Close()
			p.Permanent = up
		}

		res := p.Run(ctx, req)
		if e.cfg.General.TelemetryOptIn {
			// Derived fields only; prompts, URLs and text content stay local.
			props := map[string]any{
				"status": string(res.Status),
				"mode":   res.OverlayMode,
			}
			if res.Err != nil {
				props["fail_kind"] = string(pipeline.ClassifyKind(res.Err))
			}
			if res.Persisted != nil {
				props["persisted"] = res.Persisted.Err == nil
			}
			telemetry.Event("run_finished", props)
		}
		if res.Err != nil {
			return fmt.Errorf("run %s: %w", res.ID, res.Err)
		}

		fmt.Printf("Run: %s\n", res.ID)
		fmt.Printf("Result: %s\n", res.ResultID)
		fmt.Printf("Preview: %s\n", res.PreviewID)
		if res.Persisted != nil {
			if res.Persisted.Err != nil {
				fmt.Printf("Persist: failed (%v); ephemeral result is still available\n", res.Persisted.Err)
			} else if res.Persisted.PublicURL != "" {
				fmt.Printf("Persist: %s\n", res.Persisted.PublicURL)
			} else {
				fmt.Printf("Persist: %s\n", res.Persisted.Locator)
			}
		}

		if runOutPath != "" {
			if err := writeBlob(ctx, e, res.ResultID, runOutPath); err != nil {
				return err
			}
			fmt.Printf("Wrote: %s\n", runOutPath)
		}
		if runPreviewOut != "" {
			if err := writeBlob(ctx, e, res.PreviewID, runPreviewOut); err != nil {
				return err
			}
			fmt.Printf("Wrote: %s\n", runPreviewOut)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runParentURL, "parent", "", "image URL the instruction replies to")
	runCmd.Flags().StringVar(&runOverride, "override", "", "JSON command file bypassing the text parser (\"-\" reads stdin)")
	runCmd.Flags().BoolVar(&runPersist, "persist", false, "upload the result to durable storage")
	runCmd.Flags().StringVar(&runClientKey, "client", "", "admission key; empty skips rate limiting")
	runCmd.Flags().StringVarP(&runOutPath, "out", "o", "", "write the full result PNG to this path")
	runCmd.Flags().StringVar(&runPreviewOut, "preview-out", "", "write the preview PNG to this path")
}

func readOverride(src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(src)
}

func writeBlob(ctx context.Context, e *env, id, path string) error {
	data, _, err := e.st.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("read stored blob %s: %w", id, err)
	}
	return os.WriteFile(path, data, 0o644)
}
