/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cli holds the stampd command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"stampd/internal/admission"
	"stampd/internal/command"
	"stampd/internal/compose"
	"stampd/internal/config"
	"stampd/internal/fetch"
	"stampd/internal/genimage"
	applog "stampd/internal/log"
	"stampd/internal/pipeline"
	"stampd/internal/registry"
	"stampd/internal/store"
	"stampd/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "stampd",
	Version: version.String(),
	Short:   "Turn free-text instructions into stamped, tinted, captioned images",
	Long: `stampd parses a free-text instruction into a structured editing command,
obtains or generates a base image, composites overlay stamps, color tints
and text onto it, and stores the full result plus a thumbnail preview.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(purgeCmd)
}

// Execute runs the command tree. Logging is initialized before dispatch so
// every subcommand inherits the configured handlers.
func Execute() error {
	applog.Init(applog.FromEnv())
	return rootCmd.Execute()
}

// env bundles everything a subcommand needs to do real work.
type env struct {
	cfg    config.AppConfig
	apiKey string
	reg    *registry.Registry
	st     *store.Store
}

func (e *env) close() {
	if e.st != nil {
		_ = e.st.Close()
	}
}

func newEnv() (*env, error) {
	cfg, apiKey, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	reg := registry.Builtin()
	if cfg.Storage.CatalogFile != "" {
		if err := reg.LoadCatalog(cfg.Storage.CatalogFile); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}
	st, err := store.Open(dataDir(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.Storage.EphemeralTTLs > 0 {
		st.TTL = time.Duration(cfg.Storage.EphemeralTTLs) * time.Second
	}
	return &env{cfg: cfg, apiKey: apiKey, reg: reg, st: st}, nil
}

func dataDir(cfg config.AppConfig) string {
	if cfg.Storage.DataDir != "" {
		return cfg.Storage.DataDir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "stampd")
}

// newPipeline assembles the orchestrator around the env. The Postgres
// uploader attaches lazily inside run; everything else is wired here.
func (e *env) newPipeline() *pipeline.Pipeline {
	httpClient := fetch.New(30 * time.Second)
	return &pipeline.Pipeline{
		Registry:  e.reg,
		Parser:    command.NewParser(e.reg),
		Fetch:     httpClient,
		Generate:  genimage.NewClient(e.cfg.Generation.Endpoint, e.cfg.Generation.Model, e.apiKey, e.cfg.Generation.GenTimeout()),
		Ephemeral: e.st,
		Admit:     admission.New(e.cfg.Pipeline.AdmissionLimit, time.Duration(e.cfg.Pipeline.AdmissionWindow)*time.Second),
		Assets:    &fetch.AssetLoader{Dir: e.cfg.Storage.AssetDir, Client: httpClient},
		History:   e.st,
		Compose:   compose.Options{},
		Deadline:  e.cfg.Pipeline.Deadline(),
	}
}
