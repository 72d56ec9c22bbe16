/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package registry holds the overlay-mode catalog: one table mapping a mode
// name to its stamp asset and a default generation subject. Both the command
// parser and the compositor consult this table; adding a mode touches only
// this data (or a catalog file), never parser logic.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry describes one overlay mode.
type Entry struct {
	Mode          string `yaml:"mode"`
	Asset         string `yaml:"asset"`          // locator relative to the asset dir, or an absolute URL
	DefaultPrompt string `yaml:"default_prompt"` // subject used when a bare mode word arrives with no prompt
}

// Registry is an immutable-after-build catalog of overlay modes.
type Registry struct {
	entries map[string]Entry
}

// Builtin returns the registry preloaded with the stock modes.
func Builtin() *Registry {
	r := &Registry{entries: make(map[string]Entry)}
	for _, e := range []Entry{
		{Mode: "higherify", Asset: "higherify.png", DefaultPrompt: "a mountain summit above the clouds"},
		{Mode: "degenify", Asset: "degenify.png", DefaultPrompt: "a neon trading floor at midnight"},
		{Mode: "scrollify", Asset: "scrollify.png", DefaultPrompt: "an ancient scroll unrolling across a desk"},
		{Mode: "lensify", Asset: "lensify.png", DefaultPrompt: "a camera lens catching golden light"},
		{Mode: "nikefy", Asset: "nikefy.png", DefaultPrompt: "a sprinter frozen mid-stride"},
		{Mode: "clankerify", Asset: "clankerify.png", DefaultPrompt: "a rusty robot in a workshop"},
		{Mode: "mantleify", Asset: "mantleify.png", DefaultPrompt: "a marble mantlepiece with candles"},
		{Mode: "wowowify", Asset: "wowowify.png", DefaultPrompt: "a burst of confetti over a city street"},
	} {
		r.entries[e.Mode] = e
	}
	return r
}

// Lookup resolves a mode name (case-insensitive) to its entry.
func (r *Registry) Lookup(mode string) (Entry, bool) {
	e, ok := r.entries[strings.ToLower(strings.TrimSpace(mode))]
	return e, ok
}

// Modes returns all registered mode names in sorted order. The stable order
// keeps parser keyword scans deterministic.
func (r *Registry) Modes() []string {
	out := make([]string, 0, len(r.entries))
	for m := range r.entries {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// catalogFile is the YAML shape of an external mode catalog.
type catalogFile struct {
	Modes []Entry `yaml:"modes"`
}

// LoadCatalog reads a YAML catalog and merges it over the receiver. Entries
// with a known mode name replace the built-in row; new names extend the
// registry. Entries without an asset are rejected.
func (r *Registry) LoadCatalog(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", path, err)
	}
	var cat catalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for _, e := range cat.Modes {
		e.Mode = strings.ToLower(strings.TrimSpace(e.Mode))
		if e.Mode == "" {
			return fmt.Errorf("catalog %s: entry with empty mode", path)
		}
		if strings.TrimSpace(e.Asset) == "" {
			return fmt.Errorf("catalog %s: mode %q has no asset", path, e.Mode)
		}
		if e.DefaultPrompt == "" {
			if old, ok := r.entries[e.Mode]; ok {
				e.DefaultPrompt = old.DefaultPrompt
			} else {
				e.DefaultPrompt = "an abstract colorful scene"
			}
		}
		r.entries[e.Mode] = e
	}
	return nil
}
