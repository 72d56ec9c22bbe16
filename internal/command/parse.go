/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"stampd/internal/registry"
)

// Parse never fails: the worst case classifies the raw text as a generation
// prompt. Recognition passes run in a fixed priority order so the same input
// always yields the same ParsedCommand.
//
// Passes:
//  1. directive extraction (--text flags and "scale to"-style phrases),
//     removed from the working text before classification
//  2. overlay-mode keyword detection (whole word, earliest occurrence wins)
//  3. "<mode> a|an <subject>" and imperative generation detection
//  4. text-only classification when almost nothing but directives remained
//  5. bare-mode fallback: parent overlay if a parent image is in context,
//     otherwise generation from the mode's registry default prompt

// Residual-length thresholds. Inherited from the service this replaces;
// kept bit-for-bit because downstream behavior was tuned against them.
const (
	textOnlyResidualMax  = 10
	minDescriptivePrompt = 10
)

var (
	reFlag      = regexp.MustCompile(`--([a-z][a-z-]*)\s+("([^"]*)"|\S+)`)
	reScale     = regexp.MustCompile(`(?i)\bscale\s+to\s+(-?\d+(?:\.\d+)?)`)
	rePosition  = regexp.MustCompile(`(?i)\b(?:position|move)\s+to\s+(-?\d+)\s*,\s*(-?\d+)`)
	reTint      = regexp.MustCompile(`(?i)\bcolou?r\s+to\s+(#[0-9a-fA-F]{3,8}|[a-zA-Z]+)`)
	reOpacity   = regexp.MustCompile(`(?i)\bopacity\s+to\s+(-?\d+(?:\.\d+)?)`)
	reGenVerb   = regexp.MustCompile(`(?i)^\s*(generate|create|make|draw)\b[:,]?\s*(.*)$`)
	reGenNoun   = regexp.MustCompile(`(?i)\ba?n?\s*(image|picture|photo)\s+of\s+(.*)$`)
	reArticles  = regexp.MustCompile(`(?i)^(?:(?:a|an|the|of|with)\s+)+`)
	rePunctRuns = regexp.MustCompile(`[.,;:!?]\s*[.,;:!?]+`)
	reSpaces    = regexp.MustCompile(`\s{2,}`)
)

// Parser turns free-text instructions into ParsedCommands. It consults the
// overlay registry for mode keywords and default prompts.
type Parser struct {
	reg *registry.Registry
}

func NewParser(reg *registry.Registry) *Parser { return &Parser{reg: reg} }

// Parse converts one instruction into a ParsedCommand. parentImageURL may be
// empty; when set it names an image referenced by the surrounding context
// (e.g. the post being replied to).
func (p *Parser) Parse(text string, tag InterfaceTag, parentImageURL string) ParsedCommand {
	_ = tag // reserved for per-surface tie-breaks; all surfaces parse alike today
	raw := strings.TrimSpace(text)
	cmd := ParsedCommand{}

	working, textSpec := extractTextDirectives(raw)
	working, controls, haveControls := extractControlDirectives(working)
	residual := cleanup(working)

	if textSpec != nil {
		cmd.Text = textSpec
	}
	if haveControls {
		c := controls.Clamped()
		cmd.Controls = &c
	}

	// Overlay-mode keyword scan on the directive-stripped text.
	mode, modeStart, modeEnd := p.detectMode(residual)
	cmd.OverlayMode = mode

	// "<mode> a|an <subject>": generation that still carries the stamp.
	if mode != "" {
		reModeGen := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(mode) + `\s+(?:a|an)\s+(.+)$`)
		if m := reModeGen.FindStringSubmatch(residual); m != nil {
			cmd.Action = ActionGenerate
			cmd.Prompt = trimPrompt(m[1])
			if cmd.Prompt != "" {
				return cmd
			}
		}
	}

	// Imperative generation.
	if m := reGenVerb.FindStringSubmatch(residual); m != nil {
		cmd.Action = ActionGenerate
		cmd.Prompt = trimPrompt(reArticles.ReplaceAllString(m[2], ""))
		if cmd.Prompt == "" {
			cmd.Prompt = trimPrompt(residual)
		}
		return cmd
	}
	if m := reGenNoun.FindStringSubmatch(residual); m != nil {
		cmd.Action = ActionGenerate
		cmd.Prompt = trimPrompt(reArticles.ReplaceAllString(m[2], ""))
		if cmd.Prompt != "" {
			return cmd
		}
	}

	// Text-only overlay: directives consumed nearly everything, so the
	// residue carries no independent subject for generation.
	if cmd.Text != nil && len(residual) < textOnlyResidualMax && mode == "" {
		cmd.Action = ActionOverlay
		cmd.UseParentImage = true
		return cmd
	}

	if mode != "" {
		rest := cleanup(residual[:modeStart] + residual[modeEnd:])
		if parentImageURL != "" {
			// A bare mode in reply context stamps the referenced image.
			cmd.Action = ActionOverlay
			cmd.UseParentImage = true
			return cmd
		}
		if len(rest) < minDescriptivePrompt {
			// Prevents a bare "higherify" from becoming an empty prompt.
			if e, ok := p.reg.Lookup(mode); ok {
				cmd.Action = ActionGenerate
				cmd.Prompt = e.DefaultPrompt
				return cmd
			}
		}
		cmd.Action = ActionGenerate
		cmd.Prompt = trimPrompt(reArticles.ReplaceAllString(rest, ""))
		if cmd.Prompt == "" {
			cmd.Prompt = raw
		}
		return cmd
	}

	// Directive-only command without text spec: with a parent in context the
	// caller wants the adjustments applied to it.
	if cmd.Controls != nil && len(residual) < textOnlyResidualMax {
		cmd.Action = ActionOverlay
		cmd.UseParentImage = true
		return cmd
	}

	// Fallback policy: treat the whole instruction as a generation prompt.
	cmd.Action = ActionGenerate
	cmd.Prompt = raw
	return cmd
}

// detectMode finds registered mode keywords as whole words inside text and
// returns the earliest match with its byte span. Matching is
// case-insensitive against the original string so the span stays valid for
// slicing even when text holds runes whose lowercase form has a different
// byte length. When two registered words start at the same index (one a
// prefix of the other) the longer word wins.
func (p *Parser) detectMode(text string) (string, int, int) {
	best := ""
	bestAt, bestEnd := -1, -1
	for _, mode := range p.reg.Modes() {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(mode) + `\b`)
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		switch {
		case bestAt == -1 || loc[0] < bestAt:
			best, bestAt, bestEnd = mode, loc[0], loc[1]
		case loc[0] == bestAt && len(mode) > len(best):
			best, bestEnd = mode, loc[1]
		}
	}
	return best, bestAt, bestEnd
}

// extractTextDirectives pulls --flag value segments out of text and returns
// the remainder plus the accumulated TextSpec (nil when no flag matched).
// Later flags override earlier ones for the same field.
func extractTextDirectives(text string) (string, *TextSpec) {
	matches := reFlag.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	var spec *TextSpec
	ensure := func() *TextSpec {
		if spec == nil {
			spec = &TextSpec{}
		}
		return spec
	}
	type span struct{ start, end int }
	var consumed []span

	for _, m := range matches {
		flag := text[m[2]:m[3]]
		value := text[m[4]:m[5]]
		if m[6] != -1 { // quoted form: use inner text
			value = text[m[6]:m[7]]
		}
		recognized := true
		switch flag {
		case "text":
			ensure().Content = value
		case "text-position", "position":
			ensure().Position = normalizePosition(value)
		case "text-size", "size":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				ensure().FontSize = n
			}
		case "text-font", "font":
			ensure().FontFamily = mapFontFamily(value)
		case "text-style", "style":
			ensure().FontStyle = mapFontStyle(value)
		case "text-color":
			if c, ok := ParseColor(value); ok {
				cc := c
				ensure().Color = &cc
			}
		case "text-stroke", "stroke":
			if c, ok := ParseColor(value); ok {
				cc := c
				ensure().StrokeColor = &cc
			}
		case "text-stroke-width", "stroke-width":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				ensure().StrokeWidth = n
			}
		case "text-bg", "bg":
			if c, ok := ParseColor(value); ok {
				cc := c
				ensure().BackgroundColor = &cc
			}
		case "text-rotate", "rotate":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				ensure().RotationDegrees = f
			}
		default:
			recognized = false
		}
		if recognized {
			consumed = append(consumed, span{m[0], m[1]})
		}
	}
	if len(consumed) == 0 {
		return text, spec
	}
	var b strings.Builder
	prev := 0
	for _, s := range consumed {
		b.WriteString(text[prev:s.start])
		prev = s.end
	}
	b.WriteString(text[prev:])
	return b.String(), spec
}

// extractControlDirectives recognizes "scale to X", "position/move to X, Y",
// "color to C" and "opacity to A" phrases. Matches are applied left to right
// so a later phrase wins for the same field.
func extractControlDirectives(text string) (string, Controls, bool) {
	ctr := DefaultControls()
	found := false
	type span struct{ start, end int }
	var consumed []span

	type hit struct {
		start, end int
		apply      func()
	}
	var hits []hit

	for _, m := range reScale.FindAllStringSubmatchIndex(text, -1) {
		v, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		hits = append(hits, hit{m[0], m[1], func() { ctr.Scale = v }})
	}
	for _, m := range rePosition.FindAllStringSubmatchIndex(text, -1) {
		x, errX := strconv.Atoi(text[m[2]:m[3]])
		y, errY := strconv.Atoi(text[m[4]:m[5]])
		if errX != nil || errY != nil {
			continue
		}
		hits = append(hits, hit{m[0], m[1], func() { ctr.X, ctr.Y = x, y }})
	}
	for _, m := range reTint.FindAllStringSubmatchIndex(text, -1) {
		c, ok := ParseColor(text[m[2]:m[3]])
		if !ok {
			continue
		}
		hits = append(hits, hit{m[0], m[1], func() {
			cc := c
			ctr.OverlayColor = &cc
			if ctr.OverlayAlpha == 0 {
				ctr.OverlayAlpha = 0.3 // a tint request with no opacity still has to be visible
			}
		}})
	}
	for _, m := range reOpacity.FindAllStringSubmatchIndex(text, -1) {
		v, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		hits = append(hits, hit{m[0], m[1], func() { ctr.OverlayAlpha = v }})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	for _, h := range hits {
		h.apply()
		found = true
		consumed = append(consumed, span{h.start, h.end})
	}
	if !found {
		return text, ctr, false
	}
	var b strings.Builder
	prev := 0
	for _, s := range consumed {
		if s.start < prev {
			continue
		}
		b.WriteString(text[prev:s.start])
		prev = s.end
	}
	b.WriteString(text[prev:])
	return b.String(), ctr, true
}

func mapFontFamily(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serif", "times", "georgia", "garamond":
		return "serif"
	case "mono", "monospace", "courier", "consolas":
		return "mono"
	default:
		return "sans"
	}
}

func mapFontStyle(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bold":
		return "bold"
	case "italic", "oblique":
		return "italic"
	default:
		return "regular"
	}
}

// cleanup collapses the holes left by removed directive segments.
func cleanup(s string) string {
	s = rePunctRuns.ReplaceAllString(s, ".")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// trimPrompt trims surrounding whitespace and trailing punctuation from an
// extracted prompt fragment.
func trimPrompt(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".,;:!? ")
}
