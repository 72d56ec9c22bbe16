/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"reflect"
	"testing"

	"stampd/internal/registry"
)

func newParser() *Parser { return NewParser(registry.Builtin()) }

func TestParseModeWithSubjectAndScale(t *testing.T) {
	p := newParser()
	cmd := p.Parse("higherify a mountain landscape. scale to 0.5.", TagCLI, "")
	if cmd.Action != ActionGenerate {
		t.Fatalf("action = %q, want generate", cmd.Action)
	}
	if cmd.Prompt != "mountain landscape" {
		t.Fatalf("prompt = %q, want %q", cmd.Prompt, "mountain landscape")
	}
	if cmd.OverlayMode != "higherify" {
		t.Fatalf("overlayMode = %q", cmd.OverlayMode)
	}
	if cmd.Controls == nil || cmd.Controls.Scale != 0.5 {
		t.Fatalf("controls = %+v, want scale 0.5", cmd.Controls)
	}
}

func TestParseBareModeUsesRegistryDefault(t *testing.T) {
	p := newParser()
	cmd := p.Parse("lensify", TagCLI, "")
	if cmd.Action != ActionGenerate {
		t.Fatalf("action = %q, want generate", cmd.Action)
	}
	e, _ := registry.Builtin().Lookup("lensify")
	if cmd.Prompt != e.DefaultPrompt {
		t.Fatalf("prompt = %q, want registry default %q", cmd.Prompt, e.DefaultPrompt)
	}
	if cmd.OverlayMode != "lensify" {
		t.Fatalf("overlayMode = %q", cmd.OverlayMode)
	}
}

func TestParseBareModeWithParentStampsParent(t *testing.T) {
	p := newParser()
	cmd := p.Parse("higherify", TagWebhook, "https://img.example/parent.png")
	if cmd.Action != ActionOverlay || !cmd.UseParentImage {
		t.Fatalf("expected parent overlay, got %+v", cmd)
	}
	if cmd.OverlayMode != "higherify" {
		t.Fatalf("overlayMode = %q", cmd.OverlayMode)
	}
	if cmd.Prompt != "" {
		t.Fatalf("prompt should stay empty, got %q", cmd.Prompt)
	}
}

func TestParseTextOnlyOverlay(t *testing.T) {
	p := newParser()
	cmd := p.Parse(`--text "Summer Vibes" --text-position bottom`, TagWebhook, "https://img.example/p.png")
	if cmd.Action != ActionOverlay || !cmd.UseParentImage {
		t.Fatalf("expected text-only overlay on parent, got %+v", cmd)
	}
	if cmd.Text == nil || cmd.Text.Content != "Summer Vibes" {
		t.Fatalf("text spec = %+v", cmd.Text)
	}
	if cmd.Text.Position != "bottom" {
		t.Fatalf("position = %q, want bottom", cmd.Text.Position)
	}
}

func TestParseExplicitGeneration(t *testing.T) {
	p := newParser()
	for _, in := range []string{
		"generate a foggy harbor at dawn",
		"draw a foggy harbor at dawn",
		"an image of a foggy harbor at dawn",
	} {
		cmd := p.Parse(in, TagCLI, "")
		if cmd.Action != ActionGenerate {
			t.Fatalf("%q: action = %q", in, cmd.Action)
		}
		if cmd.Prompt != "foggy harbor at dawn" {
			t.Fatalf("%q: prompt = %q", in, cmd.Prompt)
		}
	}
}

func TestParseFallbackIsRawPrompt(t *testing.T) {
	p := newParser()
	in := "misty woods in november light"
	cmd := p.Parse(in, TagCLI, "")
	if cmd.Action != ActionGenerate || cmd.Prompt != in {
		t.Fatalf("fallback mismatch: %+v", cmd)
	}
	if cmd.OverlayMode != "" {
		t.Fatalf("no mode should be detected: %q", cmd.OverlayMode)
	}
}

func TestParseIdempotent(t *testing.T) {
	p := newParser()
	inputs := []string{
		"higherify a mountain landscape. scale to 0.5.",
		"lensify",
		`--text "GM" --text-size 48`,
		"degenify the chart opacity to 0.4 color to red",
		"",
		"   ",
	}
	for _, in := range inputs {
		a := p.Parse(in, TagAPI, "")
		b := p.Parse(in, TagAPI, "")
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("parse not idempotent for %q:\n%+v\n%+v", in, a, b)
		}
	}
}

func TestParseDirectivesLastWriterWins(t *testing.T) {
	p := newParser()
	cmd := p.Parse("higherify a lake scale to 2 scale to 0.25", TagCLI, "")
	if cmd.Controls == nil || cmd.Controls.Scale != 0.25 {
		t.Fatalf("controls = %+v, want last scale 0.25", cmd.Controls)
	}
}

func TestParsePositionAndOpacityDirectives(t *testing.T) {
	p := newParser()
	cmd := p.Parse("scrollify a library move to -40, 25 opacity to 0.6 color to #336699", TagCLI, "")
	c := cmd.Controls
	if c == nil {
		t.Fatalf("controls missing")
	}
	if c.X != -40 || c.Y != 25 {
		t.Fatalf("offset = (%d,%d), want (-40,25)", c.X, c.Y)
	}
	if c.OverlayAlpha != 0.6 {
		t.Fatalf("alpha = %v", c.OverlayAlpha)
	}
	if c.OverlayColor == nil || c.OverlayColor.Hex() != "#336699" {
		t.Fatalf("tint = %+v", c.OverlayColor)
	}
}

func TestParseClampsOutOfRangeValues(t *testing.T) {
	p := newParser()
	cmd := p.Parse("higherify a peak scale to -3 opacity to 7", TagCLI, "")
	c := cmd.Controls
	if c == nil {
		t.Fatalf("controls missing")
	}
	if c.Scale != 1.0 {
		t.Fatalf("negative scale should clamp to default 1.0, got %v", c.Scale)
	}
	if c.OverlayAlpha != 1.0 {
		t.Fatalf("alpha should clamp to 1.0, got %v", c.OverlayAlpha)
	}
}

func TestParseTextFlags(t *testing.T) {
	p := newParser()
	in := `--text "Hold Fast" --text-color #ffcc00 --text-font times --text-style bold ` +
		`--text-stroke black --text-stroke-width 3 --text-bg #00000080 --text-rotate 10 --text-size 24`
	cmd := p.Parse(in, TagAPI, "")
	ts := cmd.Text
	if ts == nil {
		t.Fatalf("no text spec")
	}
	if ts.Content != "Hold Fast" || ts.FontSize != 24 {
		t.Fatalf("content/size: %+v", ts)
	}
	if ts.FontFamily != "serif" || ts.FontStyle != "bold" {
		t.Fatalf("font mapping: %+v", ts)
	}
	if ts.Color == nil || ts.Color.Hex() != "#ffcc00" {
		t.Fatalf("color: %+v", ts.Color)
	}
	if ts.StrokeColor == nil || ts.StrokeWidth != 3 {
		t.Fatalf("stroke: %+v w=%d", ts.StrokeColor, ts.StrokeWidth)
	}
	if ts.BackgroundColor == nil || ts.BackgroundColor.A != 0x80 {
		t.Fatalf("background: %+v", ts.BackgroundColor)
	}
	if ts.RotationDegrees != 10 {
		t.Fatalf("rotation: %v", ts.RotationDegrees)
	}
}

func TestParseModeEarliestOccurrenceWins(t *testing.T) {
	p := newParser()
	cmd := p.Parse("degenify then maybe higherify something later on", TagCLI, "")
	if cmd.OverlayMode != "degenify" {
		t.Fatalf("overlayMode = %q, want earliest (degenify)", cmd.OverlayMode)
	}
}

func TestParseModeCaseInsensitive(t *testing.T) {
	p := newParser()
	cmd := p.Parse("HIGHERIFY a mountain landscape", TagCLI, "")
	if cmd.OverlayMode != "higherify" {
		t.Fatalf("overlayMode = %q, want higherify", cmd.OverlayMode)
	}
	if cmd.Prompt != "mountain landscape" {
		t.Fatalf("prompt = %q", cmd.Prompt)
	}
}

func TestParseModeWithMultibyteRunes(t *testing.T) {
	p := newParser()

	// Ⱦ lowercases to a longer UTF-8 sequence; the mode span must come from
	// the original string, not a lower-cased copy.
	cmd := p.Parse("ȾȾȾȾ higherify", TagCLI, "")
	if cmd.OverlayMode != "higherify" {
		t.Fatalf("overlayMode = %q, want higherify", cmd.OverlayMode)
	}
	e, _ := registry.Builtin().Lookup("higherify")
	if cmd.Action != ActionGenerate || cmd.Prompt != e.DefaultPrompt {
		t.Fatalf("cmd = %+v, want registry default prompt %q", cmd, e.DefaultPrompt)
	}

	// İ lowercases to a shorter-per-rune mapping in the other direction;
	// the surviving prompt must not be garbled by offset drift.
	cmd = p.Parse("İstanbul harbor at dusk higherify", TagCLI, "")
	if cmd.OverlayMode != "higherify" {
		t.Fatalf("overlayMode = %q, want higherify", cmd.OverlayMode)
	}
	if cmd.Prompt != "İstanbul harbor at dusk" {
		t.Fatalf("prompt = %q, want %q", cmd.Prompt, "İstanbul harbor at dusk")
	}
}

func TestParseColorForms(t *testing.T) {
	cases := []struct {
		in   string
		want Color
		ok   bool
	}{
		{"white", Color{255, 255, 255, 255}, true},
		{"#fff", Color{255, 255, 255, 255}, true},
		{"#336699", Color{0x33, 0x66, 0x99, 255}, true},
		{"#33669980", Color{0x33, 0x66, 0x99, 0x80}, true},
		{"#xyz", Color{}, false},
		{"blurple", Color{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseColor(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseColor(%q) = %+v/%v, want %+v/%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizePosition(t *testing.T) {
	cases := map[string]string{
		"bottom":       "bottom",
		"Top Left":     "top-left",
		"middle":       "center",
		"bottom-right": "bottom-right",
		"sideways":     "center",
	}
	for in, want := range cases {
		if got := normalizePosition(in); got != want {
			t.Fatalf("normalizePosition(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeOverride(t *testing.T) {
	raw := []byte(`{
	  "action": "overlay",
	  "baseImageUrl": "https://img.example/base.png",
	  "overlayMode": "higherify",
	  "controls": {"scale": -2, "overlayAlpha": 1.5, "overlayColor": "#112233"},
	  "text": {"content": "gm", "position": "Top Left"}
	}`)
	cmd, err := DecodeOverride(raw)
	if err != nil {
		t.Fatalf("DecodeOverride: %v", err)
	}
	if cmd.Action != ActionOverlay || cmd.BaseImageURL == "" {
		t.Fatalf("decoded: %+v", cmd)
	}
	if cmd.Controls.Scale != 1.0 || cmd.Controls.OverlayAlpha != 1.0 {
		t.Fatalf("controls not clamped: %+v", cmd.Controls)
	}
	if cmd.Text.Position != "top-left" {
		t.Fatalf("position not normalized: %q", cmd.Text.Position)
	}
}

func TestDecodeOverrideRejectsBadShape(t *testing.T) {
	for _, raw := range []string{
		`{"prompt": "no action"}`,
		`{"action": "explode"}`,
		`{"action": "overlay", "text": {"position": "bottom"}}`,
		`{"action": "overlay", "bogus": true}`,
	} {
		if _, err := DecodeOverride([]byte(raw)); err == nil {
			t.Fatalf("expected rejection for %s", raw)
		}
	}
}
