/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"encoding/json"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Action classifies what the pipeline should do with a command.
type Action string

const (
	// ActionGenerate synthesizes a base image from a prompt.
	ActionGenerate Action = "generate"
	// ActionOverlay applies effects to a supplied or parent image.
	ActionOverlay Action = "overlay"
)

// InterfaceTag identifies the surface a command arrived from. It only feeds
// logging and tie-breaking context; the parser output must be byte-identical
// for identical (text, tag) pairs.
type InterfaceTag string

const (
	TagCLI     InterfaceTag = "cli"
	TagWebhook InterfaceTag = "webhook"
	TagAPI     InterfaceTag = "api"
)

// Color is an RGBA color that serializes as a hex string ("#rrggbb" or
// "#rrggbbaa") in JSON overrides.
type Color struct {
	R, G, B, A uint8
}

var namedColors = map[string]Color{
	"black":   {0, 0, 0, 255},
	"white":   {255, 255, 255, 255},
	"red":     {255, 0, 0, 255},
	"green":   {0, 128, 0, 255},
	"blue":    {0, 0, 255, 255},
	"yellow":  {255, 255, 0, 255},
	"orange":  {255, 165, 0, 255},
	"purple":  {128, 0, 128, 255},
	"pink":    {255, 192, 203, 255},
	"gray":    {128, 128, 128, 255},
	"grey":    {128, 128, 128, 255},
	"brown":   {139, 69, 19, 255},
	"cyan":    {0, 255, 255, 255},
	"magenta": {255, 0, 255, 255},
}

// ParseColor accepts a named color or a hex literal (#rgb, #rrggbb, #rrggbbaa).
func ParseColor(s string) (Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, true
	}
	if !strings.HasPrefix(s, "#") {
		return Color{}, false
	}
	hex := s[1:]
	parse := func(h string) uint8 {
		v, _ := strconv.ParseUint(h, 16, 8)
		return uint8(v)
	}
	switch len(hex) {
	case 3:
		r := parse(hex[0:1] + hex[0:1])
		g := parse(hex[1:2] + hex[1:2])
		b := parse(hex[2:3] + hex[2:3])
		return Color{r, g, b, 255}, validHex(hex)
	case 6:
		return Color{parse(hex[0:2]), parse(hex[2:4]), parse(hex[4:6]), 255}, validHex(hex)
	case 8:
		return Color{parse(hex[0:2]), parse(hex[2:4]), parse(hex[4:6]), parse(hex[6:8])}, validHex(hex)
	}
	return Color{}, false
}

func validHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}

// RGBA converts to the stdlib color type used by the compositor.
func (c Color) RGBA() color.RGBA { return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A} }

// Hex renders the color as a hex literal, omitting alpha when fully opaque.
func (c Color) Hex() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func (c Color) MarshalJSON() ([]byte, error) { return json.Marshal(c.Hex()) }

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseColor(s)
	if !ok {
		return fmt.Errorf("invalid color %q", s)
	}
	*c = parsed
	return nil
}

// Controls is the adjustment bundle for overlay placement and tinting.
type Controls struct {
	Scale        float64 `json:"scale,omitempty"`
	X            int     `json:"x,omitempty"`
	Y            int     `json:"y,omitempty"`
	OverlayColor *Color  `json:"overlayColor,omitempty"`
	OverlayAlpha float64 `json:"overlayAlpha,omitempty"`
}

// DefaultControls returns the neutral adjustment bundle: unit scale, no
// offset, opaque black tint color with zero alpha (no tint).
func DefaultControls() Controls {
	return Controls{Scale: 1.0}
}

// Clamped returns a copy with scale forced positive and alpha into [0,1].
// Out-of-range values are never propagated into raster math.
func (c Controls) Clamped() Controls {
	out := c
	if !(out.Scale > 0) { // catches zero, negatives and NaN
		out.Scale = 1.0
	}
	if !(out.OverlayAlpha >= 0) {
		out.OverlayAlpha = 0
	}
	if out.OverlayAlpha > 1 {
		out.OverlayAlpha = 1
	}
	return out
}

// TintColor returns the tint color, defaulting to opaque black.
func (c Controls) TintColor() Color {
	if c.OverlayColor != nil {
		return *c.OverlayColor
	}
	return Color{0, 0, 0, 255}
}

// TextSpec describes a text overlay.
type TextSpec struct {
	Content         string  `json:"content"`
	Position        string  `json:"position,omitempty"` // {top,center,bottom}[-{left,center,right}]
	FontSize        int     `json:"fontSize,omitempty"`
	FontFamily      string  `json:"fontFamily,omitempty"` // sans | serif | mono
	FontStyle       string  `json:"fontStyle,omitempty"`  // regular | bold | italic
	Color           *Color  `json:"color,omitempty"`
	StrokeColor     *Color  `json:"strokeColor,omitempty"`
	StrokeWidth     int     `json:"strokeWidth,omitempty"`
	BackgroundColor *Color  `json:"backgroundColor,omitempty"`
	RotationDegrees float64 `json:"rotationDegrees,omitempty"`
}

// DefaultFontSize is applied when a text spec carries no explicit size.
const DefaultFontSize = 32

// EffectiveFontSize returns the spec size or the default.
func (t TextSpec) EffectiveFontSize() int {
	if t.FontSize > 0 {
		return t.FontSize
	}
	return DefaultFontSize
}

// FillColor returns the text fill, defaulting to white.
func (t TextSpec) FillColor() Color {
	if t.Color != nil {
		return *t.Color
	}
	return Color{255, 255, 255, 255}
}

// ParsedCommand is the structured intent derived from one instruction. It is
// built once per request and treated as immutable once composition starts.
type ParsedCommand struct {
	Action         Action    `json:"action"`
	Prompt         string    `json:"prompt,omitempty"`
	BaseImageURL   string    `json:"baseImageUrl,omitempty"`
	UseParentImage bool      `json:"useParentImage,omitempty"`
	OverlayMode    string    `json:"overlayMode,omitempty"`
	Controls       *Controls `json:"controls,omitempty"`
	Text           *TextSpec `json:"text,omitempty"`
}

// EffectiveControls returns the clamped adjustment bundle with defaults applied.
func (p ParsedCommand) EffectiveControls() Controls {
	if p.Controls == nil {
		return DefaultControls()
	}
	c := p.Controls.Clamped()
	if c.Scale == 0 {
		c.Scale = 1.0
	}
	return c
}

// normalizePosition maps loose position tokens onto the 3x3 grid. A bare
// vertical token centers horizontally and vice versa. Unknown tokens resolve
// to "center".
func normalizePosition(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	switch s {
	case "top", "bottom", "center", "left", "right",
		"top-left", "top-center", "top-right",
		"center-left", "center-right",
		"bottom-left", "bottom-center", "bottom-right":
		return s
	case "middle":
		return "center"
	}
	return "center"
}
