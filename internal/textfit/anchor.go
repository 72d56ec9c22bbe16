/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textfit

import "strings"

// HAlign is the horizontal alignment of a text block.
type HAlign int

const (
	AlignLeft HAlign = iota
	AlignCenter
	AlignRight
)

// Anchor is a resolved position on the 3x3 grid.
type Anchor struct {
	H HAlign
	V string // top | center | bottom
}

// ParseAnchor resolves a normalized position token ("bottom", "top-left",
// "center-right", ...) into an Anchor. Bare vertical tokens center
// horizontally; bare horizontal tokens center vertically.
func ParseAnchor(position string) Anchor {
	a := Anchor{H: AlignCenter, V: "center"}
	for _, part := range strings.Split(position, "-") {
		switch part {
		case "top", "bottom":
			a.V = part
		case "left":
			a.H = AlignLeft
		case "right":
			a.H = AlignRight
		case "center", "":
			// already the default on both axes
		}
	}
	return a
}

// AnchorX returns the anchor x-coordinate for a canvas width and padding.
func (a Anchor) AnchorX(canvasW, padding int) float64 {
	switch a.H {
	case AlignLeft:
		return float64(padding)
	case AlignRight:
		return float64(canvasW - padding)
	default:
		return float64(canvasW) / 2
	}
}

// AnchorY returns the anchor y-coordinate: the vertical center of the text
// block for a canvas height, padding and font size.
func (a Anchor) AnchorY(canvasH, padding, fontSize int) float64 {
	switch a.V {
	case "top":
		return float64(padding) + float64(fontSize)/2
	case "bottom":
		return float64(canvasH-padding) - float64(fontSize)/2
	default:
		return float64(canvasH) / 2
	}
}

// LineTops returns the top y-coordinate of each wrapped line, with the block
// vertically centered around the anchor point.
func LineTops(anchorY float64, lineCount, fontSize int) []float64 {
	total := BlockHeight(lineCount, fontSize)
	lineH := float64(fontSize) * LineHeight
	tops := make([]float64, lineCount)
	start := anchorY - total/2
	for i := range tops {
		tops[i] = start + float64(i)*lineH
	}
	return tops
}
