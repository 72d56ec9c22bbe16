/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textfit is the pure geometry half of text overlays: greedy word
// wrapping, proportional font shrinking and anchor resolution. It performs no
// drawing; measurement comes in as a function so tests stay deterministic.
package textfit

import "strings"

const (
	// MinFontSize is the floor applied when shrinking to fit.
	MinFontSize = 12
	// shrinkMargin leaves headroom after the proportional shrink; the
	// single-pass approximation under-measures slightly on some faces.
	shrinkMargin = 0.9
	// LineHeight is the leading factor between wrapped lines.
	LineHeight = 1.2
)

// Result is the outcome of fitting a string into a width.
type Result struct {
	Lines    []string
	FontSize int
}

// Fit wraps text into maxWidth and adapts the font size.
//
// measure reports the rendered width of a string at baseFontSize. If the
// whole unwrapped string overflows maxWidth the font size is shrunk
// proportionally (with a safety margin, floored at MinFontSize) in a single
// pass; wrapping afterwards corrects any residual overflow. A single word
// wider than maxWidth is kept on its own line, never split.
func Fit(text string, maxWidth float64, measure func(string) float64, baseFontSize int) Result {
	if baseFontSize <= 0 {
		baseFontSize = MinFontSize
	}
	words := strings.Fields(text)
	if len(words) == 0 || maxWidth <= 0 {
		return Result{Lines: nil, FontSize: baseFontSize}
	}

	fontSize := baseFontSize
	if full := measure(text); full > maxWidth {
		shrunk := int(float64(baseFontSize) * (maxWidth / full) * shrinkMargin)
		if shrunk < MinFontSize {
			shrunk = MinFontSize
		}
		fontSize = shrunk
	}

	// measure was taken at baseFontSize; widths scale linearly with size.
	scale := float64(fontSize) / float64(baseFontSize)
	at := func(s string) float64 { return measure(s) * scale }

	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if at(cur+" "+w) <= maxWidth {
			cur += " " + w
			continue
		}
		lines = append(lines, cur)
		cur = w
	}
	lines = append(lines, cur)
	return Result{Lines: lines, FontSize: fontSize}
}

// BlockHeight returns the pixel height of a wrapped block.
func BlockHeight(lineCount, fontSize int) float64 {
	return float64(lineCount) * float64(fontSize) * LineHeight
}
