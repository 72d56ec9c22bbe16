/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textfit

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// FontSpec names a face from the closed system-category set.
type FontSpec struct {
	Family string // sans | serif | mono
	Style  string // regular | bold | italic
	Size   float64
}

// Metrics carries face metrics in pixels.
type Metrics struct {
	Ascent, Descent float32
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider serves x/image's fixed 7x13 face regardless of spec; it keeps
// measurement deterministic in tests and works with zero configuration.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	m := f.Metrics()
	return f, Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
	}
}

type libKey struct {
	family string
	style  string
}

// Library stores parsed OpenType fonts keyed by category and style.
type Library struct {
	fonts map[libKey]*opentype.Font
}

func NewLibrary() *Library { return &Library{fonts: make(map[libKey]*opentype.Font)} }

// LoadTTF parses a font file into the library under family/style.
func (l *Library) LoadTTF(family, style, path string) error {
	if l.fonts == nil {
		l.fonts = make(map[libKey]*opentype.Font)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", path, err)
	}
	l.fonts[libKey{family: family, style: style}] = f
	return nil
}

func (l *Library) find(spec FontSpec) *opentype.Font {
	if l == nil || l.fonts == nil {
		return nil
	}
	if f, ok := l.fonts[libKey{family: spec.Family, style: spec.Style}]; ok {
		return f
	}
	if f, ok := l.fonts[libKey{family: spec.Family, style: "regular"}]; ok {
		return f
	}
	for k, f := range l.fonts {
		if k.family == spec.Family {
			return f
		}
	}
	return nil
}

// OTProvider resolves FontSpec from a Library and falls back to another
// Provider (BasicProvider when nil).
type OTProvider struct {
	Lib      *Library
	DPI      float64 // default 72
	Fallback Provider
}

func (p OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.Size <= 0 {
		spec.Size = MinFontSize
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}
	if f := p.Lib.find(spec); f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: spec.Size, DPI: dpi, Hinting: font.HintingFull})
		if err == nil {
			m := face.Metrics()
			return face, Metrics{
				Ascent:  float32(m.Ascent.Round()),
				Descent: float32(m.Descent.Round()),
			}
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}

// MeasureWith builds a width-measure function over a resolved face, in the
// shape Fit expects.
func MeasureWith(face font.Face) func(string) float64 {
	d := &font.Drawer{Face: face}
	return func(s string) float64 {
		return float64(d.MeasureString(s)) / 64 // fixed.Int26_6 to px
	}
}
