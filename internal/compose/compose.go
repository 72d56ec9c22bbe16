/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package compose renders a ParsedCommand onto a base image. It is a pure
// function over supplied bytes: all fetching happens upstream, so every
// layering decision here is deterministic and unit-testable.
package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"stampd/internal/command"
	applog "stampd/internal/log"
	"stampd/internal/textfit"
)

const (
	// DefaultPreviewWidth is the fixed preview target width.
	DefaultPreviewWidth = 300
	// DefaultPadding is the inset used for text anchors and wrapping.
	DefaultPadding = 24

	shadowOffset = 2
)

// Options tunes composition; zero values select the documented defaults.
type Options struct {
	Provider     textfit.Provider // font source; BasicProvider when nil
	PreviewWidth int
	Padding      int
}

func (o Options) provider() textfit.Provider {
	if o.Provider != nil {
		return o.Provider
	}
	return textfit.BasicProvider{}
}

func (o Options) previewWidth() int {
	if o.PreviewWidth > 0 {
		return o.PreviewWidth
	}
	return DefaultPreviewWidth
}

func (o Options) padding() int {
	if o.Padding > 0 {
		return o.Padding
	}
	return DefaultPadding
}

// Result carries the encoded outputs and the full canvas dimensions.
type Result struct {
	Full    []byte
	Preview []byte
	Width   int
	Height  int
}

// Compose layers the command's effects over the base image, strictly in
// order: base, tint, stamp, text. overlayAsset may be empty when the asset
// fetch failed upstream; the stamp layer is then skipped and composition
// still succeeds. Only an undecodable base image is fatal.
func Compose(baseImage []byte, cmd command.ParsedCommand, overlayAsset []byte, opts Options) (Result, error) {
	l := applog.WithComponent("compose")

	base, _, err := image.Decode(bytes.NewReader(baseImage))
	if err != nil {
		return Result{}, fmt.Errorf("decode base image: %w", err)
	}
	b := base.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), base, b.Min, draw.Src)

	ctr := cmd.EffectiveControls()

	if ctr.OverlayAlpha > 0 {
		tint := ctr.TintColor()
		src := image.NewUniform(color.NRGBA{R: tint.R, G: tint.G, B: tint.B, A: uint8(math.Round(ctr.OverlayAlpha * 255))})
		draw.Draw(canvas, canvas.Bounds(), src, image.Point{}, draw.Over)
	}

	if cmd.OverlayMode != "" && len(overlayAsset) > 0 {
		if stamp, _, err := image.Decode(bytes.NewReader(overlayAsset)); err != nil {
			// Recoverable: the result is the base plus the remaining layers.
			l.Warn("overlay asset undecodable, skipping stamp",
				slog.String("mode", cmd.OverlayMode), slog.Any("err", err))
		} else {
			drawStamp(canvas, stamp, ctr)
		}
	}

	if cmd.Text != nil && cmd.Text.Content != "" {
		drawText(canvas, *cmd.Text, opts)
	}

	var full bytes.Buffer
	if err := png.Encode(&full, canvas); err != nil {
		return Result{}, fmt.Errorf("encode full image: %w", err)
	}

	preview, err := encodePreview(canvas, opts.previewWidth())
	if err != nil {
		return Result{}, err
	}

	return Result{Full: full.Bytes(), Preview: preview, Width: b.Dx(), Height: b.Dy()}, nil
}

// drawStamp scales the stamp by ctr.Scale and draws it centered on the
// canvas, shifted by the (x, y) offsets.
func drawStamp(canvas *image.RGBA, stamp image.Image, ctr command.Controls) {
	sb := stamp.Bounds()
	scaledW := int(math.Round(float64(sb.Dx()) * ctr.Scale))
	scaledH := int(math.Round(float64(sb.Dy()) * ctr.Scale))
	if scaledW <= 0 || scaledH <= 0 {
		return
	}
	cw, ch := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	x0 := cw/2 - scaledW/2 + ctr.X
	y0 := ch/2 - scaledH/2 + ctr.Y
	dst := image.Rect(x0, y0, x0+scaledW, y0+scaledH)
	xdraw.BiLinear.Scale(canvas, dst, stamp, sb, xdraw.Over, nil)
}

// drawText fits, wraps and renders the text block. It never fails: missing
// fields fall back to defaults and unrenderable geometry degrades to a no-op.
func drawText(canvas *image.RGBA, spec command.TextSpec, opts Options) {
	cw, ch := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	padding := opts.padding()
	maxWidth := float64(cw - 2*padding)
	if maxWidth <= 0 {
		return
	}

	prov := opts.provider()
	baseSize := spec.EffectiveFontSize()
	face, _ := prov.Resolve(textfit.FontSpec{Family: spec.FontFamily, Style: spec.FontStyle, Size: float64(baseSize)})
	fit := textfit.Fit(spec.Content, maxWidth, textfit.MeasureWith(face), baseSize)
	if len(fit.Lines) == 0 {
		return
	}
	if fit.FontSize != baseSize {
		face, _ = prov.Resolve(textfit.FontSpec{Family: spec.FontFamily, Style: spec.FontStyle, Size: float64(fit.FontSize)})
	}
	measure := textfit.MeasureWith(face)

	anchor := textfit.ParseAnchor(spec.Position)
	anchorX := anchor.AnchorX(cw, padding)
	anchorY := anchor.AnchorY(ch, padding, fit.FontSize)
	tops := textfit.LineTops(anchorY, len(fit.Lines), fit.FontSize)

	// The text layer is rendered separately so rotation can transform it as
	// one unit before compositing.
	layer := canvas
	rotated := spec.RotationDegrees != 0
	if rotated {
		layer = image.NewRGBA(canvas.Bounds())
	}

	if spec.BackgroundColor != nil {
		drawTextBackground(layer, fit, measure, anchor, anchorX, tops, *spec.BackgroundColor)
	}

	for i, line := range fit.Lines {
		w := measure(line)
		x := anchorX
		switch anchor.H {
		case textfit.AlignCenter:
			x -= w / 2
		case textfit.AlignRight:
			x -= w
		}
		// Baseline sits a full font size below the line top; close enough
		// across the three system faces.
		y := tops[i] + float64(fit.FontSize)

		drawLine(layer, face, line, x+shadowOffset, y+shadowOffset, color.NRGBA{0, 0, 0, 128})
		if spec.StrokeWidth > 0 && spec.StrokeColor != nil {
			sc := spec.StrokeColor.RGBA()
			for dx := -spec.StrokeWidth; dx <= spec.StrokeWidth; dx++ {
				for dy := -spec.StrokeWidth; dy <= spec.StrokeWidth; dy++ {
					if dx == 0 && dy == 0 {
						continue
					}
					drawLine(layer, face, line, x+float64(dx), y+float64(dy), sc)
				}
			}
		}
		drawLine(layer, face, line, x, y, spec.FillColor().RGBA())
	}

	if rotated {
		rad := spec.RotationDegrees * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)
		// Rotate the layer about the anchor point.
		m := f64.Aff3{
			cos, -sin, anchorX - cos*anchorX + sin*anchorY,
			sin, cos, anchorY - sin*anchorX - cos*anchorY,
		}
		xdraw.BiLinear.Transform(canvas, m, layer, layer.Bounds(), xdraw.Over, nil)
	}
}

func drawTextBackground(layer *image.RGBA, fit textfit.Result, measure func(string) float64, anchor textfit.Anchor, anchorX float64, tops []float64, bg command.Color) {
	maxW := 0.0
	for _, line := range fit.Lines {
		if w := measure(line); w > maxW {
			maxW = w
		}
	}
	margin := float64(fit.FontSize) / 2
	left := anchorX
	switch anchor.H {
	case textfit.AlignCenter:
		left -= maxW / 2
	case textfit.AlignRight:
		left -= maxW
	}
	top := tops[0]
	bottom := tops[len(tops)-1] + float64(fit.FontSize)*textfit.LineHeight
	rect := image.Rect(
		int(left-margin), int(top-margin/2),
		int(left+maxW+margin), int(bottom+margin/2),
	).Intersect(layer.Bounds())
	src := image.NewUniform(color.NRGBA{R: bg.R, G: bg.G, B: bg.B, A: bg.A})
	draw.Draw(layer, rect, src, image.Point{}, draw.Over)
}

func drawLine(dst draw.Image, face font.Face, s string, x, y float64, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: floatFixed(x), Y: floatFixed(y)},
	}
	d.DrawString(s)
}

func floatFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }

// encodePreview resamples the composited canvas down to the fixed preview
// width, preserving aspect ratio, in a single draw.
func encodePreview(canvas *image.RGBA, width int) ([]byte, error) {
	cw, ch := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	height := int(math.Round(float64(width) * float64(ch) / float64(cw)))
	if height < 1 {
		height = 1
	}
	preview := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(preview, preview.Bounds(), canvas, canvas.Bounds(), xdraw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, preview); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
