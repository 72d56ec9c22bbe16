/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package compose

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"stampd/internal/command"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func decodePNG(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return img
}

func TestComposeBaseOnly(t *testing.T) {
	base := pngBytes(t, 64, 48, color.RGBA{10, 200, 30, 255})
	res, err := Compose(base, command.ParsedCommand{Action: command.ActionOverlay}, nil, Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	img := decodePNG(t, res.Full)
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Fatalf("full size = %v", img.Bounds())
	}
	r, g, b, _ := img.At(32, 24).RGBA()
	if r>>8 != 10 || g>>8 != 200 || b>>8 != 30 {
		t.Fatalf("base pixel altered: %v %v %v", r>>8, g>>8, b>>8)
	}
}

func TestComposeUndecodableBaseIsFatal(t *testing.T) {
	if _, err := Compose([]byte("not an image"), command.ParsedCommand{}, nil, Options{}); err == nil {
		t.Fatalf("expected decode error for garbage base")
	}
}

// Mirrors the partial-failure guarantee: stamp requested, asset missing,
// tint still applied, no error.
func TestComposeMissingOverlayAssetIsRecoverable(t *testing.T) {
	base := pngBytes(t, 512, 512, color.RGBA{255, 0, 0, 255})
	cmd := command.ParsedCommand{
		Action:      command.ActionOverlay,
		OverlayMode: "higherify",
		Controls:    &command.Controls{Scale: 1, OverlayAlpha: 0.3},
	}
	res, err := Compose(base, cmd, nil, Options{})
	if err != nil {
		t.Fatalf("Compose should succeed without the asset: %v", err)
	}
	img := decodePNG(t, res.Full)
	if img.Bounds().Dx() != 512 || img.Bounds().Dy() != 512 {
		t.Fatalf("size = %v", img.Bounds())
	}
	r, _, _, _ := img.At(256, 256).RGBA()
	// 30% black over pure red leaves roughly 70% of the red channel.
	if got := int(r >> 8); got < 160 || got > 195 {
		t.Fatalf("tint not applied, red channel = %d", got)
	}
}

func TestComposeUndecodableOverlayAssetIsRecoverable(t *testing.T) {
	base := pngBytes(t, 64, 64, color.RGBA{255, 255, 255, 255})
	cmd := command.ParsedCommand{Action: command.ActionOverlay, OverlayMode: "higherify"}
	res, err := Compose(base, cmd, []byte("junk bytes"), Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	img := decodePNG(t, res.Full)
	r, g, b, _ := img.At(32, 32).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("canvas should be untouched base: %v %v %v", r>>8, g>>8, b>>8)
	}
}

func TestComposeStampScaledAndCentered(t *testing.T) {
	base := pngBytes(t, 100, 100, color.RGBA{255, 255, 255, 255})
	stamp := pngBytes(t, 10, 10, color.RGBA{0, 0, 255, 255})
	cmd := command.ParsedCommand{
		Action:      command.ActionOverlay,
		OverlayMode: "higherify",
		Controls:    &command.Controls{Scale: 2},
	}
	res, err := Compose(base, cmd, stamp, Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	img := decodePNG(t, res.Full)
	// 10x10 stamp at scale 2 covers (40,40)-(60,60).
	_, _, b, _ := img.At(50, 50).RGBA()
	if b>>8 < 200 {
		t.Fatalf("stamp center not drawn, blue = %d", b>>8)
	}
	r, g, b2, _ := img.At(5, 5).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b2>>8 != 255 {
		t.Fatalf("corner should stay white")
	}
}

func TestComposeStampOffset(t *testing.T) {
	base := pngBytes(t, 100, 100, color.RGBA{255, 255, 255, 255})
	stamp := pngBytes(t, 10, 10, color.RGBA{0, 0, 255, 255})
	cmd := command.ParsedCommand{
		Action:      command.ActionOverlay,
		OverlayMode: "higherify",
		Controls:    &command.Controls{Scale: 1, X: 30, Y: -20},
	}
	res, err := Compose(base, cmd, stamp, Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	img := decodePNG(t, res.Full)
	_, _, b, _ := img.At(80, 30).RGBA()
	if b>>8 < 200 {
		t.Fatalf("offset stamp not where expected")
	}
	_, _, bCenter, _ := img.At(50, 50).RGBA()
	if bCenter>>8 > 200 {
		t.Fatalf("stamp still at center despite offsets")
	}
}

func TestComposeTextMarksCanvas(t *testing.T) {
	base := pngBytes(t, 200, 120, color.RGBA{0, 0, 0, 255})
	white := command.Color{R: 255, G: 255, B: 255, A: 255}
	cmd := command.ParsedCommand{
		Action: command.ActionOverlay,
		Text:   &command.TextSpec{Content: "GM", Position: "bottom", Color: &white},
	}
	res, err := Compose(base, cmd, nil, Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	img := decodePNG(t, res.Full)
	lit := 0
	for y := 60; y < 120; y++ {
		for x := 0; x < 200; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r>>8 > 128 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Fatalf("no text pixels rendered in bottom band")
	}
}

func TestComposeTextBackgroundRect(t *testing.T) {
	base := pngBytes(t, 200, 120, color.RGBA{0, 0, 0, 255})
	bg := command.Color{R: 255, G: 0, B: 0, A: 255}
	cmd := command.ParsedCommand{
		Action: command.ActionOverlay,
		Text:   &command.TextSpec{Content: "HELLO", Position: "center", BackgroundColor: &bg},
	}
	res, err := Compose(base, cmd, nil, Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	img := decodePNG(t, res.Full)
	r, _, _, _ := img.At(100, 60).RGBA()
	if r>>8 < 200 {
		t.Fatalf("background rect not drawn at anchor, red = %d", r>>8)
	}
}

func TestComposePreviewAspect(t *testing.T) {
	base := pngBytes(t, 600, 300, color.RGBA{1, 2, 3, 255})
	res, err := Compose(base, command.ParsedCommand{Action: command.ActionOverlay}, nil, Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	pv := decodePNG(t, res.Preview)
	if pv.Bounds().Dx() != DefaultPreviewWidth || pv.Bounds().Dy() != 150 {
		t.Fatalf("preview size = %v, want 300x150", pv.Bounds())
	}
}

// The preview must reflect the composited canvas, not the raw base.
func TestComposePreviewIncludesLayers(t *testing.T) {
	base := pngBytes(t, 600, 600, color.RGBA{255, 255, 255, 255})
	stamp := pngBytes(t, 300, 300, color.RGBA{0, 0, 255, 255})
	cmd := command.ParsedCommand{Action: command.ActionOverlay, OverlayMode: "higherify"}
	res, err := Compose(base, cmd, stamp, Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	pv := decodePNG(t, res.Preview)
	_, _, b, _ := pv.At(150, 150).RGBA()
	if b>>8 < 200 {
		t.Fatalf("preview missing composited stamp")
	}
}
