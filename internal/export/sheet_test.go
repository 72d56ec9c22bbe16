/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stampd/internal/pipeline"
)

type memBlobs struct {
	blobs map[string][]byte
}

func (m *memBlobs) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	panic("not used")
}

func (m *memBlobs) Get(ctx context.Context, id string) ([]byte, string, error) {
	d, ok := m.blobs[id]
	if !ok {
		return nil, "", pipeline.ErrNotFound
	}
	return d, "image/png", nil
}

func previewPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestContactSheetWritesPDF(t *testing.T) {
	blobs := &memBlobs{blobs: map[string][]byte{
		"p1": previewPNG(t),
		"p2": previewPNG(t),
	}}
	entries := []pipeline.HistoryEntry{
		{RunID: "run-1", Status: "completed", OverlayMode: "higherify", PreviewID: "p1", CreatedAt: time.Now()},
		{RunID: "run-2", Status: "completed", PreviewID: "p2", CreatedAt: time.Now()},
		{RunID: "run-3", Status: "failed"},          // no preview
		{RunID: "run-4", PreviewID: "gone-expired"}, // blob expired
	}
	out := filepath.Join(t.TempDir(), "sheets", "history.pdf")
	n, err := ContactSheet(context.Background(), blobs, entries, out, SheetOptions{Title: "Test Sheet"})
	if err != nil {
		t.Fatalf("ContactSheet: %v", err)
	}
	if n != 2 {
		t.Fatalf("placed = %d, want 2", n)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF (starts with %q)", data[:8])
	}
}

func TestContactSheetNoPreviews(t *testing.T) {
	blobs := &memBlobs{blobs: map[string][]byte{}}
	out := filepath.Join(t.TempDir(), "history.pdf")
	if _, err := ContactSheet(context.Background(), blobs, []pipeline.HistoryEntry{{RunID: "r"}}, out, SheetOptions{}); err == nil {
		t.Fatalf("expected error when nothing can be placed")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output file written despite failure")
	}
}
