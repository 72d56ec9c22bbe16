/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders run history into shareable documents.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"stampd/internal/pipeline"
)

// SheetOptions controls the contact-sheet layout. Units are millimeters.
type SheetOptions struct {
	Title   string
	Columns int // default 2
	Rows    int // default 3 per page
	Margin  float64
}

// ContactSheet writes a PDF grid of result previews for the given history
// entries. Failed runs and runs whose preview blob has expired are skipped;
// the count of placed images is returned.
func ContactSheet(ctx context.Context, blobs pipeline.EphemeralStore, entries []pipeline.HistoryEntry, outPath string, opt SheetOptions) (int, error) {
	cols := opt.Columns
	if cols <= 0 {
		cols = 2
	}
	rows := opt.Rows
	if rows <= 0 {
		rows = 3
	}
	margin := opt.Margin
	if margin <= 0 {
		margin = 12
	}
	title := opt.Title
	if title == "" {
		title = "Result History"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.SetFont("Helvetica", "", 9)

	pageW, pageH := pdf.GetPageSize()
	const captionH = 10.0
	cellW := (pageW - 2*margin) / float64(cols)
	cellH := (pageH - 2*margin - 8) / float64(rows)
	imgH := cellH - captionH

	placed := 0
	for _, e := range entries {
		if e.PreviewID == "" {
			continue
		}
		data, _, err := blobs.Get(ctx, e.PreviewID)
		if err != nil {
			continue
		}
		slot := placed % (cols * rows)
		if slot == 0 {
			pdf.AddPage()
			pdf.SetFont("Helvetica", "B", 12)
			pdf.Text(margin, margin-2, title)
			pdf.SetFont("Helvetica", "", 9)
		}
		col := slot % cols
		row := slot / cols
		x := margin + float64(col)*cellW
		y := margin + 8 + float64(row)*cellH

		name := "preview-" + e.PreviewID
		info := pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
		if pdf.Err() {
			return placed, fmt.Errorf("register preview %s: %v", e.PreviewID, pdf.Error())
		}
		// Fit into the cell, preserving aspect ratio.
		w := cellW - 4
		h := w * info.Height() / info.Width()
		if h > imgH-4 {
			h = imgH - 4
			w = h * info.Width() / info.Height()
		}
		pdf.ImageOptions(name, x+2+(cellW-4-w)/2, y+2, w, h, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

		caption := e.RunID
		if e.OverlayMode != "" {
			caption += "  " + e.OverlayMode
		}
		if !e.CreatedAt.IsZero() {
			caption += "  " + e.CreatedAt.Format(time.DateOnly)
		}
		pdf.Text(x+2, y+imgH+4, caption)
		placed++
	}

	if placed == 0 {
		return 0, fmt.Errorf("no previews available to export")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return placed, fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return placed, fmt.Errorf("write pdf: %w", err)
	}
	return placed, nil
}
