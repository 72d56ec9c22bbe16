/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package fetch retrieves remote images over HTTP and resolves overlay
// assets from a local directory with an HTTP fallback.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxBytes caps a single download. Base images larger than this are refused
// rather than buffered.
const MaxBytes = 32 << 20

// StatusError reports a non-2xx response. Transport failures are returned
// as-is so callers can tell the two apart.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

// Client downloads binary content. The zero value is not usable; call New.
type Client struct {
	hc *http.Client
}

// New creates a Client with the given per-request timeout. A zero timeout
// means the caller's context is the only limit.
func New(timeout time.Duration) *Client {
	return &Client{hc: &http.Client{Timeout: timeout}}
}

// FetchBytes downloads a URL into memory. Only http and https schemes are
// accepted.
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch %s: unsupported scheme %q", rawURL, u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}
	if len(data) > MaxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", rawURL, MaxBytes)
	}
	return data, nil
}

// AssetLoader resolves overlay asset locators. Plain file names are read
// from Dir; absolute URLs are fetched via the Client.
type AssetLoader struct {
	Dir    string
	Client *Client
}

// Load returns the asset bytes for a locator. File names must stay inside
// Dir; path traversal is rejected.
func (a *AssetLoader) Load(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, errors.New("asset: empty locator")
	}
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		if a.Client == nil {
			return nil, fmt.Errorf("asset %s: no http client configured", locator)
		}
		return a.Client.FetchBytes(ctx, locator)
	}
	if a.Dir == "" {
		return nil, fmt.Errorf("asset %s: no asset directory configured", locator)
	}
	clean := filepath.Clean(locator)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("asset %s: locator escapes asset directory", locator)
	}
	data, err := os.ReadFile(filepath.Join(a.Dir, clean))
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", locator, err)
	}
	return data, nil
}
