/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package admission is a per-caller fixed-window rate limiter. Counters
// live in process memory; restarting the binary resets them.
package admission

import (
	"context"
	"sync"
	"time"

	"stampd/internal/pipeline"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// Limiter allows up to Limit runs per caller per Window.
type Limiter struct {
	Limit  int
	Window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time // test hook
}

// New creates a Limiter. Non-positive limit or window fall back to
// 10 runs per minute.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		Limit:   limit,
		Window:  window,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
}

// Check consumes one slot for clientKey if available. The decision carries
// the remaining quota and, on denial, how long until the window resets.
func (l *Limiter) Check(ctx context.Context, clientKey string) (pipeline.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b := l.buckets[clientKey]
	if b == nil || now.Sub(b.windowStart) >= l.Window {
		b = &bucket{windowStart: now}
		l.buckets[clientKey] = b
	}
	if b.count >= l.Limit {
		return pipeline.Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: b.windowStart.Add(l.Window).Sub(now),
		}, nil
	}
	b.count++
	return pipeline.Decision{Allowed: true, Remaining: l.Limit - b.count}, nil
}

// Sweep drops buckets whose window has long passed. Callers may run this
// periodically to bound memory on busy services.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, b := range l.buckets {
		if now.Sub(b.windowStart) >= 2*l.Window {
			delete(l.buckets, k)
		}
	}
}
