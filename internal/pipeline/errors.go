/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind buckets run failures so callers can map them onto response codes and
// retry advice without string matching.
type Kind string

const (
	// KindValidation: bad command shape; rejected before any I/O.
	KindValidation Kind = "validation"
	// KindAdmission: rate limit exceeded; rejected before any resource use.
	KindAdmission Kind = "admission_denied"
	// KindResolution: the base image could not be obtained.
	KindResolution Kind = "resolution"
	// KindComposition: the base image could not be decoded or rendered.
	KindComposition Kind = "composition"
	// KindStorage: the ephemeral store rejected the result buffers.
	KindStorage Kind = "storage"
	// KindTimeout: the end-to-end deadline expired.
	KindTimeout Kind = "timeout"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind       Kind
	Cause      error
	RetryAfter time.Duration // set for admission denials
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

func failf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// ClassifyKind extracts the failure kind, defaulting to resolution for
// unclassified errors.
func ClassifyKind(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindResolution
}
