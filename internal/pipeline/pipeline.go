/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pipeline sequences one command end to end: parse, resolve the base
// image, composite, store, optionally persist. Every external effect comes
// in as an injected capability so a run is testable with in-memory fakes.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"stampd/internal/command"
	"stampd/internal/compose"
	applog "stampd/internal/log"
	"stampd/internal/registry"
)

// State names the stages a run moves through; used for logging and failure
// cause tags.
type State string

const (
	StateReceived  State = "received"
	StateParsed    State = "parsed"
	StateResolving State = "base_image_resolving"
	StateComposing State = "composing"
	StateStored    State = "stored"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Request is one inbound command. Either Text or Override must be set;
// Override wins when both are present.
type Request struct {
	Text           string
	Override       *command.ParsedCommand
	Tag            command.InterfaceTag
	ParentImageURL string
	ClientKey      string
	OwnerHint      string
	Persist        bool
}

// PersistOutcome is the best-effort persistence sub-result. Err is carried
// here instead of failing the run.
type PersistOutcome struct {
	Locator   string
	PublicURL string
	Err       error
}

// RunResult is the outward record of one run.
type RunResult struct {
	ID          string
	Status      Status
	ResultID    string
	PreviewID   string
	ResultURL   string
	PreviewURL  string
	OverlayMode string
	Persisted   *PersistOutcome
	Err         error
}

// Pipeline wires the capabilities around the parser and compositor.
type Pipeline struct {
	Registry  *registry.Registry
	Parser    *command.Parser
	Fetch     Fetcher
	Generate  Generator
	Ephemeral EphemeralStore
	Permanent PermanentStore // optional
	Admit     Admission      // optional
	Assets    AssetLoader    // optional; stamps are skipped without it
	History   HistoryRecorder
	Compose   compose.Options
	Deadline  time.Duration // end-to-end; default 25s
	URLBase   string        // prefix for ephemeral result URLs
}

const defaultDeadline = 25 * time.Second

// Run executes the pipeline for one request. It always returns a RunResult;
// failures carry a classified error and Status StatusFailed.
func (p *Pipeline) Run(ctx context.Context, req Request) RunResult {
	runID := uuid.NewString()
	l := applog.WithComponent("pipeline").With(slog.String("run", runID), slog.String("tag", string(req.Tag)))
	l.Debug("state", slog.String("state", string(StateReceived)))

	// Admission and validation run before any deadline or I/O.
	if p.Admit != nil && req.ClientKey != "" {
		dec, err := p.Admit.Check(ctx, req.ClientKey)
		if err == nil && !dec.Allowed {
			return p.fail(ctx, l, runID, "", &Error{Kind: KindAdmission, Cause: errors.New("rate limit exceeded"), RetryAfter: dec.RetryAfter})
		}
		if err != nil {
			// A broken limiter must not take the service down with it.
			l.Warn("admission check failed open", slog.Any("err", err))
		}
	}

	cmd, err := p.resolveCommand(req)
	if err != nil {
		return p.fail(ctx, l, runID, "", err)
	}
	l.Debug("state", slog.String("state", string(StateParsed)),
		slog.String("action", string(cmd.Action)), slog.String("mode", cmd.OverlayMode))

	deadline := p.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Overlay asset resolution is independent of the base image and runs
	// concurrently with it; its failure is recoverable either way.
	assetCh := p.resolveAssetAsync(ctx, l, cmd.OverlayMode)

	l.Debug("state", slog.String("state", string(StateResolving)))
	baseBytes, err := p.resolveBaseImage(ctx, cmd, req.ParentImageURL)
	if err != nil {
		return p.fail(ctx, l, runID, cmd.OverlayMode, err)
	}

	assetBytes := <-assetCh

	l.Debug("state", slog.String("state", string(StateComposing)))
	res, err := compose.Compose(baseBytes, cmd, assetBytes, p.Compose)
	if err != nil {
		return p.fail(ctx, l, runID, cmd.OverlayMode, failf(KindComposition, "compose: %w", err))
	}

	resultID, err := p.Ephemeral.Put(ctx, res.Full, "image/png")
	if err != nil {
		return p.fail(ctx, l, runID, cmd.OverlayMode, failf(KindStorage, "store result: %w", err))
	}
	previewID, err := p.Ephemeral.Put(ctx, res.Preview, "image/png")
	if err != nil {
		return p.fail(ctx, l, runID, cmd.OverlayMode, failf(KindStorage, "store preview: %w", err))
	}
	l.Info("stored", slog.String("state", string(StateStored)),
		slog.String("result", resultID), slog.String("preview", previewID),
		slog.Int("w", res.Width), slog.Int("h", res.Height))

	out := RunResult{
		ID:          runID,
		Status:      StatusCompleted,
		ResultID:    resultID,
		PreviewID:   previewID,
		ResultURL:   p.urlFor(resultID),
		PreviewURL:  p.urlFor(previewID),
		OverlayMode: cmd.OverlayMode,
	}

	if req.Persist && p.Permanent != nil {
		outcome := &PersistOutcome{}
		persisted, perr := p.Permanent.Persist(ctx, res.Full, resultID+".png", req.OwnerHint)
		if perr != nil {
			// Deliberate partial degradation: the ephemeral result is
			// already usable, so persistence failure never fails the run.
			l.Warn("persist failed", slog.Any("err", perr))
			outcome.Err = perr
		} else {
			outcome.Locator = persisted.Locator
			outcome.PublicURL = persisted.PublicURL
		}
		out.Persisted = outcome
	}

	p.record(ctx, l, HistoryEntry{
		RunID:       runID,
		Status:      string(StatusCompleted),
		OverlayMode: cmd.OverlayMode,
		Action:      string(cmd.Action),
		ResultID:    resultID,
		PreviewID:   previewID,
		CreatedAt:   time.Now().UTC(),
	})
	l.Info("completed", slog.String("state", string(StateCompleted)))
	return out
}

// resolveCommand parses free text or validates an explicit override.
func (p *Pipeline) resolveCommand(req Request) (command.ParsedCommand, error) {
	if req.Override != nil {
		cmd := *req.Override
		if cmd.OverlayMode != "" {
			if _, ok := p.Registry.Lookup(cmd.OverlayMode); !ok {
				return command.ParsedCommand{}, failf(KindValidation, "unknown overlay mode %q", cmd.OverlayMode)
			}
		}
		if cmd.Action != command.ActionGenerate && cmd.Action != command.ActionOverlay {
			return command.ParsedCommand{}, failf(KindValidation, "unknown action %q", cmd.Action)
		}
		if cmd.Action == command.ActionGenerate && cmd.BaseImageURL == "" && !cmd.UseParentImage && strings.TrimSpace(cmd.Prompt) == "" {
			return command.ParsedCommand{}, failf(KindValidation, "generate action requires a prompt")
		}
		if cmd.Controls != nil {
			c := cmd.Controls.Clamped()
			cmd.Controls = &c
		}
		return cmd, nil
	}
	return p.Parser.Parse(req.Text, req.Tag, req.ParentImageURL), nil
}

// resolveBaseImage applies the precedence rule: explicit URL, then parent
// image, then prompt-driven generation.
func (p *Pipeline) resolveBaseImage(ctx context.Context, cmd command.ParsedCommand, parentURL string) ([]byte, error) {
	switch {
	case cmd.BaseImageURL != "":
		data, err := p.Fetch.FetchBytes(ctx, cmd.BaseImageURL)
		if err != nil {
			return nil, p.resolutionErr("fetch base image", err)
		}
		return data, nil
	case cmd.UseParentImage:
		if parentURL == "" {
			return nil, failf(KindResolution, "parent image required but none in context")
		}
		data, err := p.Fetch.FetchBytes(ctx, parentURL)
		if err != nil {
			return nil, p.resolutionErr("fetch parent image", err)
		}
		return data, nil
	case strings.TrimSpace(cmd.Prompt) != "":
		data, err := p.Generate.GenerateImage(ctx, cmd.Prompt)
		if err != nil {
			return nil, p.resolutionErr("generate base image", err)
		}
		return data, nil
	}
	return nil, failf(KindResolution, "no base image source in command")
}

func (p *Pipeline) resolutionErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return failf(KindTimeout, "%s: %w", op, err)
	}
	return failf(KindResolution, "%s: %w", op, err)
}

// resolveAssetAsync looks up the stamp asset and loads it in the background.
// The channel always yields exactly once; nil means no stamp layer.
func (p *Pipeline) resolveAssetAsync(ctx context.Context, l *slog.Logger, mode string) <-chan []byte {
	ch := make(chan []byte, 1)
	if mode == "" || p.Assets == nil {
		ch <- nil
		return ch
	}
	entry, ok := p.Registry.Lookup(mode)
	if !ok {
		ch <- nil
		return ch
	}
	go func() {
		data, err := p.Assets.Load(ctx, entry.Asset)
		if err != nil {
			// Recoverable by contract: the stamp layer is dropped.
			l.Warn("overlay asset unavailable", slog.String("mode", mode), slog.Any("err", err))
			ch <- nil
			return
		}
		ch <- data
	}()
	return ch
}

func (p *Pipeline) fail(ctx context.Context, l *slog.Logger, runID, mode string, err error) RunResult {
	kind := ClassifyKind(err)
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) && kind != KindValidation && kind != KindAdmission {
		kind = KindTimeout
		err = &Error{Kind: KindTimeout, Cause: err}
	}
	l.Error("failed", slog.String("state", string(StateFailed)),
		slog.String("kind", string(kind)), slog.Any("err", err))
	p.record(ctx, l, HistoryEntry{
		RunID:       runID,
		Status:      string(StatusFailed),
		OverlayMode: mode,
		FailKind:    string(kind),
		CreatedAt:   time.Now().UTC(),
	})
	return RunResult{ID: runID, Status: StatusFailed, OverlayMode: mode, Err: err}
}

func (p *Pipeline) record(ctx context.Context, l *slog.Logger, e HistoryEntry) {
	if p.History == nil {
		return
	}
	// History never interferes with the run outcome.
	if err := p.History.Record(context.WithoutCancel(ctx), e); err != nil {
		l.Warn("history record failed", slog.Any("err", err))
	}
}

func (p *Pipeline) urlFor(id string) string {
	base := strings.TrimRight(p.URLBase, "/")
	if base == "" {
		return "ephemeral://" + id
	}
	return base + "/" + id
}
