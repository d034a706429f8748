// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Extractor turns a query into a unit-length embedding vector.
//
// The underlying model is loaded lazily on first use, exactly once per
// Extractor: concurrent first callers wait on the same load. A load failure
// is sticky and every later call returns an error wrapping
// ErrExtractorInitFailed. Loads abandoned because the caller's context ended
// are not recorded, so a later call may try again.
type Extractor struct {
	loader    Loader
	dimension int
	logger    *slog.Logger

	mu       sync.Mutex
	embedder Embedder
	initErr  error
	closed   bool
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor) error

// WithExpectedDimension rejects vectors whose length differs from dim.
// Zero disables the check.
func WithExpectedDimension(dim int) ExtractorOption {
	return func(e *Extractor) error {
		if dim < 0 {
			return errors.New("dimension cannot be negative")
		}
		e.dimension = dim
		return nil
	}
}

// WithExtractorLogger sets the logger.
// If logger is nil, slog.Default() is used.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewExtractor creates an Extractor backed by the embedder that loader produces.
// The loader is not called until Warm or Extract.
func NewExtractor(loader Loader, opts ...ExtractorOption) (*Extractor, error) {
	if loader == nil {
		return nil, ErrLoaderRequired
	}
	e := &Extractor{
		loader: loader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "extractor")
	return e, nil
}

// load returns the embedder, constructing it on first use.
func (e *Extractor) load(ctx context.Context) (Embedder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExtractorClosed
	}
	if e.embedder != nil {
		return e.embedder, nil
	}
	if e.initErr != nil {
		return nil, e.initErr
	}

	e.logger.Debug("loading embedding model")
	embedder, err := e.loader(ctx)
	if err == nil && embedder == nil {
		err = errors.New("loader returned no embedder")
	}
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrExtractorInitFailed, err)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			e.logger.Debug("model load abandoned", "err", err)
			return nil, wrapped
		}
		e.logger.Error("failed to load embedding model", "err", err)
		e.initErr = wrapped
		return nil, wrapped
	}

	e.embedder = embedder
	e.logger.Debug("embedding model loaded")
	return embedder, nil
}

// Warm forces the model to load. It returns the load error, if any.
func (e *Extractor) Warm(ctx context.Context) error {
	_, err := e.load(ctx)
	return err
}

// Ready reports whether the model has been loaded successfully.
func (e *Extractor) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.embedder != nil && !e.closed
}

// Extract embeds text and returns the L2-normalized vector.
func (e *Extractor) Extract(ctx context.Context, text string) ([]float32, error) {
	embedder, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	vec, err := embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), e.dimension)
	}

	return NormalizeVector(vec), nil
}

// Close releases the model. Calls after Close fail with ErrExtractorClosed.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if closer, ok := e.embedder.(Closer); ok {
		return closer.Close()
	}
	return nil
}
