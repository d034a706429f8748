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

package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docsearch/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// batchSize bounds the texts sent in one embeddings request.
const batchSize = 64

// Embedder implements ai.Embedder on an OpenAI-compatible /v1/embeddings
// endpoint: OpenAI itself, Ollama, LocalAI or vLLM.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

func newEmbedder(config *ai.Config, token string) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if token == "" {
		// Local OpenAI-compatible servers ignore the token but the client requires one
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batchSize))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		model:    config.Model,
		logger:   slog.Default().With("component", "openai-embedder", "model", config.Model),
	}, nil
}

// NewEmbedder creates an embedder for config. token may be empty for local
// servers.
func NewEmbedder(config *ai.Config, token string) (ai.Embedder, error) {
	return newEmbedder(config, token)
}

// EmbedText embeds a search query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Warn("query embedding failed", "length", len(text), "err", err)
		return nil, fmt.Errorf("embed query with %s: %w", e.model, err)
	}
	return vec, nil
}

// EmbedTexts embeds texts in requests of at most batchSize.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Warn("batch embedding failed", "count", len(texts), "err", err)
		return nil, fmt.Errorf("embed %d texts with %s: %w", len(texts), e.model, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed %d texts with %s: got %d vectors", len(texts), e.model, len(vecs))
	}
	return vecs, nil
}
