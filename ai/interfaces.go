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

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Closer is implemented by embedders holding native resources (model sessions,
// tokenizers) that must be released explicitly.
type Closer interface {
	Close() error
}

// Loader constructs an Embedder. Loading may be slow (model download, session
// creation), so the Extractor calls it lazily and at most once.
type Loader func(ctx context.Context) (Embedder, error)
