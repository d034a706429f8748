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

// Package ai provides the query embedding machinery used by docsearch.
//
// The package separates three concerns:
//
//   - Embedder: a model backend that maps text to a vector
//   - Loader: a function that constructs an Embedder, possibly slowly
//   - Extractor: the lazily initialised, single-flight wrapper the search
//     worker calls. It L2-normalizes every vector so that inner product
//     equals cosine similarity.
//
// # Implementation Packages
//
//   - ai/fastembed: local ONNX models (bge-small-en-v1.5 by default, cgo only)
//   - ai/openai: OpenAI-compatible embedding endpoints via langchaingo
//   - ai/mock: deterministic test doubles
//
// # Usage Example
//
//	loader := fastembed.NewLoader(ai.DefaultConfig())
//	extractor, err := ai.NewExtractor(loader, ai.WithExpectedDimension(384))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer extractor.Close()
//
//	if err := extractor.Warm(ctx); err != nil {
//	    // errors.Is(err, ai.ErrExtractorInitFailed) and every later call fails the same way
//	}
//	vec, err := extractor.Extract(ctx, "row level security")
package ai
