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

import "errors"

var (
	// ErrExtractorInitFailed indicates the embedding model could not be loaded.
	// Once returned by an Extractor it is returned for every later call.
	ErrExtractorInitFailed = errors.New("extractor init failed")

	// ErrExtractorClosed indicates Extract was called after Close.
	ErrExtractorClosed = errors.New("extractor closed")

	// ErrLoaderRequired indicates an Extractor was built without a Loader.
	ErrLoaderRequired = errors.New("loader is required")

	// ErrDimensionMismatch indicates the model produced a vector of unexpected size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding indicates the model produced no vector for the input.
	ErrEmptyEmbedding = errors.New("empty embedding")

	// ErrUnknownProvider indicates Config.Provider names no known backend.
	ErrUnknownProvider = errors.New("unknown embedding provider")
)
