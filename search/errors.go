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

package search

import "errors"

var (
	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("store required")

	// ErrExtractorRequired is returned when an embedding extractor is not provided.
	ErrExtractorRequired = errors.New("embedding extractor required")

	// ErrEmptyQuery is returned when the query is blank.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidThreshold is returned for a threshold outside [-1, 1].
	ErrInvalidThreshold = errors.New("threshold must be within [-1, 1]")

	// ErrInvalidLimit is returned when the result limit is not positive.
	ErrInvalidLimit = errors.New("limit must be positive")
)
