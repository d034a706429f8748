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

package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrOrphanSection indicates a section references a page that is not stored.
	ErrOrphanSection = errors.New("section references missing page")

	// ErrSchemaMissing indicates the store was used before EnsureSchema.
	ErrSchemaMissing = errors.New("schema not initialized")

	// ErrSchemaMismatch indicates the store holds data written by another schema version.
	ErrSchemaMismatch = errors.New("schema version mismatch")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)
