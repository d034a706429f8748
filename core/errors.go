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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidPage indicates a Page failed validation.
	ErrInvalidPage = errors.New("invalid page")

	// ErrInvalidSection indicates a PageSection failed validation.
	ErrInvalidSection = errors.New("invalid page section")

	// ErrInvalidID indicates a primary or foreign key is not positive.
	ErrInvalidID = errors.New("id must be positive")

	// ErrEmptyPath indicates the Path field is empty.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidPageType indicates an unknown PageType value.
	ErrInvalidPageType = errors.New("invalid page type")
)
