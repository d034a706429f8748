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

package docsearch

import "errors"

var (
	// ErrInitFailed is returned by WaitReady when the worker reports an
	// initialization failure it cannot recover from by itself.
	ErrInitFailed = errors.New("worker initialization failed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrNotStarted is returned by WaitReady before Start.
	ErrNotStarted = errors.New("engine not started")
)
