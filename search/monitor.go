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

import (
	"time"

	"github.com/poiesic/docsearch/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterEmbedding(vector []float32, elapsed time.Duration)
	AfterVectorSearch(rows []*core.MatchRow, elapsed time.Duration)
	Finish(rows []*core.MatchRow, err error)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                        {}
func (n *noopMonitor) AfterEmbedding(_ []float32, _ time.Duration)           {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.MatchRow, _ time.Duration) {}
func (n *noopMonitor) Finish(_ []*core.MatchRow, _ error)                    {}
