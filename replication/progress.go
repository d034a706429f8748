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

package replication

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports replication progress to a writer.
// The row total is unknown up front, so it reports counts and rates only.
type ProgressTracker struct {
	writer         io.Writer
	reportInterval int
	pages          int
	sections       int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress output (typically os.Stderr)
// reportInterval: report progress every N rows
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.pages = 0
	p.sections = 0
	p.lastReported = 0
}

// Add records delta processed rows of table.
func (p *ProgressTracker) Add(table string, delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	switch table {
	case TablePages:
		p.pages += delta
	case TableSections:
		p.sections += delta
	}

	if total := p.pages + p.sections; total-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = total
	}
}

// Finish prints final progress.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}

	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.pages+p.sections) / elapsed.Seconds()

	fmt.Fprintf(p.writer, "\rReplicated: %d pages, %d sections - %.1f rows/s",
		p.pages, p.sections, rate)
}
