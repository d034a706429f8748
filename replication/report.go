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
	"errors"
	"sync"
	"time"
)

// Table names, as used in reports, errors and metrics.
const (
	TablePages    = "page"
	TableSections = "page_section"
)

// TableStats summarises one table's replication.
type TableStats struct {
	Fetches   int // Batch requests issued
	Fetched   int // Rows returned by the source
	Upserted  int // Rows written
	Unchanged int // Rows already stored with identical content
	Failed    int // Rows recorded as RowError
}

// Report is the outcome of a replication run.
type Report struct {
	Pages    TableStats
	Sections TableStats
	Errors   []*RowError
	Duration time.Duration

	mu sync.Mutex
}

func (r *Report) stats(table string) *TableStats {
	if table == TablePages {
		return &r.Pages
	}
	return &r.Sections
}

func (r *Report) addFetch(table string, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats(table)
	s.Fetches++
	s.Fetched += rows
}

func (r *Report) addResult(table string, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if changed {
		r.stats(table).Upserted++
	} else {
		r.stats(table).Unchanged++
	}
}

func (r *Report) addError(rowErr *RowError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats(rowErr.Table).Failed++
	r.Errors = append(r.Errors, rowErr)
}

// Failed returns the number of failed rows across tables.
func (r *Report) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors)
}

// Err joins every row error, or returns nil when all rows replicated.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, rowErr := range r.Errors {
		errs[i] = rowErr
	}
	return errors.Join(errs...)
}
