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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsTotal counts replicated rows.
	// Labels: table (page, page_section), result (upserted, unchanged, failed)
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "replication",
			Name:      "rows_total",
			Help:      "Total number of replicated rows by table and result",
		},
		[]string{"table", "result"},
	)

	// FetchesTotal counts batch fetches.
	// Labels: table, result (success, error)
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "replication",
			Name:      "fetches_total",
			Help:      "Total number of batch fetches by table and result",
		},
		[]string{"table", "result"},
	)

	// RunDuration tracks how long a full replication run takes.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docsearch",
			Subsystem: "replication",
			Name:      "run_duration_seconds",
			Help:      "Duration of replication runs in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)
