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

package worker

import (
	"time"

	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal counts messages received from hosts.
	// Labels: type (INIT, SEARCH, ABORT_SEARCH, other)
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Total number of host messages received by type",
		},
		[]string{"type"},
	)

	// SearchesTotal counts local searches.
	// Labels: result (ok, error, superseded, not_ready)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "worker",
			Name:      "searches_total",
			Help:      "Total number of local searches by result",
		},
		[]string{"result"},
	)

	// StageDuration tracks the embedding and vector stages of a search.
	// Labels: stage (embedding, vector)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsearch",
			Subsystem: "worker",
			Name:      "search_stage_duration_seconds",
			Help:      "Duration of local search stages in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"stage"},
	)

	// Ready is 1 once a worker session has announced READY. The series is
	// removed when the session stops.
	// Labels: session (worker ID)
	Ready = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docsearch",
			Subsystem: "worker",
			Name:      "ready",
			Help:      "Whether a local search worker session is ready",
		},
		[]string{"session"},
	)
)

// metricsMonitor records search stage timings.
type metricsMonitor struct{}

var _ search.SearchMonitor = metricsMonitor{}

func (metricsMonitor) Start(string) {}

func (metricsMonitor) AfterEmbedding(_ []float32, elapsed time.Duration) {
	StageDuration.WithLabelValues("embedding").Observe(elapsed.Seconds())
}

func (metricsMonitor) AfterVectorSearch(_ []*core.MatchRow, elapsed time.Duration) {
	StageDuration.WithLabelValues("vector").Observe(elapsed.Seconds())
}

func (metricsMonitor) Finish([]*core.MatchRow, error) {}
