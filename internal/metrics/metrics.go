// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics registers the Prometheus collectors shared by the pipeline
// stages. The CLI exposes them with promhttp when --metrics-addr is set.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarqa_requests_total",
			Help: "Total number of answer requests by terminal status",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scholarqa_stage_duration_seconds",
			Help:    "Time spent in each request state",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// Retrieval metrics
	SearchTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarqa_search_tasks_total",
			Help: "Search tasks by mode and outcome (ok, error, timeout)",
		},
		[]string{"mode", "outcome"},
	)

	SearchCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scholarqa_search_candidates",
			Help:    "Raw candidates returned per request before deduplication",
			Buckets: []float64{0, 10, 50, 100, 250, 500},
		},
	)

	RerankCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scholarqa_rerank_calls_total",
			Help: "Reranker batch calls",
		},
	)

	// Generation metrics
	Diagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarqa_diagnostics_total",
			Help: "Recoverable problems absorbed by the pipeline, by kind",
		},
		[]string{"kind"},
	)

	Tokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarqa_llm_tokens_total",
			Help: "Model tokens by stage and direction (input, output)",
		},
		[]string{"stage", "direction"},
	)

	TableJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarqa_table_jobs_total",
			Help: "Background table jobs by outcome (ok, error, timeout)",
		},
		[]string{"outcome"},
	)

	MetadataLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarqa_metadata_lookups_total",
			Help: "Paper metadata lookups by source (working, cache, fetch, miss)",
		},
		[]string{"source"},
	)
)

// ObserveStage records the time spent in a stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
