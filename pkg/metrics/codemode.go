package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Code mode pipeline counters. Package-level so registration happens exactly
// once; promauto panics on duplicates.
//
//nolint:gochecknoglobals
var (
	// CodeRequestsTotal counts code mode requests by terminal state.
	CodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codemode_requests_total",
			Help: "Total number of code mode requests by terminal state",
		},
		[]string{"state"},
	)

	// GenerationRounds counts generation rounds, including feedback regenerations.
	GenerationRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codemode_generation_rounds_total",
			Help: "Total number of generation rounds including feedback regenerations",
		},
	)

	// ApprovalDecisionsTotal counts approval round outcomes.
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codemode_approval_decisions_total",
			Help: "Total number of approval round decisions",
		},
		[]string{"decision"},
	)

	// SandboxExecutionsTotal counts sandbox runs by result.
	SandboxExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_executions_total",
			Help: "Total number of sandbox executions by result",
		},
		[]string{"result"},
	)

	// SandboxDurationSeconds observes sandbox wall-clock runtime.
	SandboxDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandbox_duration_seconds",
			Help:    "Wall-clock duration of sandbox executions in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)
)
