/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package telemetry wires the prometheus counters/histograms and the otel
// tracer shared across the worker orchestrator, episode engine, and guest
// agent server, following the construction in the teacher's
// internal/controller/metrics.go.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	EpisodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legatus_episodes_total",
			Help: "Total number of episodes run, by domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)
	EpisodesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "legatus_episodes_active",
			Help: "Number of episodes currently running, by worker.",
		},
		[]string{"worker_id"},
	)
	EpisodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legatus_episode_duration_seconds",
			Help:    "Duration of completed episodes in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~2048s
		},
	)
	EpisodeScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legatus_episode_score",
			Help:    "Final score of completed episodes.",
			Buckets: []float64{0.0, 0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
		},
	)
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legatus_steps_total",
			Help: "Total number of steps executed, by domain.",
		},
		[]string{"domain"},
	)
	BudgetExceededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legatus_budget_exceeded_total",
			Help: "Episodes that hit a token/cost budget ceiling, by domain.",
		},
		[]string{"domain"},
	)
	StuckDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legatus_stuck_detected_total",
			Help: "Stuck-episode detections, by action and domain.",
		},
		[]string{"action", "domain"},
	)
	TaskCostUSD = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legatus_task_cost_usd",
			Help:    "Estimated LLM cost in USD per completed episode.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
	)
	GuestTransportFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legatus_guest_transport_faults_total",
			Help: "Guest HTTP transport faults, by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Tracer is shared across episode-engine transitions and evaluator tuples.
var Tracer = otel.Tracer("legatus.ai/runner")

func init() {
	prometheus.MustRegister(
		EpisodesTotal, EpisodesActive, EpisodeDuration, EpisodeScore,
		StepsTotal, BudgetExceededTotal, StuckDetectedTotal, TaskCostUSD,
		GuestTransportFaultsTotal,
	)
}

// TaskAttrs returns the common otel attributes attached to every
// episode-lifecycle span.
func TaskAttrs(domain, taskID, workerID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("legatus.task.domain", domain),
		attribute.String("legatus.task.id", taskID),
		attribute.String("legatus.worker.id", workerID),
	}
}

// EmitEpisodeEvent starts and immediately ends a span carrying a named
// lifecycle event, matching the teacher's emitTaskEvent helper.
func EmitEpisodeEvent(ctx context.Context, name, domain, taskID, workerID string, extra ...attribute.KeyValue) {
	attrs := append(TaskAttrs(domain, taskID, workerID), extra...)
	_, span := Tracer.Start(ctx, name)
	defer span.End()
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
