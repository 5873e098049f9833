// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Submissions counts exam submissions by outcome (scored, rejected, failed).
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examhall_submissions_total",
			Help: "Total number of exam submissions",
		},
		[]string{"outcome"},
	)

	// SubmissionScore observes the percentage score of accepted submissions.
	SubmissionScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examhall_submission_score",
			Help:    "Percentage scores of graded submissions",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	// LoginAttempts counts login attempts by status (success, failure).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examhall_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"status"},
	)

	// StoreCommits counts record store commits by collection and status.
	StoreCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examhall_store_commits_total",
			Help: "Total number of record store commits",
		},
		[]string{"collection", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
