// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tofuos_http_requests_total",
		Help: "HTTP requests by method, route pattern and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tofuos_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	aiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tofuos_ai_requests_total",
		Help: "Completion calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	jiraIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tofuos_jira_issues_total",
		Help: "Jira issue creation attempts by outcome.",
	}, []string{"outcome"})
)

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// AIRequest records one completion call. outcome is "ok", "rate_limited" or "error".
func AIRequest(operation, outcome string) {
	aiRequests.WithLabelValues(operation, outcome).Inc()
}

func JiraIssue(outcome string) {
	jiraIssues.WithLabelValues(outcome).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
