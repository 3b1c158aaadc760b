// Package metrics registers the Prometheus collectors shared by the retry,
// chunkio, and compute packages. Collectors are package-level singletons
// registered once at import time, the same pattern used for service-level
// metrics elsewhere in the dependency pack.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// RetryAttempts counts Retry Harness attempts, labeled by outcome.
var RetryAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "evo_sdk",
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Number of retry attempts, labeled by outcome.",
	},
	[]string{"outcome"}, // retried | succeeded | exhausted
)

// ChunkBytesTransferred counts bytes moved by the chunked I/O engine,
// labeled by direction.
var ChunkBytesTransferred = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "evo_sdk",
		Subsystem: "chunkio",
		Name:      "bytes_total",
		Help:      "Bytes transferred by the chunked I/O engine.",
	},
	[]string{"direction"}, // read | write
)

// JobPolls counts job-status polling requests.
var JobPolls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "evo_sdk",
		Subsystem: "compute",
		Name:      "job_polls_total",
		Help:      "Number of job status polls, labeled by resulting status.",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(RetryAttempts, ChunkBytesTransferred, JobPolls)
}
