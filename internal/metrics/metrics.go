// Package metrics exposes the worker-side Prometheus instruments.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	JobsProcessedOK = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_jobs_processed_ok_total",
		Help: "Jobs that reached a terminal event without infrastructure failure",
	})
	JobsProcessedFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_jobs_processed_fail_total",
		Help: "Jobs nacked back to the queue after an infrastructure failure",
	})
	JobsPoisoned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_jobs_poisoned_total",
		Help: "Deliveries dropped because the job body did not decode",
	})
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "router_job_processing_seconds",
		Help:    "Wall time of one routing attempt",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(JobsProcessedOK, JobsProcessedFail, JobsPoisoned, JobDuration)
}
