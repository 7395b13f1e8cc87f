package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexcat_import_jobs_accepted_total",
		Help: "Import jobs admitted into the queue.",
	})

	jobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexcat_import_jobs_rejected_total",
		Help: "Import submissions rejected at admission, by reason code.",
	}, []string{"code"})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexcat_import_jobs_finished_total",
		Help: "Import jobs reaching a terminal status.",
	}, []string{"status"})

	itemsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexcat_import_items_applied_total",
		Help: "Catalog items written by import jobs.",
	})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lexcat_import_job_duration_seconds",
		Help:    "Wall time of import job execution.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
