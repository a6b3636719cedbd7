package scholar

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesFetched tracks result pages fetched, by strategy.
	TotalPagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_pages_fetched_total",
		Help: "The total number of result pages fetched.",
	}, []string{"strategy"})
	// TotalPageErrors tracks page fetches that failed, by strategy.
	TotalPageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_page_errors_total",
		Help: "The total number of failed page fetches.",
	}, []string{"strategy"})
	// TotalBlocks tracks captcha or block pages encountered, by strategy.
	TotalBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_blocks_total",
		Help: "The total number of block pages encountered.",
	}, []string{"strategy"})
	// TotalRecordsAccepted tracks records accepted after dedup.
	TotalRecordsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_accepted_total",
		Help: "The total number of records accepted after deduplication.",
	})
	// TotalDuplicatesDropped tracks parsed records discarded as duplicates.
	TotalDuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_duplicates_dropped_total",
		Help: "The total number of records dropped as duplicates.",
	})
	// TotalJobsCompleted tracks jobs that reached a terminal state, by outcome.
	TotalJobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_jobs_total",
		Help: "The total number of jobs that reached a terminal state.",
	}, []string{"outcome"})
	// TotalCircuitRotations tracks proxy circuit rotations requested.
	TotalCircuitRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_circuit_rotations_total",
		Help: "The total number of proxy circuit rotations requested.",
	})
)
