package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medigate_audit_entries_recorded_total",
		Help: "Total number of audit entries persisted",
	})
	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medigate_audit_persist_failures_total",
		Help: "Total number of audit entries that failed to persist and went to the fallback log",
	})
	entriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medigate_audit_entries_dropped_total",
		Help: "Total number of audit entries rejected by a full inbox",
	})
)
