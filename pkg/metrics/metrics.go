// Package metrics provides Prometheus metrics for the relay path
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsLoaded counts records shipped through load commands
	RecordsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grnrelay",
		Name:      "records_loaded_total",
		Help:      "Total records sent to the engine via load commands",
	})

	// RecordsRejected counts records dropped for encoding failures
	RecordsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grnrelay",
		Name:      "records_rejected_total",
		Help:      "Total records rejected for unencodable values",
	})

	// CommandsExecuted counts commands issued to the engine by name
	CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grnrelay",
		Name:      "commands_total",
		Help:      "Total commands executed against the engine",
	}, []string{"command"})

	// DrainLines counts subprocess output lines observed by the drain
	DrainLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grnrelay",
		Name:      "drain_lines_total",
		Help:      "Total subprocess lines observed by the non-blocking drain",
	}, []string{"stream"})

	// SchemaObjectsCreated counts tables and columns created on demand
	SchemaObjectsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grnrelay",
		Name:      "schema_objects_created_total",
		Help:      "Total tables and columns created by lazy schema discovery",
	}, []string{"kind"})
)
