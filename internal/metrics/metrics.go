// Package metrics records storage operations with Prometheus collectors.
//
// The CLI is short-lived, so metrics are not served over HTTP; they can be
// written in text exposition format for the node_exporter textfile
// collector with WriteTextfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage is the Prometheus implementation of backend.Metrics
type Storage struct {
	registry          *prometheus.Registry
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	activeUploads     prometheus.Gauge
	abortedUploads    prometheus.Counter
}

// NewStorage registers the storage collectors on a fresh registry
func NewStorage() *Storage {
	reg := prometheus.NewRegistry()

	return &Storage{
		registry: reg,
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "r2d2_storage_operations_total",
				Help: "Total number of storage operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "r2d2_storage_operation_duration_milliseconds",
				Help: "Duration of storage operations in milliseconds",
				Buckets: []float64{
					10,    // metadata
					50,    // small objects
					100,   //
					500,   //
					1000,  // medium objects
					5000,  // upload parts
					10000, //
					30000, // slow links
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "r2d2_storage_bytes_transferred_total",
				Help: "Total bytes transferred by storage operations",
			},
			[]string{"operation", "direction"},
		),
		activeUploads: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "r2d2_storage_active_uploads",
				Help: "Current number of open multipart uploads",
			},
		),
		abortedUploads: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "r2d2_storage_multipart_aborted_total",
				Help: "Total number of multipart uploads aborted after a failure",
			},
		),
	}
}

// Registry returns the registry holding the collectors
func (m *Storage) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Storage) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *Storage) RecordBytes(operation string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}

	direction := "write"
	if operation == "read" {
		direction = "read"
	}
	m.bytesTransferred.WithLabelValues(operation, direction).Add(float64(bytes))
}

func (m *Storage) RecordActiveUpload(delta int) {
	if m == nil {
		return
	}
	m.activeUploads.Add(float64(delta))
}

func (m *Storage) RecordAbortedUpload() {
	if m == nil {
		return
	}
	m.abortedUploads.Inc()
}

// WriteTextfile writes every collected metric to path atomically
func (m *Storage) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
