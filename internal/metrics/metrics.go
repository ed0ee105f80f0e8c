// Package metrics provides Prometheus metrics for the accident pipeline and record store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector of the service. A nil *Metrics is valid and
// records nothing, which keeps tests and the CLI free of a registry.
type Metrics struct {
	clipsTotal         *prometheus.CounterVec
	framesScannedTotal *prometheus.CounterVec
	cropsTotal         *prometheus.CounterVec
	cropsSkippedTotal  *prometheus.CounterVec
	platesTotal        *prometheus.CounterVec
	storeOpsTotal      *prometheus.CounterVec
	storeBackend       *prometheus.GaugeVec
	processingDuration *prometheus.HistogramVec
}

func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		clipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashanalytix_clips_processed_total",
				Help: "Total number of clips processed",
			},
			[]string{"endpoint", "result"},
		),
		framesScannedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashanalytix_frames_scanned_total",
				Help: "Total number of sampled frames submitted to a detector",
			},
			[]string{"stage"}, // stage: accident, plate, snapshot
		),
		cropsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashanalytix_crops_total",
				Help: "Total number of crops classified",
			},
			[]string{"stage"},
		),
		cropsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashanalytix_crops_skipped_total",
				Help: "Total number of crops skipped because of unreadable input or failed inference",
			},
			[]string{"stage"},
		),
		platesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashanalytix_plate_candidates_total",
				Help: "Total number of OCR candidates by validation outcome",
			},
			[]string{"outcome"}, // outcome: valid, invalid, low_confidence
		),
		storeOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashanalytix_store_operations_total",
				Help: "Total number of record store operations",
			},
			[]string{"backend", "operation", "status"},
		),
		storeBackend: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crashanalytix_store_backend",
				Help: "Active record store backend (1 for the backend in use)",
			},
			[]string{"backend"},
		),
		processingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crashanalytix_processing_duration_seconds",
				Help:    "Time taken to process one clip",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 12), // 250ms to ~8.5m
			},
			[]string{"endpoint"},
		),
	}

	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.clipsTotal,
		m.framesScannedTotal,
		m.cropsTotal,
		m.cropsSkippedTotal,
		m.platesTotal,
		m.storeOpsTotal,
		m.storeBackend,
		m.processingDuration,
	}
}

func (m *Metrics) ClipProcessed(endpoint, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.clipsTotal.WithLabelValues(endpoint, result).Inc()
	m.processingDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) FrameScanned(stage string) {
	if m == nil {
		return
	}
	m.framesScannedTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) CropClassified(stage string, skipped bool) {
	if m == nil {
		return
	}
	m.cropsTotal.WithLabelValues(stage).Inc()
	if skipped {
		m.cropsSkippedTotal.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) PlateCandidate(outcome string) {
	if m == nil {
		return
	}
	m.platesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StoreOperation(backend, operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.storeOpsTotal.WithLabelValues(backend, operation, status).Inc()
}

func (m *Metrics) SetStoreBackend(backend string) {
	if m == nil {
		return
	}
	m.storeBackend.Reset()
	m.storeBackend.WithLabelValues(backend).Set(1)
}
