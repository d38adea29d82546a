package exporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slam_viewer_exports_total",
		Help: "Completed point cloud exports by reason.",
	}, []string{"reason"})
	exportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_viewer_export_failures_total",
		Help: "Point cloud exports that failed to write.",
	})
	uploadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slam_viewer_export_upload_failures_total",
		Help: "Exports that were written but could not be uploaded.",
	})
	exportPoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slam_viewer_export_points",
		Help: "Points in the most recent export.",
	})
	exportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slam_viewer_export_duration_seconds",
		Help:    "Time spent writing an export, lock held.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)
