package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GridPointsScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "floodwatch_grid_points_scored_total",
			Help: "Total grid points scored by the risk model",
		},
	)

	PointsAboveThreshold = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "floodwatch_points_above_threshold",
			Help:    "Grid points surviving the risk threshold per run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	HotspotsPredicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_hotspots_predicted_total",
			Help: "Total hotspots emitted, by severity",
		},
		[]string{"severity"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodwatch_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	RainfallResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_rainfall_resolutions_total",
			Help: "Rainfall resolutions by the tier that answered",
		},
		[]string{"source"},
	)

	OpenMeteoCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_openmeteo_calls_total",
			Help: "Total Open-Meteo API calls",
		},
		[]string{"endpoint", "status"},
	)

	OpenMeteoLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodwatch_openmeteo_latency_seconds",
			Help:    "Open-Meteo API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	SinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_sink_writes_total",
			Help: "Hotspot batch writes by sink and outcome",
		},
		[]string{"sink", "status"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodwatch_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "status"},
	)
)
