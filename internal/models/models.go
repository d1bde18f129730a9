package models

import (
	"time"
)

// Severity buckets a hotspot by the maximum risk of its member points.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Rank returns a numeric ordering (higher = more severe).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

type GridPoint struct {
	Lat      float64
	Lng      float64
	Date     time.Time
	Features []float64 // ordered per the model's feature names
	Risk     float64
}

type RainfallObservation struct {
	RainfallMM   float64 `json:"rainfall_mm"`
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  int     `json:"humidity_pct"`
	Source       string  `json:"source,omitempty"` // resolver tier that produced it
}

type KnownLocation struct {
	Lat                float64
	Lng                float64
	Name               string
	DrainageCapacityMM float64
}

type VerifiedHotspot struct {
	Lat      float64
	Lng      float64
	Name     string
	Category string
}

type Logistics struct {
	ResourceID       string  `json:"nearest_pump_id"`
	ResourceName     string  `json:"nearest_pump_name"`
	ResponseTimeMins int     `json:"est_response_time_mins"`
	DistanceKM       float64 `json:"distance_km"`
}

type RiskFactors struct {
	HighRainfall     bool       `json:"high_rainfall"`
	VeryHighRainfall bool       `json:"very_high_rainfall"`
	ClusterSize      int        `json:"cluster_size"`
	MaxRiskScore     float64    `json:"max_risk_score"`
	AvgRiskScore     float64    `json:"avg_risk_score"`
	Logistics        *Logistics `json:"logistics,omitempty"`
}

type Hotspot struct {
	Lat                 float64     `json:"lat"`
	Lng                 float64     `json:"lng"`
	Name                string      `json:"name"`
	Severity            Severity    `json:"severity"`
	ConfidenceScore     float64     `json:"confidence_score"`
	PredictedRainfallMM float64     `json:"predicted_rainfall_mm"`
	RiskFactors         RiskFactors `json:"risk_factors"`
	RadiusMeters        int         `json:"radius_meters"`
}

// Run identifies one pipeline execution for a date.
type Run struct {
	ID             string
	Date           time.Time
	ModelVersion   string
	RainfallSource string
	StartedAt      time.Time
}

// StoredHotspot is a persisted hotspot row.
type StoredHotspot struct {
	ID             int64     `json:"id"`
	PredictionDate time.Time `json:"prediction_date"`
	RunID          string    `json:"run_id"`
	ModelVersion   string    `json:"model_version"`
	RainfallSource string    `json:"rainfall_source"`
	CreatedAt      time.Time `json:"created_at"`
	Hotspot
}

type RainfallRecord struct {
	Date            time.Time
	StationName     string
	Lat             float64
	Lng             float64
	Rainfall24h     float64
	TemperatureC    *float64
	HumidityPercent *int
}

type ModelMetadata struct {
	ModelVersion      string
	TrainingDate      time.Time
	TrainingSamples   int
	Accuracy          float64
	Precision         float64
	Recall            float64
	F1Score           float64
	FeatureImportance []FeatureImportance
	DataSources       []string
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

type PredictionStats struct {
	TotalPredictionDates int
	SeverityBreakdown    map[Severity]int
	RecentPredictions    []DateCount
}

type DateCount struct {
	Date         time.Time
	HotspotCount int
}
