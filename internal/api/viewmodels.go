package api

import (
	"sort"

	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/store"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Status    string `json:"status,omitempty"`
	DebugInfo string `json:"debug_info,omitempty"`
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status         string     `json:"status"`
	ModelVersion   string     `json:"model_version"`
	SchemaVersion  int        `json:"schema_version"`
	RecentFailures []RunError `json:"recent_failures,omitempty"`
	Errors         []string   `json:"errors,omitempty"`
}

type RunError struct {
	RunID          string `json:"run_id"`
	PredictionDate string `json:"prediction_date"`
	StartedAt      string `json:"started_at"`
	Error          string `json:"error"`
}

type HotspotView struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	Lat               float64            `json:"lat"`
	Lng               float64            `json:"lng"`
	Severity          models.Severity    `json:"severity"`
	Confidence        float64            `json:"confidence"`
	PredictedRainfall float64            `json:"predicted_rainfall"`
	RiskFactors       models.RiskFactors `json:"risk_factors"`
	RadiusMeters      int                `json:"radius_meters"`
}

type PredictionsResponse struct {
	Date           string        `json:"date"`
	Hotspots       []HotspotView `json:"hotspots"`
	ModelVersion   *string       `json:"model_version"`
	RainfallSource *string       `json:"rainfall_source"`
	TotalCount     int           `json:"total_count"`
	Generated      bool          `json:"generated"`
}

func newPredictionsResponse(date string, stored []models.StoredHotspot, generated bool) PredictionsResponse {
	resp := PredictionsResponse{
		Date:       date,
		Hotspots:   make([]HotspotView, 0, len(stored)),
		TotalCount: len(stored),
		Generated:  generated,
	}
	for _, h := range stored {
		resp.Hotspots = append(resp.Hotspots, HotspotView{
			ID:                h.ID,
			Name:              h.Name,
			Lat:               h.Lat,
			Lng:               h.Lng,
			Severity:          h.Severity,
			Confidence:        h.ConfidenceScore,
			PredictedRainfall: h.PredictedRainfallMM,
			RiskFactors:       h.RiskFactors,
			RadiusMeters:      h.RadiusMeters,
		})
	}
	if len(stored) > 0 {
		resp.ModelVersion = &stored[0].ModelVersion
		resp.RainfallSource = &stored[0].RainfallSource
	}
	return resp
}

type GenerateRequest struct {
	Date string `json:"date"`
}

type GenerateResponse struct {
	Message        string   `json:"message"`
	Date           string   `json:"date"`
	Status         string   `json:"status"`
	RunID          string   `json:"run_id"`
	HotspotCount   int      `json:"hotspot_count"`
	RainfallSource string   `json:"rainfall_source"`
	FailedSinks    []string `json:"failed_sinks,omitempty"`
}

type SeverityCount struct {
	Severity models.Severity `json:"severity"`
	Count    int             `json:"count"`
}

type DateCount struct {
	PredictionDate string `json:"prediction_date"`
	HotspotCount   int    `json:"hotspot_count"`
}

type StatsResponse struct {
	TotalPredictionDates int             `json:"total_prediction_dates"`
	SeverityBreakdown    []SeverityCount `json:"severity_breakdown"`
	RecentPredictions    []DateCount     `json:"recent_predictions"`
}

func newStatsResponse(stats *models.PredictionStats) StatsResponse {
	resp := StatsResponse{
		TotalPredictionDates: stats.TotalPredictionDates,
		SeverityBreakdown:    make([]SeverityCount, 0, len(stats.SeverityBreakdown)),
		RecentPredictions:    make([]DateCount, 0, len(stats.RecentPredictions)),
	}
	for sev, n := range stats.SeverityBreakdown {
		resp.SeverityBreakdown = append(resp.SeverityBreakdown, SeverityCount{Severity: sev, Count: n})
	}
	// Most severe first.
	sort.Slice(resp.SeverityBreakdown, func(i, j int) bool {
		return resp.SeverityBreakdown[i].Severity.Rank() > resp.SeverityBreakdown[j].Severity.Rank()
	})
	for _, dc := range stats.RecentPredictions {
		resp.RecentPredictions = append(resp.RecentPredictions, DateCount{
			PredictionDate: dc.Date.Format(dateLayout),
			HotspotCount:   dc.HotspotCount,
		})
	}
	return resp
}

type ModelMetricsResponse struct {
	CurrentVersion    string                     `json:"current_version"`
	Message           string                     `json:"message,omitempty"`
	Accuracy          *float64                   `json:"accuracy,omitempty"`
	Precision         *float64                   `json:"precision,omitempty"`
	Recall            *float64                   `json:"recall,omitempty"`
	F1Score           *float64                   `json:"f1_score,omitempty"`
	TrainingSamples   *int                       `json:"training_samples,omitempty"`
	LastTrained       *string                    `json:"last_trained,omitempty"`
	FeatureImportance []models.FeatureImportance `json:"feature_importance,omitempty"`
	DataSources       []string                   `json:"data_sources,omitempty"`
}

func newModelMetricsResponse(md *models.ModelMetadata) ModelMetricsResponse {
	resp := ModelMetricsResponse{
		CurrentVersion:    md.ModelVersion,
		Accuracy:          &md.Accuracy,
		Precision:         &md.Precision,
		Recall:            &md.Recall,
		F1Score:           &md.F1Score,
		TrainingSamples:   &md.TrainingSamples,
		FeatureImportance: md.FeatureImportance,
		DataSources:       md.DataSources,
	}
	if !md.TrainingDate.IsZero() {
		d := md.TrainingDate.Format(dateLayout)
		resp.LastTrained = &d
	}
	return resp
}

type StationView struct {
	Name        string   `json:"name"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Rainfall24h float64  `json:"rainfall_24h"`
	Temperature *float64 `json:"temperature"`
	Humidity    *int     `json:"humidity"`
}

type RainfallResponse struct {
	Date          string        `json:"date"`
	Stations      []StationView `json:"stations"`
	TotalStations int           `json:"total_stations"`
}

func newRainfallResponse(date string, recs []models.RainfallRecord) RainfallResponse {
	resp := RainfallResponse{Date: date, Stations: make([]StationView, 0, len(recs)), TotalStations: len(recs)}
	for _, r := range recs {
		resp.Stations = append(resp.Stations, StationView{
			Name:        r.StationName,
			Lat:         r.Lat,
			Lng:         r.Lng,
			Rainfall24h: r.Rainfall24h,
			Temperature: r.TemperatureC,
			Humidity:    r.HumidityPercent,
		})
	}
	return resp
}

type BriefingResponse struct {
	Date         string `json:"date"`
	Briefing     string `json:"briefing"`
	HotspotCount int    `json:"hotspot_count"`
}

func newRunErrors(runs []store.PredictionRun) []RunError {
	out := make([]RunError, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunError{
			RunID:          r.RunID,
			PredictionDate: r.PredictionDate.Format(dateLayout),
			StartedAt:      r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Error:          r.ErrorMessage.String,
		})
	}
	return out
}
