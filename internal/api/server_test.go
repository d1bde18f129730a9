package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/floodwatch/internal/api"
	"github.com/lox/floodwatch/internal/briefing"
	"github.com/lox/floodwatch/internal/forecast"
	"github.com/lox/floodwatch/internal/jobs"
	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/sink"
	"github.com/lox/floodwatch/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const modelVersion = "waterlogging-ensemble-2.1.0"

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	s := store.New(db)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func day(s string) time.Time {
	d, err := forecast.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleHotspots() []models.Hotspot {
	return []models.Hotspot{
		{
			Lat: 28.6358, Lng: 77.2245, Name: "Minto Bridge", Severity: models.SeverityCritical,
			ConfidenceScore: 0.91, PredictedRainfallMM: 120, RadiusMeters: 300,
			RiskFactors: models.RiskFactors{HighRainfall: true, VeryHighRainfall: true, ClusterSize: 12, MaxRiskScore: 0.91, AvgRiskScore: 0.82},
		},
		{
			Lat: 28.6280, Lng: 77.2410, Name: "ITO", Severity: models.SeverityHigh,
			ConfidenceScore: 0.77, PredictedRainfallMM: 120, RadiusMeters: 120,
			RiskFactors: models.RiskFactors{HighRainfall: true, VeryHighRainfall: true, ClusterSize: 6, MaxRiskScore: 0.77, AvgRiskScore: 0.7},
		},
	}
}

type fixedResolver struct{}

func (fixedResolver) Resolve(context.Context, time.Time) models.RainfallObservation {
	return models.RainfallObservation{RainfallMM: 120, TemperatureC: 30, HumidityPct: 70, Source: "ground_truth"}
}

type fakePredictor struct {
	calls    atomic.Int32
	hotspots []models.Hotspot
}

func (p *fakePredictor) Predict(_ context.Context, date time.Time, obs models.RainfallObservation) (*forecast.Result, error) {
	p.calls.Add(1)
	return &forecast.Result{Date: date, Rainfall: obs, GridPoints: 75000, Surviving: 90, Hotspots: p.hotspots}, nil
}

func newRunner(t *testing.T, st *store.Store, p *fakePredictor) *jobs.Runner {
	t.Helper()
	r, err := jobs.NewRunner(jobs.RunnerConfig{
		Resolver:     fixedResolver{},
		Predictor:    p,
		ModelVersion: modelVersion,
		Runs:         st,
		Sinks:        sink.NewFanout(quiet, st),
		Index:        st,
		Logger:       quiet,
	})
	require.NoError(t, err)
	return r
}

func do(t *testing.T, srv *api.Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func get(t *testing.T, srv *api.Server, path string) (*http.Response, []byte) {
	return do(t, srv, httptest.NewRequest(http.MethodGet, path, nil))
}

func TestHealthEndpoint(t *testing.T) {
	st := setupTestStore(t)
	srv := api.NewServer(api.Config{Store: st, ModelVersion: modelVersion, Logger: quiet})

	resp, body := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health api.HealthStatus
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, modelVersion, health.ModelVersion)
	assert.Greater(t, health.SchemaVersion, 0)
}

func TestHealthDegradedAfterFailedRun(t *testing.T) {
	st := setupTestStore(t)
	run := models.Run{ID: "run-bad", Date: day("2025-07-10"), StartedAt: time.Now()}
	require.NoError(t, st.StartRun(run, 10))
	require.NoError(t, st.CompleteRun(run.ID, store.RunOutcome{Err: assert.AnError}))

	srv := api.NewServer(api.Config{Store: st, Logger: quiet})
	resp, body := get(t, srv, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var health api.HealthStatus
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "degraded", health.Status)
	require.Len(t, health.RecentFailures, 1)
	assert.Equal(t, "run-bad", health.RecentFailures[0].RunID)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := api.NewServer(api.Config{Store: setupTestStore(t), Logger: quiet})
	resp, body := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "floodwatch_grid_points_scored_total")
}

func TestPredictionsForDateStored(t *testing.T) {
	st := setupTestStore(t)
	run := models.Run{ID: "run-1", Date: day("2025-07-10"), ModelVersion: modelVersion, RainfallSource: "store"}
	require.NoError(t, st.ReplaceHotspots(context.Background(), run.Date, run, sampleHotspots()))

	p := &fakePredictor{}
	srv := api.NewServer(api.Config{Store: st, Runner: newRunner(t, st, p), Logger: quiet})

	resp, body := get(t, srv, "/api/predictions/date/2025-07-10")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got api.PredictionsResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "2025-07-10", got.Date)
	assert.Equal(t, 2, got.TotalCount)
	assert.False(t, got.Generated)
	require.NotNil(t, got.ModelVersion)
	assert.Equal(t, modelVersion, *got.ModelVersion)
	assert.Equal(t, "Minto Bridge", got.Hotspots[0].Name)
	assert.Equal(t, 0.91, got.Hotspots[0].Confidence)
	assert.Equal(t, 120.0, got.Hotspots[0].PredictedRainfall)
	assert.Equal(t, 12, got.Hotspots[0].RiskFactors.ClusterSize)
	assert.Zero(t, p.calls.Load())

	// Field names follow the established response shape.
	assert.Contains(t, string(body), `"predicted_rainfall":120`)
	assert.Contains(t, string(body), `"radius_meters":300`)
}

func TestPredictionsGeneratedOnDemand(t *testing.T) {
	st := setupTestStore(t)
	p := &fakePredictor{hotspots: sampleHotspots()}
	srv := api.NewServer(api.Config{Store: st, Runner: newRunner(t, st, p), Logger: quiet})

	var got api.PredictionsResponse
	_, body := get(t, srv, "/api/predictions/date/2025-08-01")
	require.NoError(t, json.Unmarshal(body, &got))
	assert.True(t, got.Generated)
	assert.Equal(t, 2, got.TotalCount)
	require.NotNil(t, got.RainfallSource)
	assert.Equal(t, "ground_truth", *got.RainfallSource)

	_, body = get(t, srv, "/api/predictions/date/2025-08-01")
	require.NoError(t, json.Unmarshal(body, &got))
	assert.False(t, got.Generated)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestPredictionsEmptyDateNotRegenerated(t *testing.T) {
	st := setupTestStore(t)
	p := &fakePredictor{}
	srv := api.NewServer(api.Config{Store: st, Runner: newRunner(t, st, p), Logger: quiet})

	for range 3 {
		resp, body := get(t, srv, "/api/predictions/date/2025-01-15")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"total_count":0`)
		assert.Contains(t, string(body), `"hotspots":[]`)
		assert.Contains(t, string(body), `"model_version":null`)
	}
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestPredictionsInvalidDate(t *testing.T) {
	srv := api.NewServer(api.Config{Store: setupTestStore(t), Logger: quiet})
	for _, path := range []string{
		"/api/predictions/date/2025-13-01",
		"/api/predictions/date/yesterday",
		"/api/rainfall/date/2025-02-30",
	} {
		resp, body := get(t, srv, path)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Contains(t, string(body), "Invalid date format", path)
	}
}

func postGenerate(t *testing.T, srv *api.Server, body, token string) (*http.Response, []byte) {
	req := httptest.NewRequest(http.MethodPost, "/api/predictions/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, srv, req)
}

func TestGenerate(t *testing.T) {
	st := setupTestStore(t)
	p := &fakePredictor{hotspots: sampleHotspots()}
	srv := api.NewServer(api.Config{Store: st, Runner: newRunner(t, st, p), AdminToken: "s3cret", Logger: quiet})

	resp, _ := postGenerate(t, srv, `{"date":"2025-07-10"}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postGenerate(t, srv, `{"date":"2025-07-10"}`, "wrong")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := postGenerate(t, srv, `{}`, "s3cret")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Date is required")

	resp, _ = postGenerate(t, srv, `{"date":"10-07-2025"}`, "s3cret")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = postGenerate(t, srv, `{"date":"2025-07-10"}`, "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got api.GenerateResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, 2, got.HotspotCount)
	assert.NotEmpty(t, got.RunID)

	// Generate always reruns, even when the date is stored.
	resp, _ = postGenerate(t, srv, `{"date":"2025-07-10"}`, "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), p.calls.Load())

	stored, err := st.GetHotspots(day("2025-07-10"))
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestGenerateDisabledWithoutRunner(t *testing.T) {
	srv := api.NewServer(api.Config{Store: setupTestStore(t), Logger: quiet})
	resp, _ := postGenerate(t, srv, `{"date":"2025-07-10"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPredictionStats(t *testing.T) {
	st := setupTestStore(t)
	for _, d := range []string{"2025-07-09", "2025-07-10"} {
		run := models.Run{ID: "run-" + d, Date: day(d), ModelVersion: modelVersion}
		require.NoError(t, st.ReplaceHotspots(context.Background(), run.Date, run, sampleHotspots()))
	}
	srv := api.NewServer(api.Config{Store: st, Logger: quiet})

	resp, body := get(t, srv, "/api/predictions/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got api.StatsResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 2, got.TotalPredictionDates)
	assert.Equal(t, []api.SeverityCount{
		{Severity: models.SeverityCritical, Count: 2},
		{Severity: models.SeverityHigh, Count: 2},
	}, got.SeverityBreakdown)
	assert.Equal(t, []api.DateCount{
		{PredictionDate: "2025-07-10", HotspotCount: 2},
		{PredictionDate: "2025-07-09", HotspotCount: 2},
	}, got.RecentPredictions)
}

func TestModelMetrics(t *testing.T) {
	st := setupTestStore(t)
	srv := api.NewServer(api.Config{Store: st, ModelVersion: modelVersion, Logger: quiet})

	_, body := get(t, srv, "/api/model/metrics")
	assert.JSONEq(t, `{"current_version":"waterlogging-ensemble-2.1.0","message":"No model metadata available yet"}`, string(body))

	require.NoError(t, st.UpsertModelMetadata(models.ModelMetadata{
		ModelVersion:      modelVersion,
		TrainingDate:      day("2025-06-14"),
		TrainingSamples:   48210,
		Accuracy:          0.912,
		Precision:         0.874,
		Recall:            0.861,
		F1Score:           0.867,
		FeatureImportance: []models.FeatureImportance{{Feature: "rainfall_log", Importance: 0.31}},
		DataSources:       []string{"Open-Meteo archive"},
	}))

	_, body = get(t, srv, "/api/model/metrics")
	var got api.ModelMetricsResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, modelVersion, got.CurrentVersion)
	require.NotNil(t, got.Accuracy)
	assert.Equal(t, 0.912, *got.Accuracy)
	require.NotNil(t, got.LastTrained)
	assert.Equal(t, "2025-06-14", *got.LastTrained)
	assert.Equal(t, []string{"Open-Meteo archive"}, got.DataSources)
	assert.Empty(t, got.Message)
}

func TestRainfallForDate(t *testing.T) {
	st := setupTestStore(t)
	temp := 29.5
	_, err := st.UpsertRainfall([]models.RainfallRecord{
		{Date: day("2025-07-10"), StationName: "Safdarjung", Lat: 28.58, Lng: 77.205, Rainfall24h: 88.4, TemperatureC: &temp},
		{Date: day("2025-07-10"), StationName: "Palam", Lat: 28.5845, Lng: 77.1025, Rainfall24h: 61},
	})
	require.NoError(t, err)
	srv := api.NewServer(api.Config{Store: st, Logger: quiet})

	_, body := get(t, srv, "/api/rainfall/date/2025-07-10")
	var got api.RainfallResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 2, got.TotalStations)
	assert.Equal(t, "Palam", got.Stations[0].Name)
	assert.Nil(t, got.Stations[0].Temperature)
	require.NotNil(t, got.Stations[1].Temperature)
	assert.Equal(t, 29.5, *got.Stations[1].Temperature)

	_, body = get(t, srv, "/api/rainfall/date/2025-07-11")
	assert.JSONEq(t, `{"date":"2025-07-11","stations":[],"total_stations":0}`, string(body))
}

func TestMapPNG(t *testing.T) {
	st := setupTestStore(t)
	p := &fakePredictor{hotspots: sampleHotspots()}
	srv := api.NewServer(api.Config{Store: st, Runner: newRunner(t, st, p), Logger: quiet})

	for range 2 {
		resp, body := get(t, srv, "/api/predictions/date/2025-07-10/map.png")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG\r\n\x1a\n")))
	}
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestBriefingDisabled(t *testing.T) {
	srv := api.NewServer(api.Config{Store: setupTestStore(t), Logger: quiet})
	resp, _ := get(t, srv, "/api/predictions/date/2025-07-10/briefing")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBriefingCachedPerRun(t *testing.T) {
	var upstream atomic.Int32
	openai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstream.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Expect severe waterlogging at Minto Bridge."}}]}`)
	}))
	defer openai.Close()

	gen, err := briefing.NewGenerator("test-key", quiet,
		briefing.WithRequestOptions(option.WithBaseURL(openai.URL), option.WithMaxRetries(0)))
	require.NoError(t, err)

	st := setupTestStore(t)
	srv := api.NewServer(api.Config{
		Store:    st,
		Runner:   newRunner(t, st, &fakePredictor{hotspots: sampleHotspots()}),
		Briefing: gen,
		Logger:   quiet,
	})

	for range 2 {
		resp, body := get(t, srv, "/api/predictions/date/2025-07-10/briefing")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got api.BriefingResponse
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "Expect severe waterlogging at Minto Bridge.", got.Briefing)
		assert.Equal(t, 2, got.HotspotCount)
	}
	assert.Equal(t, int32(1), upstream.Load())
}
