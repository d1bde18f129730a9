package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/floodwatch/internal/forecast"
	"github.com/lox/floodwatch/internal/jobs"
	"github.com/lox/floodwatch/internal/models"
)

func sampleOutcome() *jobs.Outcome {
	return &jobs.Outcome{
		Run: models.Run{ID: "run-1", ModelVersion: "waterlogging-ensemble-2.1.0"},
		Result: &forecast.Result{
			Rainfall: models.RainfallObservation{RainfallMM: 210, TemperatureC: 30, HumidityPct: 70, Source: "ground_truth"},
			Hotspots: []models.Hotspot{
				{Name: "Minto Bridge", Severity: models.SeverityCritical, ConfidenceScore: 0.912, Lat: 28.633, Lng: 77.2285, RadiusMeters: 340},
			},
		},
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	writeTable(&buf, "2025-07-10", sampleOutcome())

	out := buf.String()
	assert.Contains(t, out, "2025-07-10: 210.0 mm (ground_truth), 1 hotspots")
	assert.Contains(t, out, "Minto Bridge")
	assert.Contains(t, out, "340m")
}

func TestWriteTableNoHotspots(t *testing.T) {
	out := sampleOutcome()
	out.Result.Hotspots = nil

	var buf bytes.Buffer
	writeTable(&buf, "2025-01-15", out)
	assert.Equal(t, "2025-01-15: 210.0 mm (ground_truth), 0 hotspots\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	out := sampleOutcome()
	out.Result.Hotspots = nil

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, "2025-01-15", out, ""))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, []any{}, got["hotspots"])
	assert.NotContains(t, got, "briefing")
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn", "json")
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	_, err = newLogger("loud", "text")
	assert.Error(t, err)
}
