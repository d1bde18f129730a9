package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lox/floodwatch/internal/ingest"
	"github.com/lox/floodwatch/internal/metrics"
	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/riskmodel"
)

var ErrNoMetrics = errors.New("model artifact carries no metrics")

type MetadataStore interface {
	UpsertModelMetadata(m models.ModelMetadata) error
}

// SyncMetrics copies the artifact's training metrics into model_metadata.
func SyncMetrics(model *riskmodel.Model, st MetadataStore, logger *slog.Logger) (*models.ModelMetadata, error) {
	am := model.Metrics()
	if am == nil {
		return nil, ErrNoMetrics
	}

	md := models.ModelMetadata{
		ModelVersion:      model.Version(),
		TrainingSamples:   am.TrainingSamples,
		Accuracy:          am.Accuracy,
		Precision:         am.Precision,
		Recall:            am.Recall,
		F1Score:           am.F1Score,
		FeatureImportance: am.FeatureImportance,
		DataSources:       am.DataSources,
	}
	if am.TrainingDate != "" {
		t, err := time.Parse(time.DateOnly, am.TrainingDate)
		if err != nil {
			return nil, fmt.Errorf("training_date %q: %w", am.TrainingDate, err)
		}
		md.TrainingDate = t
	}

	if err := st.UpsertModelMetadata(md); err != nil {
		metrics.JobRuns.WithLabelValues("sync_metrics", "error").Inc()
		return nil, fmt.Errorf("upsert model metadata: %w", err)
	}
	metrics.JobRuns.WithLabelValues("sync_metrics", "ok").Inc()
	logger.Info("model metrics synced",
		"model_version", md.ModelVersion,
		"accuracy", md.Accuracy,
		"training_samples", md.TrainingSamples,
	)
	return &md, nil
}

type RainfallStore interface {
	UpsertRainfall(records []models.RainfallRecord) (int, error)
}

type ImportResult struct {
	Read     int
	Imported int
	Skipped  int
}

// ImportRainfall loads station records from a local path or ftp:// URL.
// Records failing validation are logged and skipped.
func ImportRainfall(ctx context.Context, location string, st RainfallStore, logger *slog.Logger) (ImportResult, error) {
	var res ImportResult

	body, err := ingest.ReadLocation(ctx, location)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", location, err)
	}
	recs, err := ingest.ParseRainfallCSV(bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("parse %s: %w", location, err)
	}
	res.Read = len(recs)

	valid := recs[:0]
	for _, rec := range recs {
		if flags := ingest.ValidateRainfall(&rec); len(flags) > 0 {
			logger.Warn("skipping rainfall record",
				"date", rec.Date.Format(time.DateOnly),
				"station", rec.StationName,
				"flags", strings.Join(flags, ","),
			)
			res.Skipped++
			continue
		}
		valid = append(valid, rec)
	}

	n, err := st.UpsertRainfall(valid)
	if err != nil {
		metrics.JobRuns.WithLabelValues("import_rainfall", "error").Inc()
		return res, fmt.Errorf("upsert rainfall: %w", err)
	}
	res.Imported = n
	metrics.JobRuns.WithLabelValues("import_rainfall", "ok").Inc()
	logger.Info("rainfall imported", "location", location, "read", res.Read, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

type PredictionFlusher interface {
	FlushPredictions(date *time.Time) (int64, error)
}

// Flush deletes stored predictions for one date, or all of them when date is
// nil.
func Flush(st PredictionFlusher, date *time.Time, logger *slog.Logger) (int64, error) {
	n, err := st.FlushPredictions(date)
	if err != nil {
		metrics.JobRuns.WithLabelValues("flush", "error").Inc()
		return 0, err
	}
	metrics.JobRuns.WithLabelValues("flush", "ok").Inc()
	scope := "all"
	if date != nil {
		scope = date.Format(time.DateOnly)
	}
	logger.Info("predictions flushed", "scope", scope, "rows", n)
	return n, nil
}
