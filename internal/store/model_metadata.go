package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/floodwatch/internal/models"
)

func (s *Store) UpsertModelMetadata(m models.ModelMetadata) error {
	importance, err := json.Marshal(m.FeatureImportance)
	if err != nil {
		return fmt.Errorf("marshal feature importance: %w", err)
	}
	sources, err := json.Marshal(m.DataSources)
	if err != nil {
		return fmt.Errorf("marshal data sources: %w", err)
	}

	var trained sql.NullString
	if !m.TrainingDate.IsZero() {
		trained = sql.NullString{String: formatDate(m.TrainingDate), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO model_metadata
		(model_version, training_date, training_samples, accuracy, precision_score, recall_score,
		 f1_score, feature_importance, data_sources, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_version) DO UPDATE SET
			training_date = excluded.training_date,
			training_samples = excluded.training_samples,
			accuracy = excluded.accuracy,
			precision_score = excluded.precision_score,
			recall_score = excluded.recall_score,
			f1_score = excluded.f1_score,
			feature_importance = excluded.feature_importance,
			data_sources = excluded.data_sources,
			updated_at = excluded.updated_at
	`, m.ModelVersion, trained, m.TrainingSamples, m.Accuracy, m.Precision, m.Recall,
		m.F1Score, string(importance), string(sources), time.Now().UTC())
	return err
}

// LatestModelMetadata returns the most recently trained model's metadata, or
// nil when none is stored.
func (s *Store) LatestModelMetadata() (*models.ModelMetadata, error) {
	row := s.db.QueryRow(`
		SELECT model_version, training_date, training_samples, accuracy, precision_score,
		       recall_score, f1_score, feature_importance, data_sources
		FROM model_metadata
		ORDER BY training_date DESC, updated_at DESC
		LIMIT 1
	`)

	var (
		m                   models.ModelMetadata
		trained             sql.NullString
		importance, sources sql.NullString
	)
	err := row.Scan(&m.ModelVersion, &trained, &m.TrainingSamples, &m.Accuracy, &m.Precision,
		&m.Recall, &m.F1Score, &importance, &sources)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if trained.Valid {
		if m.TrainingDate, err = parseDate(trained.String); err != nil {
			return nil, fmt.Errorf("parse training_date: %w", err)
		}
	}
	if importance.Valid && importance.String != "" {
		if err := json.Unmarshal([]byte(importance.String), &m.FeatureImportance); err != nil {
			return nil, fmt.Errorf("decode feature importance: %w", err)
		}
	}
	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &m.DataSources); err != nil {
			return nil, fmt.Errorf("decode data sources: %w", err)
		}
	}
	return &m, nil
}
