package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/floodwatch/internal/models"
)

// ReplaceHotspots deletes every hotspot stored for date and inserts the new
// batch in one transaction. An empty batch still clears the date.
func (s *Store) ReplaceHotspots(ctx context.Context, date time.Time, run models.Run, hotspots []models.Hotspot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	day := formatDate(date)
	if _, err := tx.ExecContext(ctx, `DELETE FROM predicted_hotspots WHERE prediction_date = ?`, day); err != nil {
		return fmt.Errorf("delete hotspots for %s: %w", day, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO predicted_hotspots
		(prediction_date, rank, run_id, name, lat, lng, severity, confidence_score,
		 predicted_rainfall_mm, risk_factors, radius_meters, model_version, rainfall_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, h := range hotspots {
		factors, err := json.Marshal(h.RiskFactors)
		if err != nil {
			return fmt.Errorf("marshal risk factors: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, day, i+1, run.ID, h.Name, h.Lat, h.Lng, string(h.Severity),
			h.ConfidenceScore, h.PredictedRainfallMM, string(factors), h.RadiusMeters,
			run.ModelVersion, run.RainfallSource); err != nil {
			return fmt.Errorf("insert hotspot %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// GetHotspots returns the stored hotspots for a date, highest confidence
// first.
func (s *Store) GetHotspots(date time.Time) ([]models.StoredHotspot, error) {
	rows, err := s.db.Query(`
		SELECT id, prediction_date, run_id, name, lat, lng, severity, confidence_score,
		       predicted_rainfall_mm, risk_factors, radius_meters, model_version, rainfall_source, created_at
		FROM predicted_hotspots
		WHERE prediction_date = ?
		ORDER BY confidence_score DESC, rank
	`, formatDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StoredHotspot
	for rows.Next() {
		var (
			h                        models.StoredHotspot
			day, severity            string
			factors, version, source sql.NullString
		)
		if err := rows.Scan(&h.ID, &day, &h.RunID, &h.Name, &h.Lat, &h.Lng, &severity, &h.ConfidenceScore,
			&h.PredictedRainfallMM, &factors, &h.RadiusMeters, &version, &source, &h.CreatedAt); err != nil {
			return nil, err
		}
		if h.PredictionDate, err = parseDate(day); err != nil {
			return nil, fmt.Errorf("parse prediction_date %q: %w", day, err)
		}
		h.Severity = models.Severity(severity)
		h.ModelVersion = version.String
		h.RainfallSource = source.String
		if factors.Valid && factors.String != "" {
			if err := json.Unmarshal([]byte(factors.String), &h.RiskFactors); err != nil {
				return nil, fmt.Errorf("decode risk factors for hotspot %d: %w", h.ID, err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PredictionStats summarises stored predictions. recent bounds the number of
// per-date counts returned, newest first.
func (s *Store) PredictionStats(recent int) (*models.PredictionStats, error) {
	stats := &models.PredictionStats{SeverityBreakdown: make(map[models.Severity]int)}

	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT prediction_date) FROM predicted_hotspots`).
		Scan(&stats.TotalPredictionDates); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT severity, COUNT(*) FROM predicted_hotspots GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.SeverityBreakdown[models.Severity(sev)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`
		SELECT prediction_date, COUNT(*)
		FROM predicted_hotspots
		GROUP BY prediction_date
		ORDER BY prediction_date DESC
		LIMIT ?
	`, recent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var dc models.DateCount
		if err := rows.Scan(&day, &dc.HotspotCount); err != nil {
			return nil, err
		}
		if dc.Date, err = parseDate(day); err != nil {
			return nil, err
		}
		stats.RecentPredictions = append(stats.RecentPredictions, dc)
	}
	return stats, rows.Err()
}

// FlushPredictions deletes stored hotspots and their run records, either for
// one date or, when date is nil, for every date. It returns the number of
// hotspot rows removed.
func (s *Store) FlushPredictions(date *time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var res sql.Result
	if date == nil {
		res, err = tx.Exec(`DELETE FROM predicted_hotspots`)
		if err == nil {
			_, err = tx.Exec(`DELETE FROM prediction_runs`)
		}
	} else {
		day := formatDate(*date)
		res, err = tx.Exec(`DELETE FROM predicted_hotspots WHERE prediction_date = ?`, day)
		if err == nil {
			_, err = tx.Exec(`DELETE FROM prediction_runs WHERE prediction_date = ?`, day)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("flush predictions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
