package store

import (
	"database/sql"
	"time"

	"github.com/lox/floodwatch/internal/models"
)

// PredictionRun is the audit record of one pipeline execution.
type PredictionRun struct {
	RunID           string
	PredictionDate  time.Time
	ModelVersion    string
	RainfallSource  string
	RainfallMM      float64
	StartedAt       time.Time
	FinishedAt      sql.NullTime
	GridPoints      sql.NullInt64
	SurvivingPoints sql.NullInt64
	HotspotCount    sql.NullInt64
	Success         bool
	ErrorMessage    sql.NullString
}

// RunOutcome is what a finished run reports back.
type RunOutcome struct {
	GridPoints      int
	SurvivingPoints int
	HotspotCount    int
	Err             error
}

// StartRun records a run as in progress.
func (s *Store) StartRun(run models.Run, rainfallMM float64) error {
	_, err := s.db.Exec(`
		INSERT INTO prediction_runs (run_id, prediction_date, model_version, rainfall_source, rainfall_mm, started_at, success)
		VALUES (?, ?, ?, ?, ?, ?, FALSE)
	`, run.ID, formatDate(run.Date), run.ModelVersion, run.RainfallSource, rainfallMM, run.StartedAt.UTC())
	return err
}

// CompleteRun marks a run finished, successful unless out.Err is set.
func (s *Store) CompleteRun(runID string, out RunOutcome) error {
	var errMsg sql.NullString
	if out.Err != nil {
		errMsg = sql.NullString{String: out.Err.Error(), Valid: true}
	}
	_, err := s.db.Exec(`
		UPDATE prediction_runs SET
			finished_at = ?,
			grid_points = ?,
			surviving_points = ?,
			hotspot_count = ?,
			success = ?,
			error_message = ?
		WHERE run_id = ?
	`, time.Now().UTC(), out.GridPoints, out.SurvivingPoints, out.HotspotCount, out.Err == nil, errMsg, runID)
	return err
}

const runColumns = `run_id, prediction_date, model_version, rainfall_source, rainfall_mm, started_at,
	finished_at, grid_points, surviving_points, hotspot_count, success, error_message`

func scanRun(sc interface{ Scan(...any) error }) (*PredictionRun, error) {
	var (
		r               PredictionRun
		day             string
		version, source sql.NullString
		rain            sql.NullFloat64
	)
	if err := sc.Scan(&r.RunID, &day, &version, &source, &rain, &r.StartedAt, &r.FinishedAt,
		&r.GridPoints, &r.SurvivingPoints, &r.HotspotCount, &r.Success, &r.ErrorMessage); err != nil {
		return nil, err
	}
	var err error
	if r.PredictionDate, err = parseDate(day); err != nil {
		return nil, err
	}
	r.ModelVersion, r.RainfallSource, r.RainfallMM = version.String, source.String, rain.Float64
	return &r, nil
}

// LatestSuccessfulRun returns the newest successful run for a date, or nil.
func (s *Store) LatestSuccessfulRun(date time.Time) (*PredictionRun, error) {
	row := s.db.QueryRow(`
		SELECT `+runColumns+`
		FROM prediction_runs
		WHERE prediction_date = ? AND success = TRUE
		ORDER BY started_at DESC
		LIMIT 1
	`, formatDate(date))
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// RecentRunErrors returns the most recent failed runs.
func (s *Store) RecentRunErrors(limit int) ([]PredictionRun, error) {
	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM prediction_runs
		WHERE success = FALSE AND finished_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PredictionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
