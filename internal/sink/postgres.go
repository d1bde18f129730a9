package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lox/floodwatch/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS predicted_hotspots (
	id SERIAL PRIMARY KEY,
	prediction_date DATE NOT NULL,
	rank INTEGER NOT NULL,
	run_id TEXT,
	name TEXT NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL,
	severity TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	predicted_rainfall_mm DOUBLE PRECISION NOT NULL,
	risk_factors JSONB,
	radius_meters INTEGER NOT NULL,
	model_version TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_predicted_hotspots_date ON predicted_hotspots(prediction_date);
`

var postgresColumns = []string{
	"prediction_date", "rank", "run_id", "name", "lat", "lng", "severity",
	"confidence_score", "predicted_rainfall_mm", "risk_factors", "radius_meters", "model_version",
}

// Postgres mirrors batches into a predicted_hotspots table for consumers
// that read from Postgres.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ConnectPostgres opens a pool, verifies it and creates the table if needed.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) ReplaceHotspots(ctx context.Context, date time.Time, run models.Run, hotspots []models.Hotspot) error {
	rows, err := hotspotRows(date, run, hotspots)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM predicted_hotspots WHERE prediction_date = $1`, date); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", date.Format(time.DateOnly), err)
	}
	if len(rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"predicted_hotspots"}, postgresColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("postgres: copy hotspots: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("postgres: copied %d of %d hotspots", n, len(rows))
		}
	}
	return tx.Commit(ctx)
}

// hotspotRows lays out a batch in postgresColumns order, ranked from 1.
func hotspotRows(date time.Time, run models.Run, hotspots []models.Hotspot) ([][]any, error) {
	rows := make([][]any, 0, len(hotspots))
	for i, h := range hotspots {
		factors, err := json.Marshal(h.RiskFactors)
		if err != nil {
			return nil, fmt.Errorf("postgres: marshal risk factors: %w", err)
		}
		rows = append(rows, []any{
			date, i + 1, run.ID, h.Name, h.Lat, h.Lng, string(h.Severity),
			h.ConfidenceScore, h.PredictedRainfallMM, string(factors), h.RadiusMeters, run.ModelVersion,
		})
	}
	return rows, nil
}
