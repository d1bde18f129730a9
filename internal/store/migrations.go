package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS predicted_hotspots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    prediction_date TEXT NOT NULL,
    rank INTEGER NOT NULL,
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    lat REAL NOT NULL,
    lng REAL NOT NULL,
    severity TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    predicted_rainfall_mm REAL NOT NULL,
    risk_factors TEXT,
    radius_meters INTEGER NOT NULL,
    model_version TEXT,
    rainfall_source TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(prediction_date, rank)
);

CREATE TABLE IF NOT EXISTS historical_rainfall (
    record_date TEXT NOT NULL,
    station_name TEXT NOT NULL,
    lat REAL,
    lng REAL,
    rainfall_24h REAL NOT NULL,
    temperature_c REAL,
    humidity_percent INTEGER,
    PRIMARY KEY (record_date, station_name)
);

CREATE INDEX IF NOT EXISTS idx_hotspots_date ON predicted_hotspots(prediction_date);
`,
	},
	{
		Version:     2,
		Description: "Add model metadata",
		SQL: `
CREATE TABLE IF NOT EXISTS model_metadata (
    model_version TEXT PRIMARY KEY,
    training_date TEXT,
    training_samples INTEGER,
    accuracy REAL,
    precision_score REAL,
    recall_score REAL,
    f1_score REAL,
    feature_importance TEXT,
    data_sources TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version:     3,
		Description: "Add prediction runs and raw rainfall payloads for auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS prediction_runs (
    run_id TEXT PRIMARY KEY,
    prediction_date TEXT NOT NULL,
    model_version TEXT,
    rainfall_source TEXT,
    rainfall_mm REAL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    grid_points INTEGER,
    surviving_points INTEGER,
    hotspot_count INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_date ON prediction_runs(prediction_date);

CREATE TABLE IF NOT EXISTS raw_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    fetched_at DATETIME NOT NULL,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    target_date TEXT,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_raw_payloads_fetched ON raw_payloads(fetched_at);
`,
	},
}

// Migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.MigrationVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// MigrationVersion is the highest applied migration, 0 on a fresh database.
func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}
