package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/floodwatch/internal/models"
)

// Defaults applied when a stored record lacks temperature or humidity.
const (
	DefaultTemperatureC = 30.0
	DefaultHumidityPct  = 70
)

// UpsertRainfall inserts or updates station records keyed by date and
// station name.
func (s *Store) UpsertRainfall(records []models.RainfallRecord) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO historical_rainfall (record_date, station_name, lat, lng, rainfall_24h, temperature_c, humidity_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_date, station_name) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			rainfall_24h = excluded.rainfall_24h,
			temperature_c = excluded.temperature_c,
			humidity_percent = excluded.humidity_percent
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		var temp sql.NullFloat64
		if r.TemperatureC != nil {
			temp = sql.NullFloat64{Float64: *r.TemperatureC, Valid: true}
		}
		var hum sql.NullInt64
		if r.HumidityPercent != nil {
			hum = sql.NullInt64{Int64: int64(*r.HumidityPercent), Valid: true}
		}
		if _, err := stmt.Exec(formatDate(r.Date), r.StationName, r.Lat, r.Lng, r.Rainfall24h, temp, hum); err != nil {
			return 0, fmt.Errorf("upsert rainfall %s/%s: %w", formatDate(r.Date), r.StationName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// GetRainfallStations returns every station record for a date, ordered by
// station name.
func (s *Store) GetRainfallStations(date time.Time) ([]models.RainfallRecord, error) {
	rows, err := s.db.Query(`
		SELECT record_date, station_name, lat, lng, rainfall_24h, temperature_c, humidity_percent
		FROM historical_rainfall
		WHERE record_date = ?
		ORDER BY station_name
	`, formatDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RainfallRecord
	for rows.Next() {
		var (
			r        models.RainfallRecord
			day      string
			lat, lng sql.NullFloat64
			temp     sql.NullFloat64
			hum      sql.NullInt64
		)
		if err := rows.Scan(&day, &r.StationName, &lat, &lng, &r.Rainfall24h, &temp, &hum); err != nil {
			return nil, err
		}
		if r.Date, err = parseDate(day); err != nil {
			return nil, err
		}
		r.Lat, r.Lng = lat.Float64, lng.Float64
		if temp.Valid {
			v := temp.Float64
			r.TemperatureC = &v
		}
		if hum.Valid {
			v := int(hum.Int64)
			r.HumidityPercent = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRainfall returns the observation for a date from the first station
// record, or nil when nothing is stored. Missing temperature and humidity
// take the defaults.
func (s *Store) GetRainfall(date time.Time) (*models.RainfallObservation, error) {
	recs, err := s.GetRainfallStations(date)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	r := recs[0]
	obs := &models.RainfallObservation{
		RainfallMM:   r.Rainfall24h,
		TemperatureC: DefaultTemperatureC,
		HumidityPct:  DefaultHumidityPct,
	}
	if r.TemperatureC != nil {
		obs.TemperatureC = *r.TemperatureC
	}
	if r.HumidityPercent != nil {
		obs.HumidityPct = *r.HumidityPercent
	}
	return obs, nil
}
