package ingest

import (
	"strings"

	"github.com/lox/floodwatch/internal/models"
)

const (
	FlagRainfallNegative   = "rainfall_negative"
	FlagRainfallUnlikely   = "rainfall_unlikely"
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagOutsideDelhi       = "outside_delhi"
	FlagStationNameMissing = "station_name_missing"
)

// MaxPlausibleRainfallMM is above Delhi's wettest recorded day.
const MaxPlausibleRainfallMM = 500.0

// ValidateRainfall returns quality flags for a station record. A record with
// any flag is not imported.
func ValidateRainfall(rec *models.RainfallRecord) []string {
	var flags []string

	if rec.Rainfall24h < 0 {
		flags = append(flags, FlagRainfallNegative)
	} else if rec.Rainfall24h > MaxPlausibleRainfallMM {
		flags = append(flags, FlagRainfallUnlikely)
	}

	if rec.TemperatureC != nil {
		if *rec.TemperatureC < -5 || *rec.TemperatureC > 52 {
			flags = append(flags, FlagTempOutOfRange)
		}
	}

	if rec.HumidityPercent != nil {
		if *rec.HumidityPercent < 0 || *rec.HumidityPercent > 100 {
			flags = append(flags, FlagHumidityInvalid)
		}
	}

	// Generous box around the NCT.
	if rec.Lat < 28.0 || rec.Lat > 29.2 || rec.Lng < 76.5 || rec.Lng > 77.7 {
		flags = append(flags, FlagOutsideDelhi)
	}

	if strings.TrimSpace(rec.StationName) == "" {
		flags = append(flags, FlagStationNameMissing)
	}

	return flags
}
