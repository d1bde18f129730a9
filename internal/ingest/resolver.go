package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/floodwatch/internal/metrics"
	"github.com/lox/floodwatch/internal/models"
)

// Rainfall sources, in resolution order.
const (
	SourceGroundTruth = "ground_truth"
	SourceStore       = "store"
	SourceOpenMeteo   = "open_meteo"
	SourceGenerator   = "generator"
	SourceClimatology = "climatology"
)

// GeneratorHorizonDays is how far ahead dates must be before the stochastic
// generator takes over from the forecast.
const GeneratorHorizonDays = 16

// RainfallHistory is the stored-history tier.
type RainfallHistory interface {
	GetRainfall(date time.Time) (*models.RainfallObservation, error)
}

// Resolver picks the best available rainfall observation for a date. Tiers
// are tried in order and the first hit wins; a tier that fails is logged and
// skipped. Resolve always returns an observation.
type Resolver struct {
	groundTruth *GroundTruth    // optional
	history     RainfallHistory // optional
	openMeteo   *OpenMeteo      // optional
	clock       clockwork.Clock
	loc         *time.Location
	logger      *slog.Logger
}

type ResolverConfig struct {
	GroundTruth *GroundTruth
	History     RainfallHistory
	OpenMeteo   *OpenMeteo
	Clock       clockwork.Clock
	Location    *time.Location
	Logger      *slog.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		groundTruth: cfg.GroundTruth,
		history:     cfg.History,
		openMeteo:   cfg.OpenMeteo,
		clock:       clock,
		loc:         loc,
		logger:      logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, date time.Time) models.RainfallObservation {
	obs := r.resolve(ctx, civilDate(date))
	metrics.RainfallResolutions.WithLabelValues(obs.Source).Inc()
	r.logger.Info("resolved rainfall",
		"date", date.Format(dateLayout),
		"source", obs.Source,
		"rainfall_mm", obs.RainfallMM,
	)
	return obs
}

func (r *Resolver) resolve(ctx context.Context, date time.Time) models.RainfallObservation {
	day := date.Format(dateLayout)

	if r.groundTruth != nil {
		rain, ok, err := r.groundTruth.Lookup(ctx, date)
		switch {
		case err != nil:
			r.logger.Warn("ground truth lookup failed", "date", day, "error", err)
		case ok:
			return models.RainfallObservation{RainfallMM: rain, TemperatureC: 30, HumidityPct: 70, Source: SourceGroundTruth}
		}
	}

	if r.history != nil {
		obs, err := r.history.GetRainfall(date)
		switch {
		case err != nil:
			r.logger.Warn("stored rainfall lookup failed", "date", day, "error", err)
		case obs != nil:
			obs.Source = SourceStore
			return *obs
		}
	}

	if r.openMeteo != nil {
		obs, err := r.openMeteo.Fetch(ctx, date)
		switch {
		case err == nil:
			return *obs
		case errors.Is(err, ErrOutOfRange):
			r.logger.Debug("date beyond forecast horizon", "date", day)
		default:
			r.logger.Warn("open-meteo fetch failed", "date", day, "error", err)
		}
	}

	if date.After(r.today().AddDate(0, 0, GeneratorHorizonDays)) {
		return Generate(date)
	}

	r.logger.Warn("all rainfall sources failed, using climatology", "date", day)
	return Climatology(date)
}

func (r *Resolver) today() time.Time {
	return civilDate(r.clock.Now().In(r.loc))
}
