package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/floodwatch/internal/briefing"
	"github.com/lox/floodwatch/internal/forecast"
	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/ingest"
	"github.com/lox/floodwatch/internal/jobs"
	"github.com/lox/floodwatch/internal/riskmodel"
	"github.com/lox/floodwatch/internal/sink"
	"github.com/lox/floodwatch/internal/store"
)

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// app holds what every command shares once the globals are resolved.
type app struct {
	g      *Globals
	logger *slog.Logger
	loc    *time.Location
	store  *store.Store

	closers []func()
}

func newApp(g *Globals) (*app, error) {
	logger, err := newLogger(g.LogLevel, g.LogFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		logger.Warn("could not load timezone, using UTC", "timezone", g.Timezone, "error", err)
		loc = time.UTC
	}

	st, err := openStore(g.DBPath)
	if err != nil {
		return nil, err
	}
	a := &app{g: g, logger: logger, loc: loc, store: st}
	a.onClose(func() { st.Close() })
	return a, nil
}

func openStore(path string) (*store.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) loadModel() (*riskmodel.Model, error) {
	model, err := riskmodel.Load(a.g.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	a.logger.Info("loaded risk model", "version", model.Version(), "features", len(model.FeatureNames()))
	return model, nil
}

func (a *app) newPredictor(model *riskmodel.Model) (*forecast.Predictor, error) {
	verified, err := geo.LoadVerifiedHotspots(a.g.VerifiedHotspots)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Warn("verified hotspots not found, amplification disabled", "path", a.g.VerifiedHotspots)
	case err != nil:
		a.logger.Warn("could not load verified hotspots, amplification disabled", "path", a.g.VerifiedHotspots, "error", err)
	default:
		a.logger.Info("loaded verified hotspots", "count", len(verified))
	}

	cfg := forecast.Config{
		Scorer:    model,
		Locations: geo.DelhiLocations(),
		Verified:  verified,
		Logger:    a.logger,
	}
	if a.g.Pumps != "" {
		pumps, err := geo.LoadResources(a.g.Pumps)
		if err != nil {
			a.logger.Warn("could not load pump stations, logistics disabled", "path", a.g.Pumps, "error", err)
		} else {
			cfg.Locator = forecast.NewPumpLocator(pumps)
			a.logger.Info("loaded pump stations", "count", len(pumps))
		}
	}
	return forecast.NewPredictor(cfg)
}

func (a *app) newResolver() *ingest.Resolver {
	cfg := ingest.ResolverConfig{
		History:   a.store,
		OpenMeteo: ingest.NewOpenMeteo(a.loc, ingest.WithRecorder(a.store)),
		Location:  a.loc,
		Logger:    a.logger,
	}
	if a.g.RainfallCSV != "" {
		cfg.GroundTruth = ingest.NewGroundTruth(a.g.RainfallCSV)
	}
	return ingest.NewResolver(cfg)
}

// newSinks always writes to the local store and mirrors to Postgres and
// Kafka when they are configured. A mirror that cannot connect is skipped.
func (a *app) newSinks(ctx context.Context) *sink.Fanout {
	fanout := sink.NewFanout(a.logger, a.store)

	if a.g.DatabaseURL != "" {
		pg, err := sink.ConnectPostgres(ctx, a.g.DatabaseURL)
		if err != nil {
			a.logger.Error("postgres mirror disabled", "error", err)
		} else {
			fanout.Add(pg)
			a.onClose(pg.Close)
		}
	}
	if len(a.g.KafkaBrokers) > 0 {
		k := sink.NewKafka(a.g.KafkaBrokers, a.g.KafkaTopic)
		fanout.Add(k)
		a.onClose(func() {
			if err := k.Close(); err != nil {
				a.logger.Error("kafka writer close error", "error", err)
			}
		})
	}
	a.logger.Info("hotspot sinks configured", "count", fanout.Len())
	return fanout
}

func (a *app) newRunner(ctx context.Context, model *riskmodel.Model) (*jobs.Runner, error) {
	predictor, err := a.newPredictor(model)
	if err != nil {
		return nil, err
	}
	return jobs.NewRunner(jobs.RunnerConfig{
		Resolver:     a.newResolver(),
		Predictor:    predictor,
		ModelVersion: model.Version(),
		Runs:         a.store,
		Sinks:        a.newSinks(ctx),
		Index:        a.store,
		Logger:       a.logger,
	})
}

// newBriefing returns nil when no API key is configured.
func (a *app) newBriefing() *briefing.Generator {
	gen, err := briefing.NewGenerator(a.g.OpenAIKey, a.logger)
	if err != nil {
		a.logger.Debug("briefings disabled", "reason", err)
		return nil
	}
	return gen
}
