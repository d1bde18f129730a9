// Package jobs runs the pipeline end to end for a date and hosts the
// maintenance commands and the background warmer built on it.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/lox/floodwatch/internal/forecast"
	"github.com/lox/floodwatch/internal/metrics"
	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/store"
)

type Resolver interface {
	Resolve(ctx context.Context, date time.Time) models.RainfallObservation
}

type Predictor interface {
	Predict(ctx context.Context, date time.Time, obs models.RainfallObservation) (*forecast.Result, error)
}

// RunRecorder keeps the audit trail of runs.
type RunRecorder interface {
	StartRun(run models.Run, rainfallMM float64) error
	CompleteRun(runID string, out store.RunOutcome) error
}

type Sinks interface {
	ReplaceHotspots(ctx context.Context, date time.Time, run models.Run, hotspots []models.Hotspot) []string
}

// PredictionIndex answers whether a date already has a prediction.
type PredictionIndex interface {
	GetHotspots(date time.Time) ([]models.StoredHotspot, error)
	LatestSuccessfulRun(date time.Time) (*store.PredictionRun, error)
}

type RunnerConfig struct {
	Resolver     Resolver
	Predictor    Predictor
	ModelVersion string
	Runs         RunRecorder     // optional
	Sinks        Sinks           // optional
	Index        PredictionIndex // optional
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Runner executes resolve, predict and persist for a date. Runs for the same
// date are serialized.
type Runner struct {
	resolver     Resolver
	predictor    Predictor
	modelVersion string
	runs         RunRecorder
	sinks        Sinks
	index        PredictionIndex
	clock        clockwork.Clock
	logger       *slog.Logger

	mu    sync.Mutex
	dates map[string]*dateLock
}

type dateLock struct {
	sync.Mutex
	refs int // holders and waiters
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Resolver == nil || cfg.Predictor == nil {
		return nil, errors.New("runner needs a resolver and a predictor")
	}
	r := &Runner{
		resolver:     cfg.Resolver,
		predictor:    cfg.Predictor,
		modelVersion: cfg.ModelVersion,
		runs:         cfg.Runs,
		sinks:        cfg.Sinks,
		index:        cfg.Index,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		dates:        make(map[string]*dateLock),
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

type RunOptions struct {
	// DryRun predicts without recording the run or writing to sinks.
	DryRun bool
}

type Outcome struct {
	Run         models.Run
	Result      *forecast.Result
	FailedSinks []string
}

// Run predicts date and writes the hotspots to every sink.
func (r *Runner) Run(ctx context.Context, date time.Time, opts RunOptions) (*Outcome, error) {
	unlock := r.lock(date)
	defer unlock()
	return r.run(ctx, date, opts)
}

// RunIfMissing runs date unless a prediction already exists. The check and
// the run happen under the date's lock. ran reports whether a run happened.
func (r *Runner) RunIfMissing(ctx context.Context, date time.Time) (out *Outcome, ran bool, err error) {
	unlock := r.lock(date)
	defer unlock()

	have, err := r.HasPrediction(date)
	if err != nil {
		return nil, false, err
	}
	if have {
		return nil, false, nil
	}
	out, err = r.run(ctx, date, RunOptions{})
	return out, err == nil, err
}

// HasPrediction reports whether date has stored hotspots or a successful
// run that found none. A run that found hotspots which are no longer stored
// does not count.
func (r *Runner) HasPrediction(date time.Time) (bool, error) {
	if r.index == nil {
		return false, nil
	}
	hotspots, err := r.index.GetHotspots(date)
	if err != nil {
		return false, err
	}
	if len(hotspots) > 0 {
		return true, nil
	}
	run, err := r.index.LatestSuccessfulRun(date)
	if err != nil || run == nil {
		return false, err
	}
	return run.HotspotCount.Valid && run.HotspotCount.Int64 == 0, nil
}

func (r *Runner) run(ctx context.Context, date time.Time, opts RunOptions) (*Outcome, error) {
	day := date.Format(forecast.DateLayout)
	obs := r.resolver.Resolve(ctx, date)

	run := models.Run{
		ID:             uuid.NewString(),
		Date:           date,
		ModelVersion:   r.modelVersion,
		RainfallSource: obs.Source,
		StartedAt:      r.clock.Now(),
	}
	log := r.logger.With("run_id", run.ID, "date", day)

	record := r.runs != nil && !opts.DryRun
	if record {
		if err := r.runs.StartRun(run, obs.RainfallMM); err != nil {
			log.Warn("failed to record run start", "error", err)
			record = false
		}
	}

	res, err := r.predictor.Predict(ctx, date, obs)
	if err != nil {
		metrics.JobRuns.WithLabelValues("predict", "error").Inc()
		if record {
			if cerr := r.runs.CompleteRun(run.ID, store.RunOutcome{Err: err}); cerr != nil {
				log.Warn("failed to record run failure", "error", cerr)
			}
		}
		return nil, err
	}

	out := &Outcome{Run: run, Result: res}
	if !opts.DryRun && r.sinks != nil {
		out.FailedSinks = r.sinks.ReplaceHotspots(ctx, date, run, res.Hotspots)
	}

	if record {
		if err := r.runs.CompleteRun(run.ID, store.RunOutcome{
			GridPoints:      res.GridPoints,
			SurvivingPoints: res.Surviving,
			HotspotCount:    len(res.Hotspots),
		}); err != nil {
			log.Warn("failed to record run completion", "error", err)
		}
	}

	metrics.JobRuns.WithLabelValues("predict", "ok").Inc()
	log.Info("run complete",
		"hotspots", len(res.Hotspots),
		"rainfall_source", obs.Source,
		"dry_run", opts.DryRun,
		"failed_sinks", len(out.FailedSinks),
		"duration", r.clock.Since(run.StartedAt),
	)
	return out, nil
}

// lock takes the date's mutex. The entry is dropped once nobody holds or
// waits on it.
func (r *Runner) lock(date time.Time) func() {
	key := date.Format(forecast.DateLayout)
	r.mu.Lock()
	l, ok := r.dates[key]
	if !ok {
		l = &dateLock{}
		r.dates[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.dates, key)
		}
		r.mu.Unlock()
	}
}

