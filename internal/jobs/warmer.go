package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/floodwatch/internal/forecast"
)

// PayloadJanitor prunes archived upstream payloads.
type PayloadJanitor interface {
	CleanupOldRawPayloads(retention time.Duration) (int64, error)
}

type WarmerConfig struct {
	Runner   *Runner
	Days     int           // dates ahead of today to keep predicted, today included
	Interval time.Duration // default 6h
	Janitor  PayloadJanitor
	// Retention for raw payloads, default 30 days.
	Retention time.Duration
	Location  *time.Location
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Warmer keeps the next few days predicted so the API rarely has to
// generate on demand.
type Warmer struct {
	runner    *Runner
	days      int
	interval  time.Duration
	janitor   PayloadJanitor
	retention time.Duration
	loc       *time.Location
	clock     clockwork.Clock
	logger    *slog.Logger
}

func NewWarmer(cfg WarmerConfig) *Warmer {
	w := &Warmer{
		runner:    cfg.Runner,
		days:      cfg.Days,
		interval:  cfg.Interval,
		janitor:   cfg.Janitor,
		retention: cfg.Retention,
		loc:       cfg.Location,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if w.days <= 0 {
		w.days = 3
	}
	if w.interval <= 0 {
		w.interval = 6 * time.Hour
	}
	if w.retention <= 0 {
		w.retention = 30 * 24 * time.Hour
	}
	if w.loc == nil {
		w.loc = time.UTC
	}
	if w.clock == nil {
		w.clock = clockwork.NewRealClock()
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

func (w *Warmer) Run(ctx context.Context) {
	w.tick(ctx)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("warmer shutting down")
			return
		case <-ticker.Chan():
			w.tick(ctx)
		}
	}
}

func (w *Warmer) tick(ctx context.Context) {
	w.Warm(ctx)
	if w.janitor != nil {
		n, err := w.janitor.CleanupOldRawPayloads(w.retention)
		if err != nil {
			w.logger.Warn("raw payload cleanup failed", "error", err)
		} else if n > 0 {
			w.logger.Info("pruned raw payloads", "rows", n)
		}
	}
}

// Warm predicts each of the next days that has no prediction yet. It returns
// how many runs it made.
func (w *Warmer) Warm(ctx context.Context) int {
	now := w.clock.Now().In(w.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var ran int
	for i := range w.days {
		if ctx.Err() != nil {
			break
		}
		date := today.AddDate(0, 0, i)
		_, did, err := w.runner.RunIfMissing(ctx, date)
		if err != nil {
			w.logger.Error("warm prediction failed", "date", date.Format(forecast.DateLayout), "error", err)
			continue
		}
		if did {
			ran++
		}
	}
	if ran > 0 {
		w.logger.Info("warmed predictions", "runs", ran, "days", w.days)
	}
	return ran
}
