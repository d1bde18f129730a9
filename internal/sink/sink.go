// Package sink fans a run's hotspots out to persistence targets. Every sink
// has replace semantics: writing a batch for a date first removes whatever
// that sink held for the date.
package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/lox/floodwatch/internal/metrics"
	"github.com/lox/floodwatch/internal/models"
)

type HotspotSink interface {
	Name() string
	ReplaceHotspots(ctx context.Context, date time.Time, run models.Run, hotspots []models.Hotspot) error
}

// Fanout writes to each sink in turn. A failing sink is logged and skipped;
// the returned slice names the sinks that failed.
type Fanout struct {
	sinks  []HotspotSink
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...HotspotSink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Add(s HotspotSink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) ReplaceHotspots(ctx context.Context, date time.Time, run models.Run, hotspots []models.Hotspot) []string {
	var failed []string
	for _, s := range f.sinks {
		start := time.Now()
		err := s.ReplaceHotspots(ctx, date, run, hotspots)
		if err != nil {
			metrics.SinkWrites.WithLabelValues(s.Name(), "error").Inc()
			f.logger.Error("sink write failed",
				"sink", s.Name(),
				"date", date.Format(time.DateOnly),
				"run_id", run.ID,
				"error", err,
			)
			failed = append(failed, s.Name())
			continue
		}
		metrics.SinkWrites.WithLabelValues(s.Name(), "ok").Inc()
		f.logger.Info("hotspots written",
			"sink", s.Name(),
			"date", date.Format(time.DateOnly),
			"count", len(hotspots),
			"duration", time.Since(start),
		)
	}
	return failed
}
