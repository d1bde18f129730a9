package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/metrics"
	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/riskmodel"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// ParseDate accepts only YYYY-MM-DD calendar dates.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil || d.Format(DateLayout) != s {
		return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return d, nil
}

const defaultChunkSize = 4096

// Scorer is the frozen risk model as the pipeline sees it.
type Scorer interface {
	FeatureNames() []string
	Score(rows [][]float64) (pa, pb []float64, err error)
}

type Config struct {
	Bounds    orb.Bound
	CellSize  float64
	Scorer    Scorer
	Locations *geo.LocationTable
	Verified  []models.VerifiedHotspot
	Locator   ResourceLocator // optional
	Workers   int             // defaults to GOMAXPROCS
	ChunkSize int
	Logger    *slog.Logger
}

// Predictor runs the hotspot pipeline for one date at a time. It holds only
// immutable state and may be shared between goroutines.
type Predictor struct {
	grid      geo.Grid
	features  *FeatureSet
	scorer    Scorer
	locations *geo.LocationTable
	amplifier *Amplifier
	agg       *Aggregator
	workers   int
	chunk     int
	logger    *slog.Logger
}

func NewPredictor(cfg Config) (*Predictor, error) {
	if cfg.Scorer == nil {
		return nil, errors.New("predictor: no scorer")
	}
	if cfg.CellSize == 0 {
		cfg.CellSize = geo.DefaultCellSize
	}
	if cfg.Bounds.IsZero() {
		cfg.Bounds = geo.DelhiBounds
	}
	grid, err := geo.NewGrid(cfg.Bounds, cfg.CellSize)
	if err != nil {
		return nil, err
	}
	fs, err := NewFeatureSet(cfg.Scorer.FeatureNames())
	if err != nil {
		return nil, err
	}
	if cfg.Locations == nil {
		cfg.Locations = geo.NewLocationTable(nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Predictor{
		grid:      grid,
		features:  fs,
		scorer:    cfg.Scorer,
		locations: cfg.Locations,
		amplifier: NewAmplifier(cfg.Verified),
		agg: &Aggregator{
			Locations: cfg.Locations,
			Locator:   cfg.Locator,
		},
		workers: cfg.Workers,
		chunk:   cfg.ChunkSize,
		logger:  cfg.Logger,
	}, nil
}

func (p *Predictor) Grid() geo.Grid { return p.grid }

type Result struct {
	Date       time.Time
	Rainfall   models.RainfallObservation
	GridPoints int
	Surviving  int
	Hotspots   []models.Hotspot
}

// Predict runs the pipeline with the date-seeded jitter source.
func (p *Predictor) Predict(ctx context.Context, date time.Time, obs models.RainfallObservation) (*Result, error) {
	return p.PredictWithRand(ctx, date, obs, NewDateRand(date))
}

// PredictWithRand runs the pipeline drawing jitter from r.
func (p *Predictor) PredictWithRand(ctx context.Context, date time.Time, obs models.RainfallObservation, r *rand.Rand) (*Result, error) {
	rain := math.Max(0, obs.RainfallMM)

	start := time.Now()
	points, err := p.score(ctx, date, rain)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("score").Observe(time.Since(start).Seconds())
	metrics.GridPointsScored.Add(float64(len(points)))

	start = time.Now()
	surviving := FilterRisk(points, RiskThreshold)
	Jitter(surviving, r)
	metrics.PointsAboveThreshold.Observe(float64(len(surviving)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hotspots := p.agg.Aggregate(surviving, rain)
	metrics.StageDuration.WithLabelValues("cluster").Observe(time.Since(start).Seconds())
	for _, h := range hotspots {
		metrics.HotspotsPredicted.WithLabelValues(string(h.Severity)).Inc()
	}

	p.logger.Info("prediction complete",
		"date", date.Format(DateLayout),
		"rainfall_mm", rain,
		"grid_points", len(points),
		"surviving", len(surviving),
		"hotspots", len(hotspots),
	)

	return &Result{
		Date:       date,
		Rainfall:   obs,
		GridPoints: len(points),
		Surviving:  len(surviving),
		Hotspots:   hotspots,
	}, nil
}

// score builds features, scores and applies the physical adjustments over
// grid chunks in parallel. Each chunk owns a disjoint range of points.
func (p *Predictor) score(ctx context.Context, date time.Time, rain float64) ([]models.GridPoint, error) {
	n := p.grid.Len()
	width := p.features.Width()
	points := make([]models.GridPoint, n)
	backing := make([]float64, n*width)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for lo := 0; lo < n; lo += p.chunk {
		if gctx.Err() != nil {
			break
		}
		hi := min(lo+p.chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := make([][]float64, hi-lo)
			for i := lo; i < hi; i++ {
				lat, lng := p.grid.At(i)
				row := backing[i*width : (i+1)*width : (i+1)*width]
				p.features.Build(row, lat, lng, date, rain)
				points[i] = models.GridPoint{Lat: lat, Lng: lng, Date: date, Features: row}
				rows[i-lo] = row
			}

			pa, pb, err := p.scorer.Score(rows)
			if err != nil {
				return fmt.Errorf("score chunk %d-%d: %w", lo, hi, err)
			}

			for i := lo; i < hi; i++ {
				pt := &points[i]
				risk := riskmodel.Combine(pa[i-lo], pb[i-lo])
				risk = AdjustForDrainage(risk, pt.Lat, pt.Lng, rain, p.locations)
				pt.Risk = p.amplifier.Apply(risk, pt.Lat, pt.Lng)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

