package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/riskmodel"
)

// Feature names the builder can produce.
const (
	FeatLat             = "lat"
	FeatLng             = "lng"
	FeatRainfall        = "rainfall_24h"
	FeatDayOfYear       = "day_of_year"
	FeatMonth           = "month"
	FeatIsMonsoon       = "is_monsoon"
	FeatDaySin          = "day_sin"
	FeatDayCos          = "day_cos"
	FeatMonthSin        = "month_sin"
	FeatMonthCos        = "month_cos"
	FeatMinDistRiskZone = "min_dist_to_risk_zone_km"
	FeatElevation       = "elevation_proxy"
	FeatRainfallSquared = "rainfall_squared"
	FeatRainfallLog     = "rainfall_log"
	FeatIntensity       = "rainfall_intensity_num"
)

// ElevationReferenceLat is the latitude the elevation proxy is measured
// from; the city slopes down towards the south-east.
const ElevationReferenceLat = 28.7

// pointInput carries everything a feature may read for one grid point.
type pointInput struct {
	lat, lng float64
	rain     float64
	doy      float64
	month    float64
}

type featureFunc func(p *pointInput) float64

var builders = map[string]featureFunc{
	FeatLat:       func(p *pointInput) float64 { return p.lat },
	FeatLng:       func(p *pointInput) float64 { return p.lng },
	FeatRainfall:  func(p *pointInput) float64 { return p.rain },
	FeatDayOfYear: func(p *pointInput) float64 { return p.doy },
	FeatMonth:     func(p *pointInput) float64 { return p.month },
	FeatIsMonsoon: func(p *pointInput) float64 {
		if p.month >= 6 && p.month <= 9 {
			return 1
		}
		return 0
	},
	FeatDaySin:   func(p *pointInput) float64 { return math.Sin(2 * math.Pi * p.doy / 365) },
	FeatDayCos:   func(p *pointInput) float64 { return math.Cos(2 * math.Pi * p.doy / 365) },
	FeatMonthSin: func(p *pointInput) float64 { return math.Sin(2 * math.Pi * p.month / 12) },
	FeatMonthCos: func(p *pointInput) float64 { return math.Cos(2 * math.Pi * p.month / 12) },
	FeatMinDistRiskZone: func(p *pointInput) float64 {
		return geo.MinDistance(p.lat, p.lng, geo.HighRiskZones) * geo.KMPerDegree
	},
	FeatElevation:       func(p *pointInput) float64 { return ElevationReferenceLat - p.lat },
	FeatRainfallSquared: func(p *pointInput) float64 { return p.rain * p.rain },
	FeatRainfallLog:     func(p *pointInput) float64 { return math.Log1p(p.rain) },
	FeatIntensity:       func(p *pointInput) float64 { return float64(IntensityBucket(p.rain)) },
}

// IntensityBucket maps 24h rainfall to 1..5 over (0,15], (15,35], (35,65],
// (65,115] and above. Zero rainfall is bucket 1.
func IntensityBucket(rain float64) int {
	switch {
	case rain <= 15:
		return 1
	case rain <= 35:
		return 2
	case rain <= 65:
		return 3
	case rain <= 115:
		return 4
	default:
		return 5
	}
}

// FeatureSet builds feature rows in a model's column order.
type FeatureSet struct {
	fns []featureFunc
}

// NewFeatureSet resolves the ordered names against the builder. Unknown,
// duplicate or missing names are an ErrFeatureMismatch.
func NewFeatureSet(names []string) (*FeatureSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty feature list", riskmodel.ErrFeatureMismatch)
	}
	seen := make(map[string]bool, len(names))
	fs := &FeatureSet{fns: make([]featureFunc, len(names))}
	for i, n := range names {
		fn, ok := builders[n]
		if !ok {
			return nil, fmt.Errorf("%w: cannot build feature %q", riskmodel.ErrFeatureMismatch, n)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: duplicate feature %q", riskmodel.ErrFeatureMismatch, n)
		}
		seen[n] = true
		fs.fns[i] = fn
	}
	return fs, nil
}

func (fs *FeatureSet) Width() int { return len(fs.fns) }

// Build writes the feature row for one point into dst, which must have
// Width() elements.
func (fs *FeatureSet) Build(dst []float64, lat, lng float64, date time.Time, rain float64) {
	p := pointInput{
		lat:   lat,
		lng:   lng,
		rain:  rain,
		doy:   float64(date.YearDay()),
		month: float64(date.Month()),
	}
	for i, fn := range fs.fns {
		dst[i] = fn(&p)
	}
}
