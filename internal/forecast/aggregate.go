package forecast

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/floodwatch/internal/cluster"
	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/models"
)

const (
	MaxHotspots     = 100
	MinRadiusMeters = 100

	HighRainfallMM     = 50.0
	VeryHighRainfallMM = 100.0

	// NamingRadiusDeg is how far a centroid may be from a known location and
	// still take its name outright.
	NamingRadiusDeg = 0.03

	UnknownAreaName = "Unknown Area"
)

// SeverityFor buckets the maximum member risk of a cluster.
func SeverityFor(maxRisk float64) models.Severity {
	switch {
	case maxRisk > 0.85:
		return models.SeverityCritical
	case maxRisk > 0.75:
		return models.SeverityHigh
	case maxRisk > 0.65:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// LocationName names a point after the nearest known location, prefixing
// "Zone near" when it is more than NamingRadiusDeg away.
func LocationName(lat, lng float64, table *geo.LocationTable) string {
	loc, dist, ok := table.Nearest(lat, lng)
	if !ok {
		return UnknownAreaName
	}
	if dist > NamingRadiusDeg {
		return "Zone near " + loc.Name
	}
	return loc.Name
}

// Aggregator turns clustered risk points into ranked hotspots.
type Aggregator struct {
	Locations  *geo.LocationTable
	Locator    ResourceLocator // optional
}

// Aggregate clusters the points and returns at most MaxHotspots hotspots
// sorted by descending confidence. The result does not depend on the order of
// points.
func (a *Aggregator) Aggregate(points []models.GridPoint, rainfallMM float64) []models.Hotspot {
	if len(points) == 0 {
		return nil
	}

	in := make([]cluster.Point, len(points))
	for i, p := range points {
		in[i] = cluster.Point{Lat: p.Lat, Lng: p.Lng, Risk: p.Risk}
	}
	groups := cluster.Groups(cluster.DBSCAN(in, cluster.DefaultEps, cluster.DefaultMinSamples))

	hotspots := make([]models.Hotspot, 0, len(groups))
	for _, members := range groups {
		hotspots = append(hotspots, a.summarise(points, members, rainfallMM))
	}

	// Groups come out in canonical cluster order, so a stable sort keeps
	// equal-confidence ties deterministic.
	slices.SortStableFunc(hotspots, func(x, y models.Hotspot) int {
		switch {
		case x.ConfidenceScore > y.ConfidenceScore:
			return -1
		case x.ConfidenceScore < y.ConfidenceScore:
			return 1
		default:
			return 0
		}
	})
	if len(hotspots) > MaxHotspots {
		hotspots = hotspots[:MaxHotspots]
	}
	return hotspots
}

func (a *Aggregator) summarise(points []models.GridPoint, members []int, rainfallMM float64) models.Hotspot {
	// Sum in canonical order so floating-point results are bit-identical
	// however the input was ordered.
	slices.SortFunc(members, func(i, j int) int {
		pi, pj := points[i], points[j]
		if c := cmp.Compare(pi.Lat, pj.Lat); c != 0 {
			return c
		}
		if c := cmp.Compare(pi.Lng, pj.Lng); c != 0 {
			return c
		}
		return cmp.Compare(pi.Risk, pj.Risk)
	})

	lats := make([]float64, len(members))
	lngs := make([]float64, len(members))
	risks := make([]float64, len(members))
	for i, idx := range members {
		lats[i] = points[idx].Lat
		lngs[i] = points[idx].Lng
		risks[i] = points[idx].Risk
	}

	centerLat := stat.Mean(lats, nil)
	centerLng := stat.Mean(lngs, nil)
	avgRisk := stat.Mean(risks, nil)
	maxRisk := floats.Max(risks)

	var maxDist float64
	for i := range members {
		maxDist = math.Max(maxDist, geo.DegreeDistance(lats[i], lngs[i], centerLat, centerLng))
	}
	radius := max(int(maxDist*geo.MetersPerDegree), MinRadiusMeters)

	factors := models.RiskFactors{
		HighRainfall:     rainfallMM > HighRainfallMM,
		VeryHighRainfall: rainfallMM > VeryHighRainfallMM,
		ClusterSize:      len(members),
		MaxRiskScore:     maxRisk,
		AvgRiskScore:     avgRisk,
	}
	if a.Locator != nil {
		if lg, ok := Dispatch(a.Locator, centerLat, centerLng); ok {
			factors.Logistics = &lg
		}
	}

	return models.Hotspot{
		Lat:                 centerLat,
		Lng:                 centerLng,
		Name:                LocationName(centerLat, centerLng, a.Locations),
		Severity:            SeverityFor(maxRisk),
		ConfidenceScore:     avgRisk,
		PredictedRainfallMM: rainfallMM,
		RiskFactors:         factors,
		RadiusMeters:        radius,
	}
}
