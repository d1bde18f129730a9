package forecast

import (
	"math"

	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/models"
)

const (
	ResponseSpeedKMH     = 20.0
	ResponseOverheadMins = 10.0
)

// ResourceLocator finds the nearest deployable resource to a point.
type ResourceLocator interface {
	Nearest(lat, lng float64) (res geo.Resource, distKM float64, ok bool)
}

// PumpLocator is a ResourceLocator over a fixed list of pump stations.
type PumpLocator struct {
	pumps []geo.Resource
}

func NewPumpLocator(pumps []geo.Resource) *PumpLocator {
	return &PumpLocator{pumps: pumps}
}

func (l *PumpLocator) Nearest(lat, lng float64) (geo.Resource, float64, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range l.pumps {
		if d := geo.DegreeDistance(lat, lng, p.Lat, p.Lng); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return geo.Resource{}, 0, false
	}
	return l.pumps[best], bestDist * geo.KMPerDegree, true
}

// ResponseTimeMins estimates travel at ResponseSpeedKMH plus a fixed
// mobilisation overhead.
func ResponseTimeMins(distKM float64) int {
	return int(distKM/ResponseSpeedKMH*60 + ResponseOverheadMins)
}

// Dispatch builds the logistics block for a hotspot centre.
func Dispatch(loc ResourceLocator, lat, lng float64) (models.Logistics, bool) {
	res, distKM, ok := loc.Nearest(lat, lng)
	if !ok {
		return models.Logistics{}, false
	}
	return models.Logistics{
		ResourceID:       res.ID,
		ResourceName:     res.Name,
		ResponseTimeMins: ResponseTimeMins(distKM),
		DistanceKM:       math.Round(distKM*10) / 10,
	}, true
}
