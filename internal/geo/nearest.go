package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/lox/floodwatch/internal/models"
)

// DefaultDrainageCapacityMM is used when no known location is available.
const DefaultDrainageCapacityMM = 50.0

// DegreeDistance is the planar Euclidean distance in degrees.
func DegreeDistance(lat1, lng1, lat2, lng2 float64) float64 {
	return planar.Distance(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
}

// LocationTable is an immutable known-location reference table. A single
// instance is shared by the drainage adjuster and the hotspot namer.
type LocationTable struct {
	locations []models.KnownLocation
}

func NewLocationTable(locs []models.KnownLocation) *LocationTable {
	cp := make([]models.KnownLocation, len(locs))
	copy(cp, locs)
	return &LocationTable{locations: cp}
}

func (t *LocationTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.locations)
}

// Nearest returns the closest location by degree distance. Ties resolve to
// the earliest entry in table order. ok is false for an empty table.
func (t *LocationTable) Nearest(lat, lng float64) (loc models.KnownLocation, dist float64, ok bool) {
	if t.Len() == 0 {
		return models.KnownLocation{}, math.Inf(1), false
	}
	best := -1
	dist = math.Inf(1)
	for i, l := range t.locations {
		d := DegreeDistance(lat, lng, l.Lat, l.Lng)
		if d < dist {
			dist = d
			best = i
		}
	}
	return t.locations[best], dist, true
}

// DrainageCapacity returns the nearest location's capacity, or
// DefaultDrainageCapacityMM when the table is empty.
func (t *LocationTable) DrainageCapacity(lat, lng float64) float64 {
	loc, _, ok := t.Nearest(lat, lng)
	if !ok {
		return DefaultDrainageCapacityMM
	}
	return loc.DrainageCapacityMM
}

// MinDistance returns the smallest degree distance from (lat,lng) to any of
// pts, or +Inf when pts is empty.
func MinDistance(lat, lng float64, pts []orb.Point) float64 {
	min := math.Inf(1)
	for _, p := range pts {
		if d := DegreeDistance(lat, lng, p.Lat(), p.Lon()); d < min {
			min = d
		}
	}
	return min
}
