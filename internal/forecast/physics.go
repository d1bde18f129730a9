package forecast

import (
	"github.com/paulmach/orb"

	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/riskmodel"
)

const (
	// DrainedRiskFactor scales risk where the local network can carry the
	// day's rain.
	DrainedRiskFactor = 0.2

	VulnerabilityRadiusDeg = 0.0045 // ~500 m
	VulnerabilityFactor    = 2.5
)

// DrainageMultiplier is 0.2 when rainfall stays below the nearest network's
// capacity and 1 otherwise.
func DrainageMultiplier(rainMM, capacityMM float64) float64 {
	if rainMM < capacityMM {
		return DrainedRiskFactor
	}
	return 1
}

// AdjustForDrainage scales risk by the drainage multiplier of the nearest
// known location.
func AdjustForDrainage(risk, lat, lng, rainMM float64, table *geo.LocationTable) float64 {
	return riskmodel.Clamp(risk * DrainageMultiplier(rainMM, table.DrainageCapacity(lat, lng)))
}

// Amplifier boosts risk next to historically verified waterlogging spots.
type Amplifier struct {
	spots []orb.Point
}

func NewAmplifier(verified []models.VerifiedHotspot) *Amplifier {
	spots := make([]orb.Point, len(verified))
	for i, v := range verified {
		spots[i] = orb.Point{v.Lng, v.Lat}
	}
	return &Amplifier{spots: spots}
}

func (a *Amplifier) Apply(risk, lat, lng float64) float64 {
	if a == nil || len(a.spots) == 0 {
		return risk
	}
	if geo.MinDistance(lat, lng, a.spots) < VulnerabilityRadiusDeg {
		return riskmodel.Clamp(risk * VulnerabilityFactor)
	}
	return risk
}
