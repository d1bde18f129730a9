package forecast

import (
	"math/rand/v2"
	"time"

	"github.com/lox/floodwatch/internal/models"
)

const (
	RiskThreshold = 0.15
	JitterDeg     = 0.0005
)

// FilterRisk keeps points with risk strictly above the threshold, preserving
// order.
func FilterRisk(points []models.GridPoint, threshold float64) []models.GridPoint {
	out := make([]models.GridPoint, 0, len(points)/8)
	for _, p := range points {
		if p.Risk > threshold {
			out = append(out, p)
		}
	}
	return out
}

// DateSeed is the date as a YYYYMMDD integer.
func DateSeed(date time.Time) uint64 {
	y, m, d := date.Date()
	return uint64(y*10000 + int(m)*100 + d)
}

// NewDateRand returns the PRNG used for a date's jitter. The same date always
// yields the same sequence.
func NewDateRand(date time.Time) *rand.Rand {
	return rand.New(rand.NewPCG(DateSeed(date), 0))
}

// Jitter displaces every point by an independent uniform offset in
// [-JitterDeg, JitterDeg) on each axis. All latitude offsets are drawn
// before any longitude offset. Risk is untouched.
func Jitter(points []models.GridPoint, r *rand.Rand) {
	for i := range points {
		points[i].Lat += (r.Float64()*2 - 1) * JitterDeg
	}
	for i := range points {
		points[i].Lng += (r.Float64()*2 - 1) * JitterDeg
	}
}
