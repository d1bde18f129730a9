package ingest

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/lox/floodwatch/internal/models"
)

// MonthlyNormalsMM are Delhi's long-term mean monthly rainfall totals.
var MonthlyNormalsMM = [13]float64{
	0, // unused
	19, 20, 15, 10, 30, 70, 210, 230, 120, 25, 5, 8,
}

// MonsoonTraceMM is assumed in peak monsoon when nothing better is known, so
// low-capacity drains still get scanned.
const MonsoonTraceMM = 5.0

func isPeakMonsoon(m time.Month) bool { return m == time.July || m == time.August }

func daysIn(date time.Time) int {
	return time.Date(date.Year(), date.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Climatology is the last-resort estimate: the monthly normal spread evenly
// over the month, or a monsoon trace amount in July and August.
func Climatology(date time.Time) models.RainfallObservation {
	rain := MonsoonTraceMM
	if !isPeakMonsoon(date.Month()) {
		rain = MonthlyNormalsMM[date.Month()] / float64(daysIn(date))
	}
	return models.RainfallObservation{
		RainfallMM:   rain,
		TemperatureC: 30,
		HumidityPct:  70,
		Source:       SourceClimatology,
	}
}

// RainProbability is the chance a given day in the month sees rain.
func RainProbability(m time.Month) float64 {
	p := math.Min(0.7, MonthlyNormalsMM[m]/150)
	switch m {
	case time.July, time.August:
		p = 0.92
	case time.June, time.September:
		p = math.Max(p, 0.5)
	}
	return p
}

// Generate draws a plausible day of weather for dates beyond any forecast
// horizon. The draw is seeded from the date, so a date always yields the
// same observation.
func Generate(date time.Time) models.RainfallObservation {
	y, m, d := date.Date()
	r := rand.New(rand.NewPCG(uint64(y*10000+int(m)*100+d), 0))

	var rain float64
	if r.Float64() < RainProbability(m) {
		scale := 20.0
		if isPeakMonsoon(m) {
			scale = 35.0
		}
		rain = math.Round(r.ExpFloat64()*scale*10) / 10
	}

	obs := models.RainfallObservation{
		RainfallMM:   rain,
		TemperatureC: 25,
		HumidityPct:  40,
		Source:       SourceGenerator,
	}
	if m >= time.May && m <= time.July {
		obs.TemperatureC = 35
	}
	if rain > 0 {
		obs.HumidityPct = 70
	}
	return obs
}
