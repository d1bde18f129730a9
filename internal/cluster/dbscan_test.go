package cluster

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blob returns a 3x3 lattice with 0.002 spacing around (lat, lng).
func blob(lat, lng, risk float64) []Point {
	var pts []Point
	for i := -1; i <= 1; i++ {
		for j := -1; j <= 1; j++ {
			pts = append(pts, Point{Lat: lat + float64(i)*0.002, Lng: lng + float64(j)*0.002, Risk: risk})
		}
	}
	return pts
}

func TestDBSCANTwoClustersAndNoise(t *testing.T) {
	pts := append(blob(28.63, 77.22, 0.9), blob(28.50, 77.10, 0.5)...)
	pts = append(pts, Point{Lat: 28.80, Lng: 77.35, Risk: 0.99})

	labels := DBSCAN(pts, DefaultEps, DefaultMinSamples)
	require.Len(t, labels, len(pts))

	groups := Groups(labels)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 9)
	assert.Len(t, groups[1], 9)
	assert.Equal(t, Noise, labels[len(pts)-1])

	// Canonical order visits the southern blob first.
	assert.Equal(t, 0, labels[9])
	assert.Equal(t, 1, labels[0])
}

func TestDBSCANMinSamplesCountsSelf(t *testing.T) {
	// Five points within eps of the centre: centre has exactly 5 neighbours
	// including itself.
	pts := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 0.003, Lng: 0},
		{Lat: -0.003, Lng: 0},
		{Lat: 0, Lng: 0.003},
		{Lat: 0, Lng: -0.003},
	}
	labels := DBSCAN(pts, DefaultEps, DefaultMinSamples)
	for i, l := range labels {
		assert.Equal(t, 0, l, "point %d", i)
	}

	labels = DBSCAN(pts[:4], DefaultEps, DefaultMinSamples)
	for i, l := range labels {
		assert.Equal(t, Noise, l, "point %d", i)
	}
}

func TestDBSCANEpsInclusive(t *testing.T) {
	pts := []Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.004}}
	labels := DBSCAN(pts, 0.004, 2)
	assert.Equal(t, []int{0, 0}, labels)

	pts[1].Lng = 0.0041
	labels = DBSCAN(pts, 0.004, 2)
	assert.Equal(t, []int{Noise, Noise}, labels)
}

func TestDBSCANEmpty(t *testing.T) {
	assert.Empty(t, DBSCAN(nil, DefaultEps, DefaultMinSamples))
	assert.Empty(t, Groups(nil))
}

func TestDBSCANPermutationInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	var pts []Point
	for range 400 {
		pts = append(pts, Point{
			Lat:  28.6 + r.Float64()*0.05,
			Lng:  77.2 + r.Float64()*0.05,
			Risk: r.Float64(),
		})
	}

	base := membership(pts, DBSCAN(pts, DefaultEps, DefaultMinSamples))

	for trial := range 5 {
		perm := r.Perm(len(pts))
		shuffled := make([]Point, len(pts))
		for i, p := range perm {
			shuffled[i] = pts[p]
		}
		got := membership(shuffled, DBSCAN(shuffled, DefaultEps, DefaultMinSamples))
		assert.Equal(t, base, got, "trial %d", trial)
	}
}

// membership maps each point to the label of its cluster; labels are
// canonical so they compare directly across permutations.
func membership(pts []Point, labels []int) map[Point]int {
	m := make(map[Point]int, len(pts))
	for i, p := range pts {
		m[p] = labels[i]
	}
	return m
}
