package geo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/floodwatch/internal/models"
)

func TestNewGridDelhi(t *testing.T) {
	g, err := NewGrid(DelhiBounds, DefaultCellSize)
	require.NoError(t, err)

	assert.Equal(t, 250, g.Rows)
	assert.Equal(t, 300, g.Cols)
	assert.Equal(t, 75000, g.Len())

	lat, lng := g.At(0)
	assert.InDelta(t, 28.4, lat, 1e-9)
	assert.InDelta(t, 76.8, lng, 1e-9)

	// Latitude-major: the second point steps longitude.
	lat, lng = g.At(1)
	assert.InDelta(t, 28.4, lat, 1e-9)
	assert.InDelta(t, 76.802, lng, 1e-9)

	lat, lng = g.At(g.Len() - 1)
	assert.Less(t, lat, 28.9)
	assert.Less(t, lng, 77.4)
}

func TestNewGridInvalid(t *testing.T) {
	tests := []struct {
		name   string
		bounds orb.Bound
		step   float64
	}{
		{"zero step", DelhiBounds, 0},
		{"negative step", DelhiBounds, -0.1},
		{"inverted lat", orb.Bound{Min: orb.Point{76.8, 28.9}, Max: orb.Point{77.4, 28.4}}, 0.01},
		{"empty lng", orb.Bound{Min: orb.Point{77, 28.4}, Max: orb.Point{77, 28.9}}, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrid(tt.bounds, tt.step)
			assert.True(t, errors.Is(err, ErrInvalidBounds), "got %v", err)
		})
	}
}

func TestSmallGridLatitudeMajor(t *testing.T) {
	g, err := NewGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0.3, 0.2}}, 0.1)
	require.NoError(t, err)
	require.Equal(t, 6, g.Len())

	lat, lng := g.At(2)
	assert.InDelta(t, 0.0, lat, 1e-12)
	assert.InDelta(t, 0.2, lng, 1e-12)
	lat, lng = g.At(3)
	assert.InDelta(t, 0.1, lat, 1e-12)
	assert.InDelta(t, 0.0, lng, 1e-12)
}

func TestNearest(t *testing.T) {
	table := DelhiLocations()

	loc, dist, ok := table.Nearest(28.6331, 77.2286)
	require.True(t, ok)
	assert.Equal(t, "Minto Bridge", loc.Name)
	assert.Less(t, dist, 0.001)
	assert.Equal(t, 25.0, table.DrainageCapacity(28.6331, 77.2286))
}

func TestNearestTieGoesToFirst(t *testing.T) {
	table := NewLocationTable([]models.KnownLocation{
		{Lat: 0, Lng: -1, Name: "west", DrainageCapacityMM: 10},
		{Lat: 0, Lng: 1, Name: "east", DrainageCapacityMM: 20},
	})
	loc, _, ok := table.Nearest(0, 0)
	require.True(t, ok)
	assert.Equal(t, "west", loc.Name)
}

func TestEmptyTable(t *testing.T) {
	table := NewLocationTable(nil)
	_, _, ok := table.Nearest(28.6, 77.2)
	assert.False(t, ok)
	assert.Equal(t, DefaultDrainageCapacityMM, table.DrainageCapacity(28.6, 77.2))

	var nilTable *LocationTable
	assert.Equal(t, 0, nilTable.Len())
}

func TestLoadVerifiedHotspots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spots.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,lat,lng,category\nMinto Bridge,28.633,77.2285,underpass\nITO, 28.6304 ,77.2425,\n"), 0o644))

	spots, err := LoadVerifiedHotspots(path)
	require.NoError(t, err)
	require.Len(t, spots, 2)
	assert.Equal(t, "underpass", spots[0].Category)
	assert.InDelta(t, 28.6304, spots[1].Lat, 1e-9)
}

func TestLoadVerifiedHotspotsMissing(t *testing.T) {
	_, err := LoadVerifiedHotspots(filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadResourcesMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumps.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,lat,lng\nA,1,2\n"), 0o644))

	_, err := LoadResources(path)
	assert.ErrorContains(t, err, `missing column "id"`)
}

func TestLoadResources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumps.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name,lat,lng\nP1,Minto Pump House,28.634,77.229\nP2,,28.5,77.1\n"), 0o644))

	res, err := LoadResources(path)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Minto Pump House", res[0].Name)
	assert.Equal(t, "P2", res[1].Name)
}
