// Package geo holds the planar-degree geometry used by the hotspot pipeline:
// the prediction lattice, degree distances, and nearest-point lookups over the
// city reference tables.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// KMPerDegree and MetersPerDegree convert planar degree distances. The
// approximation ignores longitude convergence; it is what the risk model was
// trained with.
const (
	KMPerDegree     = 111.0
	MetersPerDegree = 111000.0

	DefaultCellSize = 0.002 // ~220 m
)

var ErrInvalidBounds = errors.New("invalid bounding box")

// DelhiBounds covers the Delhi NCR prediction area.
var DelhiBounds = orb.Bound{
	Min: orb.Point{76.8, 28.4},
	Max: orb.Point{77.4, 28.9},
}

// Grid is a fixed-resolution lattice over a bounding box. Points are
// generated latitude-major: all longitudes for the first latitude, then the
// next latitude.
type Grid struct {
	Bounds   orb.Bound
	CellSize float64
	Rows     int // latitude steps
	Cols     int // longitude steps
}

func NewGrid(bounds orb.Bound, cellSize float64) (Grid, error) {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		return Grid{}, fmt.Errorf("%w: cell size %v", ErrInvalidBounds, cellSize)
	}
	if bounds.Min.Lat() >= bounds.Max.Lat() {
		return Grid{}, fmt.Errorf("%w: lat min %v >= max %v", ErrInvalidBounds, bounds.Min.Lat(), bounds.Max.Lat())
	}
	if bounds.Min.Lon() >= bounds.Max.Lon() {
		return Grid{}, fmt.Errorf("%w: lng min %v >= max %v", ErrInvalidBounds, bounds.Min.Lon(), bounds.Max.Lon())
	}

	return Grid{
		Bounds:   bounds,
		CellSize: cellSize,
		Rows:     steps(bounds.Min.Lat(), bounds.Max.Lat(), cellSize),
		Cols:     steps(bounds.Min.Lon(), bounds.Max.Lon(), cellSize),
	}, nil
}

// steps counts min, min+step, ... strictly below max. The epsilon absorbs
// float noise so that 0.6/0.002 yields 300 rather than 301.
func steps(min, max, step float64) int {
	return int(math.Ceil((max-min)/step - 1e-9))
}

func (g Grid) Len() int {
	return g.Rows * g.Cols
}

// At returns the i-th lattice point in latitude-major order.
func (g Grid) At(i int) (lat, lng float64) {
	r, c := i/g.Cols, i%g.Cols
	return g.Bounds.Min.Lat() + float64(r)*g.CellSize, g.Bounds.Min.Lon() + float64(c)*g.CellSize
}
