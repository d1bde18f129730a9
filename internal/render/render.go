// Package render draws a PNG overview of a date's hotspots over the Delhi
// bounding box.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/models"
)

const (
	DefaultWidth = 960
	headerHeight = 40
	maxLabels    = 10
	minDiscPx    = 3
)

var (
	background = color.RGBA{18, 24, 38, 255}
	gridLine   = color.RGBA{44, 54, 74, 255}
	textColor  = color.RGBA{230, 232, 236, 255}
	mutedText  = color.RGBA{150, 158, 170, 255}
	zoneMarker = color.RGBA{120, 180, 255, 255}
)

// SeverityColor is the disc colour for a severity.
func SeverityColor(s models.Severity) color.RGBA {
	switch s {
	case models.SeverityCritical:
		return color.RGBA{220, 38, 38, 255}
	case models.SeverityHigh:
		return color.RGBA{249, 115, 22, 255}
	case models.SeverityMedium:
		return color.RGBA{234, 179, 8, 255}
	default:
		return color.RGBA{34, 197, 94, 255}
	}
}

type MapData struct {
	Date       string
	RainfallMM float64
	Hotspots   []models.Hotspot
}

type Options struct {
	Bounds orb.Bound // zero means geo.DelhiBounds
	Width  int
	Zones  []orb.Point // reference markers, drawn as crosses
}

// projection maps lng/lat to pixels with an equirectangular projection
// corrected for latitude.
type projection struct {
	bounds          orb.Bound
	width, height   int
	pxPerDegLng     float64
	pxPerDegLat     float64
	metersPerPixelX float64
}

func newProjection(b orb.Bound, width int) projection {
	midLat := (b.Min.Lat() + b.Max.Lat()) / 2
	cos := math.Cos(midLat * math.Pi / 180)
	lngSpan := b.Max.Lon() - b.Min.Lon()
	latSpan := b.Max.Lat() - b.Min.Lat()

	pxPerDegLng := float64(width) / lngSpan
	pxPerDegLat := pxPerDegLng / cos
	return projection{
		bounds:          b,
		width:           width,
		height:          int(math.Round(latSpan * pxPerDegLat)),
		pxPerDegLng:     pxPerDegLng,
		pxPerDegLat:     pxPerDegLat,
		metersPerPixelX: geo.MetersPerDegree * cos / pxPerDegLng,
	}
}

func (p projection) point(lat, lng float64) (int, int) {
	x := (lng - p.bounds.Min.Lon()) * p.pxPerDegLng
	y := (p.bounds.Max.Lat() - lat) * p.pxPerDegLat
	return int(math.Round(x)), headerHeight + int(math.Round(y))
}

func (p projection) radiusPx(meters int) int {
	return max(minDiscPx, int(math.Round(float64(meters)/p.metersPerPixelX)))
}

// Map renders the hotspots as severity-coloured discs sized by radius,
// lowest confidence first so the strongest hotspots end up on top. The ten
// most confident are labelled.
func Map(data MapData, opts Options) ([]byte, error) {
	bounds := opts.Bounds
	if bounds.IsZero() {
		bounds = geo.DelhiBounds
	}
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	if bounds.Max.Lon() <= bounds.Min.Lon() || bounds.Max.Lat() <= bounds.Min.Lat() {
		return nil, fmt.Errorf("render: %w", geo.ErrInvalidBounds)
	}

	proj := newProjection(bounds, width)
	img := image.NewRGBA(image.Rect(0, 0, proj.width, headerHeight+proj.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	drawGraticule(img, proj)
	for _, z := range opts.Zones {
		x, y := proj.point(z.Lat(), z.Lon())
		drawCross(img, x, y, 5, zoneMarker)
	}

	for i := len(data.Hotspots) - 1; i >= 0; i-- {
		h := data.Hotspots[i]
		x, y := proj.point(h.Lat, h.Lng)
		c := SeverityColor(h.Severity)
		fillDisc(img, x, y, proj.radiusPx(h.RadiusMeters), color.RGBA{c.R, c.G, c.B, 150})
		fillDisc(img, x, y, 2, c)
	}

	for i, h := range data.Hotspots {
		if i == maxLabels {
			break
		}
		x, y := proj.point(h.Lat, h.Lng)
		drawText(img, fmt.Sprintf("%d %s", i+1, h.Name), x+6, y-4, textColor)
	}

	drawHeader(img, data)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return buf.Bytes(), nil
}

func drawHeader(img *image.RGBA, data MapData) {
	hdr := image.Rect(0, 0, img.Bounds().Dx(), headerHeight)
	draw.Draw(img, hdr, image.NewUniform(color.RGBA{10, 14, 24, 255}), image.Point{}, draw.Src)

	title := "Waterlogging hotspots"
	if data.Date != "" {
		title += " - " + data.Date
	}
	drawText(img, title, 12, 17, textColor)

	counts := make(map[models.Severity]int)
	for _, h := range data.Hotspots {
		counts[h.Severity]++
	}
	summary := fmt.Sprintf("%d hotspots (%d critical, %d high)  rainfall %.1f mm",
		len(data.Hotspots), counts[models.SeverityCritical], counts[models.SeverityHigh], data.RainfallMM)
	drawText(img, summary, 12, 33, mutedText)
}

func drawGraticule(img *image.RGBA, p projection) {
	const step = 0.1
	for lng := math.Ceil(p.bounds.Min.Lon()/step) * step; lng <= p.bounds.Max.Lon(); lng += step {
		x, _ := p.point(p.bounds.Min.Lat(), lng)
		for y := headerHeight; y < img.Bounds().Max.Y; y++ {
			img.SetRGBA(x, y, gridLine)
		}
	}
	for lat := math.Ceil(p.bounds.Min.Lat()/step) * step; lat <= p.bounds.Max.Lat(); lat += step {
		_, y := p.point(lat, p.bounds.Min.Lon())
		for x := 0; x < img.Bounds().Max.X; x++ {
			img.SetRGBA(x, y, gridLine)
		}
	}
}

// fillDisc alpha-blends a filled circle onto img.
func fillDisc(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	alpha := float64(c.A) / 255
	r2 := r * r
	b := img.Bounds()
	for y := max(cy-r, b.Min.Y+headerHeight); y <= min(cy+r, b.Max.Y-1); y++ {
		for x := max(cx-r, b.Min.X); x <= min(cx+r, b.Max.X-1); x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy > r2 {
				continue
			}
			orig := img.RGBAAt(x, y)
			orig.R = uint8(float64(orig.R)*(1-alpha) + float64(c.R)*alpha)
			orig.G = uint8(float64(orig.G)*(1-alpha) + float64(c.G)*alpha)
			orig.B = uint8(float64(orig.B)*(1-alpha) + float64(c.B)*alpha)
			orig.A = 255
			img.SetRGBA(x, y, orig)
		}
	}
}

func drawCross(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	for d := -size; d <= size; d++ {
		img.SetRGBA(cx+d, cy, c)
		img.SetRGBA(cx, cy+d, c)
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
