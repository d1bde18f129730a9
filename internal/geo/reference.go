package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lox/floodwatch/internal/models"
)

// Resource is a deployable asset, such as a dewatering pump station.
type Resource struct {
	ID   string
	Name string
	Lat  float64
	Lng  float64
}

// LoadVerifiedHotspots reads a CSV with at least lat and lng columns and
// optional name and category columns. A missing file yields os.ErrNotExist.
func LoadVerifiedHotspots(path string) ([]models.VerifiedHotspot, error) {
	rows, err := readCSV(path, "lat", "lng")
	if err != nil {
		return nil, err
	}
	out := make([]models.VerifiedHotspot, 0, len(rows))
	for i, r := range rows {
		lat, lng, err := r.coords()
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		out = append(out, models.VerifiedHotspot{
			Lat:      lat,
			Lng:      lng,
			Name:     r.get("name"),
			Category: r.get("category"),
		})
	}
	return out, nil
}

// LoadResources reads a CSV with id, name, lat and lng columns.
func LoadResources(path string) ([]Resource, error) {
	rows, err := readCSV(path, "id", "lat", "lng")
	if err != nil {
		return nil, err
	}
	out := make([]Resource, 0, len(rows))
	for i, r := range rows {
		lat, lng, err := r.coords()
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		name := r.get("name")
		if name == "" {
			name = r.get("id")
		}
		out = append(out, Resource{ID: r.get("id"), Name: name, Lat: lat, Lng: lng})
	}
	return out, nil
}

type csvRow struct {
	cols   map[string]int
	record []string
}

func (r csvRow) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

func (r csvRow) coords() (float64, float64, error) {
	lat, err := strconv.ParseFloat(r.get("lat"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse lat: %w", err)
	}
	lng, err := strconv.ParseFloat(r.get("lng"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse lng: %w", err)
	}
	return lat, lng, nil
}

func readCSV(path string, required ...string) ([]csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, c)
		}
	}

	var rows []csvRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, csvRow{cols: cols, record: rec})
	}
	return rows, nil
}
