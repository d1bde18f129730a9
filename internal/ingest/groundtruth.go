package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/floodwatch/internal/models"
)

const dateLayout = "2006-01-02"

// Default station used for single-series ground truth files.
const (
	GroundTruthStation = "IMD Safdarjung"
	DelhiLat           = 28.6139
	DelhiLng           = 77.2090
)

// GroundTruth serves verified daily rainfall from a CSV with date and
// rainfall_mm columns. The location is a local path or an ftp:// URL; the
// file is read once on first use and cached.
type GroundTruth struct {
	location string

	mu     sync.Mutex
	byDate map[string]float64
}

func NewGroundTruth(location string) *GroundTruth {
	return &GroundTruth{location: location}
}

// Lookup returns the recorded rainfall for date. A failed load is retried on
// the next call.
func (g *GroundTruth) Lookup(ctx context.Context, date time.Time) (float64, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.byDate == nil {
		body, err := ReadLocation(ctx, g.location)
		if err != nil {
			return 0, false, err
		}
		recs, err := ParseRainfallCSV(bytes.NewReader(body))
		if err != nil {
			return 0, false, fmt.Errorf("parse %s: %w", g.location, err)
		}
		g.byDate = make(map[string]float64, len(recs))
		for _, r := range recs {
			day := r.Date.Format(dateLayout)
			// First row for a date wins.
			if _, ok := g.byDate[day]; !ok {
				g.byDate[day] = r.Rainfall24h
			}
		}
	}

	v, ok := g.byDate[date.Format(dateLayout)]
	return v, ok, nil
}

// ReadLocation reads a local file or an ftp:// URL.
func ReadLocation(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "ftp://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse ftp url: %w", err)
		}
		return fetchFTP(ctx, u)
	}
	return os.ReadFile(location)
}

func fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ParseRainfallCSV reads either a single-series file (date, rainfall_mm) or
// a station file (date, station_name, lat, lng, rainfall_24h and optional
// temperature_c, humidity_percent). Single-series rows are attributed to
// GroundTruthStation.
func ParseRainfallCSV(r io.Reader) ([]models.RainfallRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

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
	if _, ok := cols["date"]; !ok {
		if _, ok := cols["record_date"]; !ok {
			return nil, errors.New("missing date column")
		}
		cols["date"] = cols["record_date"]
	}
	rainCol := "rainfall_24h"
	if _, ok := cols[rainCol]; !ok {
		rainCol = "rainfall_mm"
		if _, ok := cols[rainCol]; !ok {
			return nil, errors.New("missing rainfall_24h or rainfall_mm column")
		}
	}

	get := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []models.RainfallRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := time.Parse(dateLayout, get(rec, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: parse date: %w", line, err)
		}
		rain, err := strconv.ParseFloat(get(rec, rainCol), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse rainfall: %w", line, err)
		}
		if rain < 0 {
			return nil, fmt.Errorf("line %d: negative rainfall %v", line, rain)
		}

		r := models.RainfallRecord{
			Date:        date,
			StationName: get(rec, "station_name"),
			Lat:         DelhiLat,
			Lng:         DelhiLng,
			Rainfall24h: rain,
		}
		if r.StationName == "" {
			r.StationName = GroundTruthStation
		}
		if v, err := strconv.ParseFloat(get(rec, "lat"), 64); err == nil {
			r.Lat = v
		}
		if v, err := strconv.ParseFloat(get(rec, "lng"), 64); err == nil {
			r.Lng = v
		}
		if v, err := strconv.ParseFloat(get(rec, "temperature_c"), 64); err == nil {
			r.TemperatureC = &v
		}
		if v, err := strconv.Atoi(get(rec, "humidity_percent")); err == nil {
			r.HumidityPercent = &v
		}
		out = append(out, r)
	}
	return out, nil
}
