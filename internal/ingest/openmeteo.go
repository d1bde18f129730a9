package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/lox/floodwatch/internal/httputil"
	"github.com/lox/floodwatch/internal/metrics"
	"github.com/lox/floodwatch/internal/models"
)

const (
	DefaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	// ForecastHorizonDays is how many days (today included) the forecast
	// endpoint returns.
	ForecastHorizonDays = 16

	dailyVars = "precipitation_sum,temperature_2m_max,relative_humidity_2m_max"
)

var ErrOutOfRange = errors.New("date outside forecast horizon")

// PayloadRecorder keeps raw upstream responses for auditing.
type PayloadRecorder interface {
	StoreRawPayload(source, endpoint string, targetDate time.Time, payload []byte) (int64, error)
}

type OpenMeteo struct {
	client      *http.Client
	archiveURL  string
	forecastURL string
	lat, lng    float64
	loc         *time.Location
	clock       clockwork.Clock
	recorder    PayloadRecorder
	maxElapsed  time.Duration
}

type OpenMeteoOption func(*OpenMeteo)

func WithEndpoints(archiveURL, forecastURL string) OpenMeteoOption {
	return func(o *OpenMeteo) { o.archiveURL, o.forecastURL = archiveURL, forecastURL }
}

func WithClock(c clockwork.Clock) OpenMeteoOption {
	return func(o *OpenMeteo) { o.clock = c }
}

func WithRecorder(r PayloadRecorder) OpenMeteoOption {
	return func(o *OpenMeteo) { o.recorder = r }
}

func WithHTTPClient(c *http.Client) OpenMeteoOption {
	return func(o *OpenMeteo) { o.client = c }
}

// WithMaxElapsed bounds the total retry time for one fetch.
func WithMaxElapsed(d time.Duration) OpenMeteoOption {
	return func(o *OpenMeteo) { o.maxElapsed = d }
}

// NewOpenMeteo returns a client for the city centre. "Today" is evaluated in
// loc.
func NewOpenMeteo(loc *time.Location, opts ...OpenMeteoOption) *OpenMeteo {
	o := &OpenMeteo{
		client:      httputil.NewClientWithTimeout(10 * time.Second),
		archiveURL:  DefaultArchiveURL,
		forecastURL: DefaultForecastURL,
		lat:         DelhiLat,
		lng:         DelhiLng,
		loc:         loc,
		clock:       clockwork.NewRealClock(),
		maxElapsed:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type dailyResponse struct {
	Daily *struct {
		Time             []string   `json:"time"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		TemperatureMax   []*float64 `json:"temperature_2m_max"`
		HumidityMax      []*float64 `json:"relative_humidity_2m_max"`
	} `json:"daily"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Today is the current civil date in the client's location, at UTC midnight.
func (o *OpenMeteo) Today() time.Time {
	return civilDate(o.clock.Now().In(o.loc))
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Fetch returns the daily observation for date: the archive for today and
// earlier, the forecast within the horizon. Further dates are ErrOutOfRange.
func (o *OpenMeteo) Fetch(ctx context.Context, date time.Time) (*models.RainfallObservation, error) {
	date = civilDate(date)
	today := o.Today()
	day := date.Format(dateLayout)

	var endpoint, base string
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(o.lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(o.lng, 'f', 4, 64))
	params.Set("daily", dailyVars)
	params.Set("timezone", o.loc.String())

	offset := int(date.Sub(today).Hours() / 24)
	switch {
	case offset <= 0:
		endpoint, base = "archive", o.archiveURL
		params.Set("start_date", day)
		params.Set("end_date", day)
	case offset < ForecastHorizonDays:
		endpoint, base = "forecast", o.forecastURL
		params.Set("forecast_days", strconv.Itoa(ForecastHorizonDays))
	default:
		return nil, fmt.Errorf("%w: %s is %d days ahead", ErrOutOfRange, day, offset)
	}

	body, err := o.get(ctx, endpoint, base+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if o.recorder != nil {
		// Auditing is best effort.
		_, _ = o.recorder.StoreRawPayload("open_meteo", endpoint, date, body)
	}

	var data dailyResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if data.Error {
		return nil, fmt.Errorf("open-meteo %s: %s", endpoint, data.Reason)
	}
	if data.Daily == nil {
		return nil, fmt.Errorf("open-meteo %s: no daily block", endpoint)
	}

	idx := -1
	for i, t := range data.Daily.Time {
		if t == day {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = max(offset, 0)
	}
	if idx >= len(data.Daily.PrecipitationSum) {
		return nil, fmt.Errorf("open-meteo %s: no value for %s", endpoint, day)
	}

	obs := &models.RainfallObservation{
		RainfallMM:   valueOr(data.Daily.PrecipitationSum, idx, 0),
		TemperatureC: valueOr(data.Daily.TemperatureMax, idx, 30),
		HumidityPct:  int(valueOr(data.Daily.HumidityMax, idx, 70)),
		Source:       SourceOpenMeteo,
	}
	return obs, nil
}

func valueOr(vals []*float64, i int, def float64) float64 {
	if i < len(vals) && vals[i] != nil {
		return *vals[i]
	}
	return def
}

func (o *OpenMeteo) get(ctx context.Context, endpoint, u string) ([]byte, error) {
	var body []byte
	operation := func() error {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := o.client.Do(req)
		metrics.OpenMeteoLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.OpenMeteoCallsTotal.WithLabelValues(endpoint, "error").Inc()
			return fmt.Errorf("fetch %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		metrics.OpenMeteoCallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch %s: status %d", endpoint, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = o.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
