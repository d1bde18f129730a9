package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/store"
)

var (
	_ HotspotSink = (*store.Store)(nil)
	_ HotspotSink = (*Postgres)(nil)
	_ HotspotSink = (*Kafka)(nil)
)

var (
	testDate = time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	testRun  = models.Run{
		ID:             "run-1",
		Date:           testDate,
		ModelVersion:   "waterlogging-ensemble-2.1.0",
		RainfallSource: "open_meteo",
	}
)

func testHotspots() []models.Hotspot {
	return []models.Hotspot{
		{
			Lat: 28.6358, Lng: 77.2245, Name: "Minto Bridge", Severity: models.SeverityCritical,
			ConfidenceScore: 0.91, PredictedRainfallMM: 120, RadiusMeters: 310,
			RiskFactors: models.RiskFactors{HighRainfall: true, VeryHighRainfall: true, ClusterSize: 14, MaxRiskScore: 0.91, AvgRiskScore: 0.8},
		},
		{
			Lat: 28.6280, Lng: 77.2410, Name: "ITO", Severity: models.SeverityHigh,
			ConfidenceScore: 0.78, PredictedRainfallMM: 120, RadiusMeters: 100,
			RiskFactors: models.RiskFactors{HighRainfall: true, VeryHighRainfall: true, ClusterSize: 6, MaxRiskScore: 0.78, AvgRiskScore: 0.7},
		},
	}
}

type fakeSink struct {
	name  string
	err   error
	calls int
	got   []models.Hotspot
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) ReplaceHotspots(_ context.Context, _ time.Time, _ models.Run, hotspots []models.Hotspot) error {
	f.calls++
	f.got = hotspots
	return f.err
}

func TestFanoutSwallowsFailures(t *testing.T) {
	good := &fakeSink{name: "sqlite"}
	bad := &fakeSink{name: "postgres", err: errors.New("connection refused")}
	last := &fakeSink{name: "kafka"}

	f := NewFanout(nil, good, bad)
	f.Add(last)
	assert.Equal(t, 3, f.Len())

	failed := f.ReplaceHotspots(context.Background(), testDate, testRun, testHotspots())
	assert.Equal(t, []string{"postgres"}, failed)
	for _, s := range []*fakeSink{good, bad, last} {
		assert.Equal(t, 1, s.calls, s.name)
		assert.Len(t, s.got, 2, s.name)
	}
}

func TestFanoutEmptyBatchStillWrites(t *testing.T) {
	s := &fakeSink{name: "sqlite"}
	failed := NewFanout(nil, s).ReplaceHotspots(context.Background(), testDate, testRun, nil)
	assert.Empty(t, failed)
	assert.Equal(t, 1, s.calls)
}

func TestHotspotRows(t *testing.T) {
	rows, err := hotspotRows(testDate, testRun, testHotspots())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, row := range rows {
		assert.Len(t, row, len(postgresColumns))
	}
	assert.Equal(t, testDate, rows[0][0])
	assert.Equal(t, 1, rows[0][1])
	assert.Equal(t, 2, rows[1][1])
	assert.Equal(t, "run-1", rows[0][2])
	assert.Equal(t, "Minto Bridge", rows[0][3])
	assert.Equal(t, "Critical", rows[0][6])
	assert.JSONEq(t,
		`{"high_rainfall":true,"very_high_rainfall":true,"cluster_size":14,"max_risk_score":0.91,"avg_risk_score":0.8}`,
		rows[0][9].(string))
	assert.Equal(t, "waterlogging-ensemble-2.1.0", rows[1][11])

	rows, err = hotspotRows(testDate, testRun, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafkago.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublishesOneMessagePerHotspot(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}

	require.NoError(t, k.ReplaceHotspots(context.Background(), testDate, testRun, testHotspots()))
	require.Len(t, w.msgs, 2)

	// One key per date keeps a batch on one partition, in rank order.
	assert.Equal(t, "2025-07-10", string(w.msgs[0].Key))
	assert.Equal(t, "2025-07-10", string(w.msgs[1].Key))
	assert.Equal(t, "2025-07-10", header(w.msgs[0], "prediction_date"))
	assert.Equal(t, "run-1", header(w.msgs[0], "run_id"))
	assert.Equal(t, "2", header(w.msgs[1], "batch_size"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &got))
	assert.Equal(t, "ITO", got["name"])
	assert.Equal(t, "High", got["severity"])
	assert.Equal(t, float64(2), got["rank"])
	assert.Equal(t, "open_meteo", got["rainfall_source"])

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaEmptyBatchClearsDate(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}

	require.NoError(t, k.ReplaceHotspots(context.Background(), testDate, testRun, nil))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "2025-07-10", string(w.msgs[0].Key))
	assert.Nil(t, w.msgs[0].Value)
	assert.Equal(t, "0", header(w.msgs[0], "batch_size"))
}

func TestKafkaWriteError(t *testing.T) {
	k := &Kafka{writer: &fakeWriter{err: errors.New("leader not available")}}
	err := k.ReplaceHotspots(context.Background(), testDate, testRun, testHotspots())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestStoreAsSink(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	s := store.New(db)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	f := NewFanout(nil, s)
	require.Empty(t, f.ReplaceHotspots(context.Background(), testDate, testRun, testHotspots()))

	got, err := s.GetHotspots(testDate)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Minto Bridge", got[0].Name)
}
