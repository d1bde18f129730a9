package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/lox/floodwatch/internal/models"
)

// messageWriter is the part of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Kafka publishes one message per hotspot, all keyed by the date so a
// batch lands on one partition in rank order. Consumers treat a batch as
// replacing the date: every message carries the run ID and batch size, and
// an empty batch is published as a single message with no value.
type Kafka struct {
	writer messageWriter
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Close() error {
	return k.writer.Close()
}

type hotspotMessage struct {
	PredictionDate string `json:"prediction_date"`
	Rank           int    `json:"rank"`
	RunID          string `json:"run_id"`
	ModelVersion   string `json:"model_version"`
	RainfallSource string `json:"rainfall_source"`
	models.Hotspot
}

func (k *Kafka) ReplaceHotspots(ctx context.Context, date time.Time, run models.Run, hotspots []models.Hotspot) error {
	msgs, err := hotspotMessages(date, run, hotspots)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: publish %d messages: %w", len(msgs), err)
	}
	return nil
}

func hotspotMessages(date time.Time, run models.Run, hotspots []models.Hotspot) ([]kafkago.Message, error) {
	day := date.Format(time.DateOnly)
	headers := []kafkago.Header{
		{Key: "prediction_date", Value: []byte(day)},
		{Key: "run_id", Value: []byte(run.ID)},
		{Key: "batch_size", Value: []byte(strconv.Itoa(len(hotspots)))},
	}

	if len(hotspots) == 0 {
		return []kafkago.Message{{Key: []byte(day), Headers: headers}}, nil
	}

	msgs := make([]kafkago.Message, len(hotspots))
	for i, h := range hotspots {
		data, err := json.Marshal(hotspotMessage{
			PredictionDate: day,
			Rank:           i + 1,
			RunID:          run.ID,
			ModelVersion:   run.ModelVersion,
			RainfallSource: run.RainfallSource,
			Hotspot:        h,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka: serialize hotspot %d: %w", i+1, err)
		}
		msgs[i] = kafkago.Message{
			Key:     []byte(day),
			Value:   data,
			Headers: headers,
		}
	}
	return msgs, nil
}
