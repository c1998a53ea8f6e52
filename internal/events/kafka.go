package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

// DefaultTopic is the topic completed runs are written to.
const DefaultTopic = "climate-risk-runs"

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// kafkaPublisher produces one message per completed run.
type kafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaPublisher creates a producer for topic on brokers. The connection is
// established lazily on the first Publish.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &kafkaPublisher{writer: w, logger: logger}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev pipeline.RunEvent) error {
	msg, err := serializeToMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write run %s: %w", ev.RunID, err)
	}
	p.logger.Debug("events: run published", "run_id", ev.RunID, "mode", ev.Mode)
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a RunEvent into a Kafka message keyed by run id.
func serializeToMessage(ev pipeline.RunEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("events: serialize run %s: %w", ev.RunID, err)
	}
	return kafkago.Message{
		Key:   []byte(ev.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "mode", Value: []byte(ev.Mode)},
			{Key: "completed_at", Value: []byte(ev.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
