package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/adapter"
	"tw-license-service/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*KafkaPublisher)(nil)

const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes license events to a single topic keyed by license key,
// so every event of one license lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *zerolog.Logger
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string, logger *zerolog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic, logger), nil
}

func newKafkaPublisher(w messageWriter, topic string, logger *zerolog.Logger) *KafkaPublisher {
	l := logger.With().Str("component", "kafka_publisher").Str("topic", topic).Logger()
	return &KafkaPublisher{writer: w, topic: topic, log: &l, now: time.Now}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev model.LicenseEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		metrics.IncEventPublished(string(ev.Type), "failed")
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.LicenseKey),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.Type)},
			{Key: HeaderEventID, Value: []byte(uuid.NewString())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.IncEventPublished(string(ev.Type), "failed")
		return fmt.Errorf("write event %s: %w", ev.Type, err)
	}
	metrics.IncEventPublished(string(ev.Type), "ok")
	p.log.Debug().Str("event", string(ev.Type)).Str("license_key", ev.LicenseKey).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
