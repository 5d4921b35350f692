package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns an async writer keyed by room id so events for one
// room stay ordered within a partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
}

type envelope struct {
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// KafkaForwarder republishes bus events to a Kafka topic.
type KafkaForwarder struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewKafkaForwarder(writer MessageWriter, logger *zerolog.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, timeout: 5 * time.Second, logger: logger}
}

// Attach subscribes the forwarder to the given event types.
func (f *KafkaForwarder) Attach(bus *EventBus, eventTypes ...string) {
	bus.Subscribe(f.Handle, eventTypes...)
}

func (f *KafkaForwarder) Handle(ev *Event) error {
	value, err := json.Marshal(envelope{Type: ev.Type, CreatedAt: ev.CreatedAt, Payload: ev.Payload})
	if err != nil {
		return fmt.Errorf("encode kafka envelope: %w", err)
	}

	var key struct {
		RoomID string `json:"room_id"`
	}
	_ = json.Unmarshal(ev.Payload, &key)

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key.RoomID),
		Value:   value,
		Time:    ev.CreatedAt,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(ev.Type)}},
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("event_type", ev.Type).Msg("kafka forward failed")
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
