package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards bus events to one topic per event type.
type KafkaSink struct {
	writer MessageWriter
	prefix string
}

// NewKafkaWriter builds a writer that keys partitions by aggregate id.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
}

func NewKafkaSink(writer MessageWriter, topicPrefix string) *KafkaSink {
	return &KafkaSink{writer: writer, prefix: strings.TrimSuffix(topicPrefix, ".")}
}

// Topic maps an event type to its versioned topic, e.g. vehiql.test_drive.booked.v1.
func (s *KafkaSink) Topic(eventType string) string {
	if s.prefix == "" {
		return eventType + ".v1"
	}
	return s.prefix + "." + eventType + ".v1"
}

// Deliver writes one event. It satisfies SinkFunc.
func (s *KafkaSink) Deliver(ctx context.Context, ev Event) error {
	msg := kafka.Message{
		Topic: s.Topic(ev.Type),
		Key:   []byte(ev.Key),
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.Topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// SplitBrokers parses a comma-separated broker list.
func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
