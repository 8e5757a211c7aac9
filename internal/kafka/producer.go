package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafkago.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter builds a writer that routes each message to the topic set on the message.
func NewWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// Producer publishes keyed messages. Messages sharing a key land on the same partition.
type Producer struct {
	writer  MessageWriter
	clock   func() time.Time
	metrics *Metrics
}

type ProducerOption func(*Producer)

// WithMetrics records the size of every delivered message.
func WithMetrics(metrics *Metrics) ProducerOption {
	return func(p *Producer) {
		p.metrics = metrics
	}
}

func NewProducer(writer MessageWriter, opts ...ProducerOption) *Producer {
	p := &Producer{writer: writer, clock: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if topic == "" {
		return errors.New("kafka publish: topic is required")
	}

	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  p.clock(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	if p.metrics != nil {
		p.metrics.RecordPayload(ctx, topic, len(value))
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
