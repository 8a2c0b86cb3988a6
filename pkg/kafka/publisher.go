package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is the unit of data published to a queue. Key is used for
// partition hashing and Value is JSON-serialised.
type Message struct {
	Key     string
	Value   any
	Headers map[string]string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends single durable messages. Each Publish declares the target
// queue and opens a writer that lives only for that call, so a failed
// publish never leaves a half-open connection behind.
type Publisher struct {
	declare   func(ctx context.Context, queue string) error
	newWriter func(queue string) messageWriter
	logger    *slog.Logger
}

// NewPublisher creates a Publisher that opens connections through factory.
func NewPublisher(factory *ConnectionFactory) *Publisher {
	return &Publisher{
		declare:   factory.DeclareQueue,
		newWriter: func(queue string) messageWriter { return factory.newWriter(queue) },
		logger:    slog.Default().With("component", "kafka-publisher"),
	}
}

// Publish serialises msg.Value as JSON and writes it to queue, waiting for
// the broker to confirm the write.
func (p *Publisher) Publish(ctx context.Context, queue string, msg Message) error {
	value, err := json.Marshal(msg.Value)
	if err != nil {
		return fmt.Errorf("marshaling message value: %w", err)
	}
	if err := p.declare(ctx, queue); err != nil {
		return fmt.Errorf("declaring queue %s: %w", queue, err)
	}

	w := p.newWriter(queue)
	defer func() {
		if cerr := w.Close(); cerr != nil {
			p.logger.Debug("closing writer", "queue", queue, "error", cerr)
		}
	}()

	err = w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.Key),
		Value:   value,
		Headers: kafkaHeaders(msg.Headers),
		Time:    time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("failed to publish message",
			"queue", queue,
			"key", msg.Key,
			"error", err,
		)
		return fmt.Errorf("publishing to %s: %w", queue, err)
	}
	p.logger.Debug("message published",
		"queue", queue,
		"key", msg.Key,
		"value_size", len(value),
	)
	return nil
}
