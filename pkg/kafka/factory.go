// Package kafka provides the broker plumbing of the verification pipeline,
// backed by segmentio/kafka-go. Queues are Kafka topics. A ConnectionFactory
// opens connections on demand, the Publisher writes one durable message per
// call on a writer scoped to that call, and a Worker consumes a queue one
// message at a time, reconnecting after connectivity failures.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const defaultProbeInterval = 5 * time.Second

// ConnectionFactory creates broker connections and consumer sessions on
// demand. It holds configuration only; every call opens its own connection.
type ConnectionFactory struct {
	cfg           config.KafkaConfig
	dialer        *kafka.Dialer
	probeInterval time.Duration
	logger        *slog.Logger
}

// NewConnectionFactory creates a ConnectionFactory for the configured brokers.
func NewConnectionFactory(cfg config.KafkaConfig) *ConnectionFactory {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ConnectionFactory{
		cfg: cfg,
		dialer: &kafka.Dialer{
			Timeout:   timeout,
			DualStack: true,
		},
		probeInterval: defaultProbeInterval,
		logger:        slog.Default().With("component", "kafka-connection"),
	}
}

// dial connects to the first reachable bootstrap broker.
func (f *ConnectionFactory) dial(ctx context.Context) (*kafka.Conn, error) {
	var lastErr error
	for _, broker := range f.cfg.Brokers {
		conn, err := f.dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		f.logger.Debug("broker dial failed", "broker", broker, "error", err)
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return nil, fmt.Errorf("%w: %w", apperrors.ErrBrokerUnavailable, lastErr)
}

// Ping verifies that at least one broker accepts connections.
func (f *ConnectionFactory) Ping(ctx context.Context) error {
	conn, err := f.dial(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

// DeclareQueue creates the topic backing queue when it does not exist yet.
// Declaring an existing queue is not an error.
func (f *ConnectionFactory) DeclareQueue(ctx context.Context, queue string) error {
	conn, err := f.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("%w: looking up controller: %w", apperrors.ErrBrokerUnavailable, err)
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrl, err := f.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dialing controller %s: %w", apperrors.ErrBrokerUnavailable, addr, err)
	}
	defer ctrl.Close()

	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             queue,
		NumPartitions:     max(f.cfg.Partitions, 1),
		ReplicationFactor: max(f.cfg.ReplicationFactor, 1),
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("creating topic %s: %w", queue, err)
	}
	return nil
}

// Connect declares queue and opens a consumer session on it. The session
// buffers at most prefetch messages ahead of the handler.
func (f *ConnectionFactory) Connect(ctx context.Context, queue string, prefetch int) (Session, error) {
	if err := f.DeclareQueue(ctx, queue); err != nil {
		return nil, err
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        f.cfg.Brokers,
		GroupID:        f.groupID(queue),
		Topic:          queue,
		Dialer:         f.dialer,
		QueueCapacity:  max(prefetch, 1),
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	return newReaderSession(reader, queue, f.probe, f.probeInterval), nil
}

// groupID scopes the consumer group per queue so that workers of different
// job types never share a rebalance.
func (f *ConnectionFactory) groupID(queue string) string {
	return f.cfg.ConsumerGroup + "." + queue
}

func (f *ConnectionFactory) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, f.dialer.Timeout)
	defer cancel()
	return f.Ping(ctx)
}

// newWriter returns a synchronous writer that waits for all in-sync replicas
// before acknowledging a message.
func (f *ConnectionFactory) newWriter(queue string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(f.cfg.Brokers...),
		Topic:                  queue,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		MaxAttempts:            1,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: false,
		Transport: &kafka.Transport{
			DialTimeout: f.dialer.Timeout,
		},
	}
}
