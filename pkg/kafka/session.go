package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrConnectionLost is the cause reported by a session whose broker stopped
// answering liveness probes.
var ErrConnectionLost = errors.New("broker connection lost")

// Delivery is one message handed to a worker.
type Delivery struct {
	Queue     string
	Key       string
	Body      []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Time      time.Time

	msg kafka.Message
}

// Header returns the value of the named message header.
func (d Delivery) Header(name string) string {
	return d.Headers[name]
}

// Session is a consumer attached to one queue. Ack and Nack both remove the
// message from the queue; Nack never requeues.
type Session interface {
	Fetch(ctx context.Context) (Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	Nack(ctx context.Context, d Delivery) error
	Close() error
}

// Connector opens consumer sessions.
type Connector interface {
	Connect(ctx context.Context, queue string, prefetch int) (Session, error)
}

type readerSession struct {
	reader *kafka.Reader
	queue  string

	alive     context.Context
	kill      context.CancelCauseFunc
	closeOnce sync.Once
}

func newReaderSession(reader *kafka.Reader, queue string, probe func(context.Context) error, interval time.Duration) *readerSession {
	alive, kill := context.WithCancelCause(context.Background())
	s := &readerSession{
		reader: reader,
		queue:  queue,
		alive:  alive,
		kill:   kill,
	}
	go s.watch(probe, interval)
	return s
}

// watch probes the brokers until the session closes. kafka-go readers retry
// broker failures internally, so without the probe a dead broker would leave
// Fetch blocked forever instead of surfacing a connectivity error.
func (s *readerSession) watch(probe func(context.Context) error, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.alive.Done():
			return
		case <-ticker.C:
			if err := probe(s.alive); err != nil {
				if s.alive.Err() != nil {
					return
				}
				s.kill(fmt.Errorf("%w: %w", ErrConnectionLost, err))
				return
			}
		}
	}
}

func (s *readerSession) Fetch(ctx context.Context) (Delivery, error) {
	fetchCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(s.alive, func() { cancel(context.Cause(s.alive)) })
	defer stop()

	msg, err := s.reader.FetchMessage(fetchCtx)
	if err != nil {
		if cause := context.Cause(s.alive); cause != nil && ctx.Err() == nil {
			return Delivery{}, cause
		}
		return Delivery{}, fmt.Errorf("fetching from %s: %w", s.queue, err)
	}
	return Delivery{
		Queue:     s.queue,
		Key:       string(msg.Key),
		Body:      msg.Value,
		Headers:   headerMap(msg.Headers),
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Time:      msg.Time,
		msg:       msg,
	}, nil
}

func (s *readerSession) Ack(ctx context.Context, d Delivery) error {
	if err := s.reader.CommitMessages(ctx, d.msg); err != nil {
		return fmt.Errorf("committing offset %d on %s: %w", d.Offset, s.queue, err)
	}
	return nil
}

// Nack commits past the message: a failed message is dropped, not retried.
func (s *readerSession) Nack(ctx context.Context, d Delivery) error {
	return s.Ack(ctx, d)
}

func (s *readerSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.kill(context.Canceled)
		err = s.reader.Close()
	})
	return err
}

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func kafkaHeaders(headers map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
