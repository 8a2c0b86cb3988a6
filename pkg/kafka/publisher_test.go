package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(declareErr error, writer *recordingWriter) (*Publisher, *[]string) {
	var declared []string
	p := &Publisher{
		declare: func(_ context.Context, queue string) error {
			declared = append(declared, queue)
			return declareErr
		},
		newWriter: func(string) messageWriter { return writer },
	}
	p.logger = discardLogger()
	return p, &declared
}

func TestPublishWritesJSONWithHeaders(t *testing.T) {
	writer := &recordingWriter{}
	p, declared := newTestPublisher(nil, writer)

	payload := map[string]any{"job_id": "job-1", "image": []byte{0x00, 0xff}}
	err := p.Publish(context.Background(), "ekyc.face_match", Message{
		Key:     "job-1",
		Value:   payload,
		Headers: map[string]string{"x-job-type": "face_match"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ekyc.face_match"}, *declared)
	require.Len(t, writer.written, 1)
	msg := writer.written[0]
	assert.Equal(t, "job-1", string(msg.Key))
	assert.Equal(t, map[string]string{"x-job-type": "face_match"}, headerMap(msg.Headers))

	var decoded struct {
		JobID string `json:"job_id"`
		Image []byte `json:"image"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "job-1", decoded.JobID)
	assert.Equal(t, []byte{0x00, 0xff}, decoded.Image)
	assert.True(t, writer.closed)
}

func TestPublishDeclareFailure(t *testing.T) {
	writer := &recordingWriter{}
	p, _ := newTestPublisher(errors.New("no broker"), writer)

	err := p.Publish(context.Background(), "q", Message{Key: "k", Value: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declaring queue q")
	assert.Empty(t, writer.written)
}

func TestPublishWriteFailureClosesWriter(t *testing.T) {
	writer := &recordingWriter{err: errors.New("not enough replicas")}
	p, _ := newTestPublisher(nil, writer)

	err := p.Publish(context.Background(), "q", Message{Key: "k", Value: 1})
	require.Error(t, err)
	assert.True(t, writer.closed)
}

func TestPublishUnmarshalableValue(t *testing.T) {
	writer := &recordingWriter{}
	p, declared := newTestPublisher(nil, writer)

	err := p.Publish(context.Background(), "q", Message{Value: make(chan int)})
	require.Error(t, err)
	assert.Empty(t, *declared)
}

func TestDecodeJSON(t *testing.T) {
	type job struct {
		JobID string `json:"job_id"`
	}
	got, err := DecodeJSON[job]([]byte(`{"job_id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", got.JobID)

	_, err = DecodeJSON[job]([]byte(`{`))
	assert.Error(t, err)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
