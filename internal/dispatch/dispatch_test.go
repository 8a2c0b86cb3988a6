package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/metrics"
)

type published struct {
	queue string
	msg   kafka.Message
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	sent     []published
	attempts int
}

func (p *fakePublisher) Publish(_ context.Context, queue string, msg kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unreachable")
	}
	p.sent = append(p.sent, published{queue: queue, msg: msg})
	return nil
}

var testTopics = config.KafkaTopics{
	FaceMatch:       "ekyc.face_match",
	FaceMatchResult: "ekyc.face_match.result",
	Liveness:        "ekyc.liveness",
	LivenessResult:  "ekyc.liveness.result",
}

func newTestService(pub Publisher, m *metrics.Metrics) *Service {
	return NewService(pub, testTopics, config.DispatchConfig{
		DefaultFaceThreshold: 0.8,
		PublishAttempts:      3,
		PublishRetryDelay:    time.Millisecond,
	}, m)
}

func ptr(f float64) *float64 { return &f }

func TestStartFaceMatch(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, nil)

	handle, err := svc.StartFaceMatch(context.Background(), FaceMatchRequest{
		SessionID:   "sess-1",
		Threshold:   ptr(0.6),
		KtpImage:    ekyc.BinaryImage{Content: []byte{1}, MimeType: "image/png"},
		SelfieImage: ekyc.BinaryImage{Content: []byte{2}},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(handle.JobID)
	require.NoError(t, err)
	assert.Equal(t, "ekyc.face_match", handle.Queue)

	require.Len(t, pub.sent, 1)
	sent := pub.sent[0]
	assert.Equal(t, "ekyc.face_match", sent.queue)
	assert.Equal(t, handle.JobID, sent.msg.Key)
	assert.Equal(t, ekyc.JobTypeFaceMatch, sent.msg.Headers[ekyc.HeaderJobType])

	msg, ok := sent.msg.Value.(ekyc.FaceMatchMessage)
	require.True(t, ok)
	assert.Equal(t, 0.6, *msg.Threshold)
	assert.Equal(t, "image/png", *msg.MimeType)
	assert.Equal(t, []byte{2}, msg.SelfieImage)
}

func TestStartFaceMatchThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold *float64
		want      float64
	}{
		{"default", nil, 0.8},
		{"explicit zero", ptr(0), 0},
		{"negative clamped", ptr(-0.4), 0},
		{"explicit", ptr(0.95), 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			_, err := newTestService(pub, nil).StartFaceMatch(context.Background(), FaceMatchRequest{
				SessionID: "s", Threshold: tt.threshold,
			})
			require.NoError(t, err)
			msg := pub.sent[0].msg.Value.(ekyc.FaceMatchMessage)
			assert.Equal(t, tt.want, *msg.Threshold)
		})
	}
}

func TestJobIDsAreUnique(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, nil)
	req := FaceMatchRequest{SessionID: "s", KtpImage: ekyc.BinaryImage{Content: []byte{1}}}

	a, err := svc.StartFaceMatch(context.Background(), req)
	require.NoError(t, err)
	b, err := svc.StartFaceMatch(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.JobID, b.JobID)
}

func TestStartLiveness(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, nil)

	handle, err := svc.StartLiveness(context.Background(), LivenessRequest{
		SessionID: "sess-2",
		Gestures:  []string{"blink", "smile"},
		Frames: []ekyc.BinaryImage{
			{Content: []byte("f1"), MimeType: "image/jpeg"},
			{Content: []byte("f2"), MimeType: "image/png"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ekyc.liveness", handle.Queue)

	msg := pub.sent[0].msg.Value.(ekyc.LivenessMessage)
	assert.Equal(t, handle.JobID, msg.JobID)
	assert.Equal(t, []string{"blink", "smile"}, msg.Gestures)
	assert.Equal(t, [][]byte{[]byte("f1"), []byte("f2")}, msg.Frames)
	assert.Equal(t, "image/jpeg", *msg.MimeType)
	assert.Equal(t, ekyc.JobTypeLiveness, pub.sent[0].msg.Headers[ekyc.HeaderJobType])
}

func TestStartLivenessWithoutFrames(t *testing.T) {
	pub := &fakePublisher{}
	_, err := newTestService(pub, nil).StartLiveness(context.Background(), LivenessRequest{SessionID: "s"})
	require.NoError(t, err)
	msg := pub.sent[0].msg.Value.(ekyc.LivenessMessage)
	assert.Nil(t, msg.MimeType)
	assert.Equal(t, []string{}, msg.Gestures)
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	pub := &fakePublisher{failures: 2}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := newTestService(pub, m)

	_, err := svc.StartLiveness(context.Background(), LivenessRequest{SessionID: "s"})
	require.NoError(t, err)
	assert.Equal(t, 3, pub.attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsDispatchedTotal.WithLabelValues(ekyc.JobTypeLiveness, "ok")))
}

func TestDispatchFailure(t *testing.T) {
	pub := &fakePublisher{failures: 10}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := newTestService(pub, m)

	handle, err := svc.StartFaceMatch(context.Background(), FaceMatchRequest{SessionID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDispatchFailed)
	assert.Empty(t, handle.JobID)
	assert.Equal(t, 3, pub.attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsDispatchedTotal.WithLabelValues(ekyc.JobTypeFaceMatch, "error")))
}

func TestResultPublisher(t *testing.T) {
	pub := &fakePublisher{}
	rp := NewResultPublisher(pub, testTopics)
	ctx := context.Background()

	require.NoError(t, rp.PublishFaceMatch(ctx, ekyc.FaceMatchResult{JobID: "j1", SessionID: "s", Similarity: 0.9, Threshold: 0.8, Matched: true}))
	require.NoError(t, rp.PublishLiveness(ctx, ekyc.FailedLiveness(ekyc.LivenessJob{JobID: "j2", SessionID: "s", Gestures: []string{"blink"}}, "detector down")))

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "ekyc.face_match.result", pub.sent[0].queue)
	assert.Equal(t, "j1", pub.sent[0].msg.Key)
	assert.Equal(t, ekyc.JobTypeFaceMatchResult, pub.sent[0].msg.Headers[ekyc.HeaderJobType])
	fm := pub.sent[0].msg.Value.(ekyc.FaceMatchResultMessage)
	assert.Nil(t, fm.Error)

	assert.Equal(t, "ekyc.liveness.result", pub.sent[1].queue)
	lv := pub.sent[1].msg.Value.(ekyc.LivenessResultMessage)
	assert.Equal(t, "detector down", *lv.Error)
	assert.Equal(t, []string{"BLINK"}, lv.Missing)
	assert.Equal(t, []string{}, lv.Matched)
}

func TestResultPublisherReturnsError(t *testing.T) {
	rp := NewResultPublisher(&fakePublisher{failures: 1}, testTopics)
	err := rp.PublishFaceMatch(context.Background(), ekyc.FaceMatchResult{JobID: "j"})
	assert.Error(t, err)
}
