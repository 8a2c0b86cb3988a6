// Package dispatch turns verification requests into jobs on the broker and
// publishes evaluation results to the result queues.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/resilience"
)

// Publisher writes one message to a queue. *kafka.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg kafka.Message) error
}

// FaceMatchRequest is a face-match verification request. A nil Threshold
// selects the configured default.
type FaceMatchRequest struct {
	SessionID   string
	Threshold   *float64
	KtpImage    ekyc.BinaryImage
	SelfieImage ekyc.BinaryImage
}

// LivenessRequest is a liveness verification request.
type LivenessRequest struct {
	SessionID string
	Gestures  []string
	Frames    []ekyc.BinaryImage
}

// Service creates jobs and enqueues them.
type Service struct {
	pub      Publisher
	topics   config.KafkaTopics
	cfg      config.DispatchConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	newJobID func() string
	now      func() time.Time
}

func NewService(pub Publisher, topics config.KafkaTopics, cfg config.DispatchConfig, m *metrics.Metrics) *Service {
	return &Service{
		pub:      pub,
		topics:   topics,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.WithComponent("dispatch"),
		newJobID: uuid.NewString,
		now:      time.Now,
	}
}

// StartFaceMatch assigns a fresh job id and publishes the face-match job.
// Negative thresholds are raised to 0. The MIME type is the selfie's, or
// the KTP image's when the selfie has none.
func (s *Service) StartFaceMatch(ctx context.Context, req FaceMatchRequest) (ekyc.AsyncJobHandle, error) {
	threshold := s.cfg.DefaultFaceThreshold
	if req.Threshold != nil {
		threshold = max(*req.Threshold, 0)
	}
	mime := req.SelfieImage.MimeType
	if mime == "" {
		mime = req.KtpImage.MimeType
	}
	job := ekyc.FaceMatchJob{
		JobID:       s.newJobID(),
		SessionID:   req.SessionID,
		Threshold:   threshold,
		KtpImage:    req.KtpImage.Content,
		SelfieImage: req.SelfieImage.Content,
		MimeType:    mime,
	}
	msg := kafka.Message{
		Key:     job.JobID,
		Value:   ekyc.NewFaceMatchMessage(job, s.now()),
		Headers: map[string]string{ekyc.HeaderJobType: ekyc.JobTypeFaceMatch},
	}
	return s.dispatch(ctx, ekyc.JobTypeFaceMatch, s.topics.FaceMatch, job.SessionID, msg)
}

// StartLiveness assigns a fresh job id and publishes the liveness job. The
// MIME type is taken from the first frame.
func (s *Service) StartLiveness(ctx context.Context, req LivenessRequest) (ekyc.AsyncJobHandle, error) {
	frames := make([][]byte, len(req.Frames))
	for i, f := range req.Frames {
		frames[i] = f.Content
	}
	var mime string
	if len(req.Frames) > 0 {
		mime = req.Frames[0].MimeType
	}
	job := ekyc.LivenessJob{
		JobID:     s.newJobID(),
		SessionID: req.SessionID,
		Gestures:  req.Gestures,
		Frames:    frames,
		MimeType:  mime,
	}
	msg := kafka.Message{
		Key:     job.JobID,
		Value:   ekyc.NewLivenessMessage(job, s.now()),
		Headers: map[string]string{ekyc.HeaderJobType: ekyc.JobTypeLiveness},
	}
	return s.dispatch(ctx, ekyc.JobTypeLiveness, s.topics.Liveness, job.SessionID, msg)
}

func (s *Service) dispatch(ctx context.Context, jobType, queue, sessionID string, msg kafka.Message) (ekyc.AsyncJobHandle, error) {
	retry := resilience.RetryConfig{
		MaxAttempts:    s.cfg.PublishAttempts,
		InitialDelay:   s.cfg.PublishRetryDelay,
		MaxDelay:       2 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.2,
	}
	err := resilience.Retry(ctx, "dispatch."+jobType, retry, func(ctx context.Context) error {
		return s.pub.Publish(ctx, queue, msg)
	})
	s.metrics.JobDispatched(jobType, err)
	if err != nil {
		s.logger.Error("job dispatch failed",
			"job_type", jobType,
			"job_id", msg.Key,
			"session_id", sessionID,
			"queue", queue,
			"error", err,
		)
		return ekyc.AsyncJobHandle{}, fmt.Errorf("%w: %s job %s: %w", apperrors.ErrDispatchFailed, jobType, msg.Key, err)
	}
	s.logger.Info("job dispatched",
		"job_type", jobType,
		"job_id", msg.Key,
		"session_id", sessionID,
		"queue", queue,
	)
	return ekyc.AsyncJobHandle{JobID: msg.Key, Queue: queue}, nil
}
