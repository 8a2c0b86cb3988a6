package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/media"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/tracing"
)

// Failure targets recorded in metrics.
const (
	targetBackoffice = "backoffice"
	targetMedia      = "media"
	targetVideo      = "video"
)

type ResultPublisher interface {
	PublishFaceMatch(ctx context.Context, r ekyc.FaceMatchResult) error
	PublishLiveness(ctx context.Context, r ekyc.LivenessResult) error
}

type CaseRecorder interface {
	RecordFaceChecks(ctx context.Context, sessionID string, p FaceChecksPayload) error
	RecordLiveness(ctx context.Context, sessionID string, p LivenessPayload) error
}

type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

type VideoEncoder interface {
	Encode(frames [][]byte) ([]byte, error)
}

// Reporter publishes results and reports them downstream.
type Reporter struct {
	results ResultPublisher
	cases   CaseRecorder
	media   Uploader
	video   VideoEncoder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewReporter(results ResultPublisher, cases CaseRecorder, uploader Uploader, video VideoEncoder, m *metrics.Metrics) *Reporter {
	return &Reporter{
		results: results,
		cases:   cases,
		media:   uploader,
		video:   video,
		metrics: m,
		logger:  logger.WithComponent("reporter"),
	}
}

// NewBreaker builds the circuit breaker guarding one reporting endpoint and
// mirrors its state into metrics.
func NewBreaker(name string, cfg config.ReportingConfig, m *metrics.Metrics) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		ResetTimeout:     cfg.BreakerReset,
		OnStateChange: func(name string, _, to resilience.State) {
			m.SetBreakerState(name, int(to))
		},
	})
}

// ReportFaceMatch publishes r and then records it with case management. Only
// a publish failure is returned.
func (rp *Reporter) ReportFaceMatch(ctx context.Context, job ekyc.FaceMatchJob, r ekyc.FaceMatchResult) error {
	if err := rp.publish(ctx, func(ctx context.Context) error { return rp.results.PublishFaceMatch(ctx, r) }); err != nil {
		return fmt.Errorf("publishing face match result %s: %w", r.JobID, err)
	}

	ctx, span := tracing.StartChild(ctx, "record_case")
	defer span.End()
	result := ResultFail
	if r.Matched {
		result = ResultPass
	}
	payload := FaceChecksPayload{
		Checks: []FaceCheck{{
			Step:            StepIDVsSelfie,
			SimilarityScore: r.Similarity,
			Threshold:       r.Threshold,
			Result:          result,
			RawMetadata:     metadata(job.JobID, r.Error),
		}},
		OverallResult: result,
		Status:        status(r.Error),
	}
	if err := rp.cases.RecordFaceChecks(ctx, r.SessionID, payload); err != nil {
		span.RecordError(err)
		rp.swallow(ctx, targetBackoffice, err)
	}
	return nil
}

// ReportLiveness publishes r, uploads the session video and records the
// outcome with case management. Only a publish failure is returned; a
// video that cannot be built or uploaded is reported without a URL.
func (rp *Reporter) ReportLiveness(ctx context.Context, job ekyc.LivenessJob, r ekyc.LivenessResult) error {
	if err := rp.publish(ctx, func(ctx context.Context) error { return rp.results.PublishLiveness(ctx, r) }); err != nil {
		return fmt.Errorf("publishing liveness result %s: %w", r.JobID, err)
	}

	videoURL := rp.uploadVideo(ctx, job)

	ctx, span := tracing.StartChild(ctx, "record_case")
	defer span.End()
	perGesture := make(map[string]string, len(r.MatchedGestures)+len(r.MissingGestures))
	for _, g := range r.MatchedGestures {
		perGesture[g] = ResultPass
	}
	for _, g := range r.MissingGestures {
		perGesture[g] = ResultMissing
	}
	overall := ResultFail
	if r.Passed {
		overall = ResultPass
	}
	payload := LivenessPayload{
		OverallResult:    overall,
		PerGestureResult: perGesture,
		RecordedVideoURL: videoURL,
		Status:           status(r.Error),
		RawMetadata:      metadata(job.JobID, r.Error),
	}
	if err := rp.cases.RecordLiveness(ctx, r.SessionID, payload); err != nil {
		span.RecordError(err)
		rp.swallow(ctx, targetBackoffice, err)
	}
	return nil
}

func (rp *Reporter) publish(ctx context.Context, fn func(context.Context) error) error {
	ctx, span := tracing.StartChild(ctx, "publish_result")
	defer span.End()
	err := fn(ctx)
	span.RecordError(err)
	return err
}

func (rp *Reporter) uploadVideo(ctx context.Context, job ekyc.LivenessJob) *string {
	ctx, span := tracing.StartChild(ctx, "upload_video")
	defer span.End()

	video, err := rp.video.Encode(job.Frames)
	if err != nil {
		span.RecordError(err)
		rp.swallow(ctx, targetVideo, fmt.Errorf("encoding liveness video: %w", err))
		return nil
	}
	span.SetAttr("bytes", len(video))
	url, err := rp.media.Upload(ctx, "liveness-"+job.SessionID+".avi", media.VideoMimeType, video)
	if err != nil {
		span.RecordError(err)
		rp.swallow(ctx, targetMedia, err)
		return nil
	}
	return &url
}

func (rp *Reporter) swallow(ctx context.Context, target string, err error) {
	rp.metrics.ReportFailure(target)
	logger.FromContext(ctx).Warn("reporting failed", "target", target, "error", err)
}

func metadata(jobID, errMsg string) Metadata {
	m := Metadata{JobID: jobID}
	if errMsg != "" {
		m.Error = &errMsg
	}
	return m
}

func status(errMsg string) string {
	if errMsg != "" {
		return StatusFailed
	}
	return StatusDone
}
