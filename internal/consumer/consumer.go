// Package consumer holds the message handlers run by the face-match and
// liveness workers: decode the job, evaluate it, publish and report the
// result.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/dedupe"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/tracing"
)

type FaceMatchEvaluator interface {
	Evaluate(ctx context.Context, job ekyc.FaceMatchJob) ekyc.FaceMatchResult
}

type LivenessEvaluator interface {
	Evaluate(ctx context.Context, job ekyc.LivenessJob) ekyc.LivenessResult
}

type FaceMatchReporter interface {
	ReportFaceMatch(ctx context.Context, job ekyc.FaceMatchJob, r ekyc.FaceMatchResult) error
}

type LivenessReporter interface {
	ReportLiveness(ctx context.Context, job ekyc.LivenessJob, r ekyc.LivenessResult) error
}

// Deps are the cross-cutting collaborators shared by both handlers. Every
// field may be nil.
type Deps struct {
	Tracer  *tracing.Tracer
	Guard   *dedupe.Guard
	Metrics *metrics.Metrics
}

// FaceMatch returns the handler for face-match jobs. Any returned error
// makes the worker drop the message.
func FaceMatch(worker string, ev FaceMatchEvaluator, rep FaceMatchReporter, deps Deps) kafka.Handler {
	return func(ctx context.Context, d kafka.Delivery) error {
		msg, err := decode[ekyc.FaceMatchMessage](d, ekyc.JobTypeFaceMatch)
		if err != nil {
			return err
		}
		job, err := msg.Job()
		if err != nil {
			return err
		}
		return handle(ctx, worker, ekyc.JobTypeFaceMatch, job.JobID, job.SessionID, deps,
			func(ctx context.Context) (string, func(context.Context) error) {
				r := ev.Evaluate(ctx, job)
				outcome := outcomeOf(r.Failed(), r.Matched)
				logger.FromContext(ctx).Info("face match evaluated",
					"similarity", r.Similarity,
					"threshold", r.Threshold,
					"matched", r.Matched,
					"outcome", outcome,
				)
				return outcome, func(ctx context.Context) error { return rep.ReportFaceMatch(ctx, job, r) }
			})
	}
}

// Liveness returns the handler for liveness jobs.
func Liveness(worker string, ev LivenessEvaluator, rep LivenessReporter, deps Deps) kafka.Handler {
	return func(ctx context.Context, d kafka.Delivery) error {
		msg, err := decode[ekyc.LivenessMessage](d, ekyc.JobTypeLiveness)
		if err != nil {
			return err
		}
		job, err := msg.Job()
		if err != nil {
			return err
		}
		return handle(ctx, worker, ekyc.JobTypeLiveness, job.JobID, job.SessionID, deps,
			func(ctx context.Context) (string, func(context.Context) error) {
				r := ev.Evaluate(ctx, job)
				outcome := outcomeOf(r.Failed(), r.Passed)
				logger.FromContext(ctx).Info("liveness evaluated",
					"frames", len(job.Frames),
					"matched", r.MatchedGestures,
					"missing", r.MissingGestures,
					"outcome", outcome,
				)
				return outcome, func(ctx context.Context) error { return rep.ReportLiveness(ctx, job, r) }
			})
	}
}

// decode rejects messages tagged with another job type and parses the body.
// Untagged messages are accepted.
func decode[T any](d kafka.Delivery, jobType string) (T, error) {
	if got := d.Header(ekyc.HeaderJobType); got != "" && got != jobType {
		var zero T
		return zero, fmt.Errorf("unexpected job type %q on %s, want %q", got, d.Queue, jobType)
	}
	msg, err := kafka.DecodeJSON[T](d.Body)
	if err != nil {
		return msg, fmt.Errorf("decoding %s message at offset %d: %w", jobType, d.Offset, err)
	}
	return msg, nil
}

// handle wraps one evaluation in logging, tracing, dedupe and metrics.
// evaluate returns the outcome label and the function that reports it.
func handle(
	ctx context.Context,
	worker, jobType, jobID, sessionID string,
	deps Deps,
	evaluate func(ctx context.Context) (string, func(context.Context) error),
) error {
	ctx = logger.WithJob(ctx, jobType, jobID, sessionID)
	ctx, root := deps.Tracer.Start(ctx, worker+".handle", jobID)
	defer deps.Tracer.Finish(root)
	log := logger.FromContext(ctx)

	if deps.Guard.Processed(ctx, jobID) {
		deps.Metrics.DuplicateJob(jobType)
		root.SetAttr("duplicate", true)
		log.Info("job already processed, skipping")
		return nil
	}

	evalCtx, span := tracing.StartChild(ctx, "evaluate")
	start := time.Now()
	outcome, report := evaluate(evalCtx)
	span.SetAttr("outcome", outcome)
	span.End()
	deps.Metrics.Evaluation(jobType, outcome, time.Since(start))

	reportCtx, span := tracing.StartChild(ctx, "report")
	err := report(reportCtx)
	span.RecordError(err)
	span.End()
	if err != nil {
		root.RecordError(err)
		return err
	}
	deps.Guard.MarkProcessed(ctx, jobType, jobID)
	return nil
}

func outcomeOf(failed, passed bool) string {
	switch {
	case failed:
		return "error"
	case passed:
		return "pass"
	default:
		return "fail"
	}
}
