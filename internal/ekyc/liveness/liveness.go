// Package liveness checks that a required gesture sequence was performed, in
// order, across the frames of a liveness challenge.
package liveness

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/logger"
)

// Detector reports the gesture labels visible in a single frame.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]string, error)
}

// Evaluator runs liveness jobs against a Detector.
type Evaluator struct {
	detector Detector
}

func NewEvaluator(detector Detector) *Evaluator {
	return &Evaluator{detector: detector}
}

// Evaluate detects gestures frame by frame and matches them against the
// job's sequence. Any detector failure fails the whole job with every
// expected gesture missing; Evaluate itself never fails.
func (e *Evaluator) Evaluate(ctx context.Context, job ekyc.LivenessJob) ekyc.LivenessResult {
	detected, err := e.detectAll(ctx, job.Frames)
	if err != nil {
		logger.FromContext(ctx).Warn("liveness evaluation failed", "error", err)
		return ekyc.FailedLiveness(job, err.Error())
	}
	matched, missing := MatchSequence(job.Gestures, detected)
	return ekyc.LivenessResult{
		JobID:           job.JobID,
		SessionID:       job.SessionID,
		Passed:          len(missing) == 0,
		MatchedGestures: matched,
		MissingGestures: missing,
	}
}

func (e *Evaluator) detectAll(ctx context.Context, frames [][]byte) (sets []map[string]struct{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	sets = make([]map[string]struct{}, 0, len(frames))
	for i, frame := range frames {
		labels, err := e.detector.Detect(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("detecting gestures in frame %d: %w", i, err)
		}
		set := make(map[string]struct{}, len(labels))
		for _, l := range labels {
			set[strings.ToUpper(l)] = struct{}{}
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// MatchSequence matches expected gestures, upper-cased, against per-frame
// detections with a single forward cursor. Each expected gesture consumes
// frames up to and including the first frame that shows it; frames are
// never revisited, so gestures must appear in order. Once the frames run
// out every remaining gesture is missing.
func MatchSequence(expected []string, detected []map[string]struct{}) (matched, missing []string) {
	matched = []string{}
	missing = []string{}
	cursor := 0
	for _, target := range ekyc.NormalizeGestures(expected) {
		found := false
		for cursor < len(detected) {
			frame := detected[cursor]
			cursor++
			if _, ok := frame[target]; ok {
				found = true
				break
			}
		}
		if found {
			matched = append(matched, target)
		} else {
			missing = append(missing, target)
		}
	}
	return matched, missing
}
