// Package facematch decides whether a selfie matches the face on a KTP by
// thresholding the cosine similarity of their embeddings.
package facematch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/logger"
)

// Embedder turns a face image into an embedding vector. It fails when no
// face is found.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
}

var (
	errEmptyEmbedding    = errors.New("empty embedding vector")
	errDimensionMismatch = errors.New("embedding dimensions differ")
)

// Evaluator runs face-match jobs against an Embedder.
type Evaluator struct {
	embedder Embedder
}

func NewEvaluator(embedder Embedder) *Evaluator {
	return &Evaluator{embedder: embedder}
}

// Evaluate embeds both images and compares them. Provider failures become a
// result with Error set; Evaluate itself never fails.
func (e *Evaluator) Evaluate(ctx context.Context, job ekyc.FaceMatchJob) ekyc.FaceMatchResult {
	similarity, err := e.similarity(ctx, job)
	if err != nil {
		logger.FromContext(ctx).Warn("face match evaluation failed", "error", err)
		return ekyc.FailedFaceMatch(job, err.Error())
	}
	return ekyc.FaceMatchResult{
		JobID:      job.JobID,
		SessionID:  job.SessionID,
		Similarity: similarity,
		Threshold:  job.Threshold,
		Matched:    similarity >= job.Threshold,
	}
}

func (e *Evaluator) similarity(ctx context.Context, job ekyc.FaceMatchJob) (float64, error) {
	reference, err := e.embed(ctx, "ktp", job.KtpImage)
	if err != nil {
		return 0, err
	}
	probe, err := e.embed(ctx, "selfie", job.SelfieImage)
	if err != nil {
		return 0, err
	}
	if len(reference) != len(probe) {
		return 0, fmt.Errorf("%w: %d vs %d", errDimensionMismatch, len(reference), len(probe))
	}
	return CosineSimilarity(reference, probe), nil
}

func (e *Evaluator) embed(ctx context.Context, which string, image []byte) (v []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("embedding %s image: provider panic: %v", which, r)
		}
	}()
	v, err = e.embedder.Embed(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("embedding %s image: %w", which, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("embedding %s image: %w", which, errEmptyEmbedding)
	}
	return v, nil
}

// CosineSimilarity returns dot(a, b) / (|a| |b|) clamped to [-1, 1], or 0
// when either vector has zero norm. Only the common prefix of a and b is
// compared.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 || math.IsNaN(denom) {
		return 0
	}
	s := dot / denom
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(-1, math.Min(1, s))
}
