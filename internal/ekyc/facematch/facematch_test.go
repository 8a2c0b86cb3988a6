package facematch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
)

type embedFunc func(ctx context.Context, image []byte) ([]float32, error)

func (f embedFunc) Embed(ctx context.Context, image []byte) ([]float32, error) { return f(ctx, image) }

// byImage returns the vector registered for the first byte of the image.
func byImage(vectors map[byte][]float32) Embedder {
	return embedFunc(func(_ context.Context, image []byte) ([]float32, error) {
		v, ok := vectors[image[0]]
		if !ok {
			return nil, errors.New("no face detected")
		}
		return v, nil
	})
}

func job(threshold float64) ekyc.FaceMatchJob {
	return ekyc.FaceMatchJob{
		JobID:       "job-1",
		SessionID:   "sess-1",
		Threshold:   threshold,
		KtpImage:    []byte{1},
		SelfieImage: []byte{2},
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		a := make([]float32, 128)
		b := make([]float32, 128)
		for j := range a {
			a[j] = float32(rng.NormFloat64() * 1e3)
			b[j] = float32(rng.NormFloat64() * 1e-3)
		}
		s := CosineSimilarity(a, b)
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	}
}

func TestCosineSimilarityZeroNorm(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 2}, []float32{-1, -2}), 1e-12)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-12)
}

func TestEvaluateThresholdIsInclusive(t *testing.T) {
	ktp := []float32{1, 0}
	selfie := []float32{float32(math.Cos(0.5)), float32(math.Sin(0.5))}
	exact := CosineSimilarity(ktp, selfie)

	ev := NewEvaluator(byImage(map[byte][]float32{1: ktp, 2: selfie}))

	r := ev.Evaluate(context.Background(), job(exact))
	assert.True(t, r.Matched)
	assert.Equal(t, exact, r.Similarity)
	assert.Empty(t, r.Error)

	r = ev.Evaluate(context.Background(), job(math.Nextafter(exact, 2)))
	assert.False(t, r.Matched)
	assert.Empty(t, r.Error)
}

func TestEvaluateProviderFailures(t *testing.T) {
	tests := []struct {
		name     string
		embedder Embedder
		wantErr  string
	}{
		{
			name:     "no face on selfie",
			embedder: byImage(map[byte][]float32{1: {1, 2}}),
			wantErr:  "embedding selfie image: no face detected",
		},
		{
			name:     "empty vector",
			embedder: byImage(map[byte][]float32{1: {}, 2: {1}}),
			wantErr:  "embedding ktp image: empty embedding vector",
		},
		{
			name:     "dimension mismatch",
			embedder: byImage(map[byte][]float32{1: {1, 2, 3}, 2: {1, 2}}),
			wantErr:  "embedding dimensions differ: 3 vs 2",
		},
		{
			name: "provider panic",
			embedder: embedFunc(func(context.Context, []byte) ([]float32, error) {
				panic("model crashed")
			}),
			wantErr: "embedding ktp image: provider panic: model crashed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewEvaluator(tt.embedder).Evaluate(context.Background(), job(0.1))
			assert.Equal(t, tt.wantErr, r.Error)
			assert.False(t, r.Matched)
			assert.Zero(t, r.Similarity)
			assert.Equal(t, 0.1, r.Threshold)
			assert.Equal(t, "job-1", r.JobID)
			assert.Equal(t, "sess-1", r.SessionID)
		})
	}
}

func BenchmarkCosineSimilarity(b *testing.B) {
	for _, dim := range []int{128, 512} {
		a, c := make([]float32, dim), make([]float32, dim)
		for i := range a {
			a[i] = float32(i%7) - 3
			c[i] = float32(i%5) - 2
		}
		b.Run(fmt.Sprintf("dim_%d", dim), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = CosineSimilarity(a, c)
			}
		})
	}
}
