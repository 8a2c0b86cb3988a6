package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc/ocr"
	apperrors "github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/rpc"
)

// Caller is the subset of rpc.Client the adapters need.
type Caller interface {
	Call(ctx context.Context, method string, params, result any) error
}

var _ Caller = (*rpc.Client)(nil)

// classify maps sidecar failures onto the pipeline's error sentinels.
func classify(err error) error {
	var remote *rpc.RemoteError
	if errors.As(err, &remote) {
		if strings.Contains(strings.ToLower(remote.Message), "no face") {
			return fmt.Errorf("%w: %s", apperrors.ErrNoFace, remote.Message)
		}
		return fmt.Errorf("%w: %w", apperrors.ErrProviderFailed, err)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrUpstream, err)
}

// Embedder computes face embeddings.
type Embedder struct {
	rpc Caller
}

func NewEmbedder(c Caller) *Embedder {
	return &Embedder{rpc: c}
}

func (e *Embedder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	var resp EmbedResponse
	if err := e.rpc.Call(ctx, MethodEmbed, EmbedRequest{Image: image}, &resp); err != nil {
		return nil, classify(err)
	}
	return resp.Vector, nil
}

// Detector lists the gestures visible in a frame.
type Detector struct {
	rpc Caller
}

func NewDetector(c Caller) *Detector {
	return &Detector{rpc: c}
}

func (d *Detector) Detect(ctx context.Context, frame []byte) ([]string, error) {
	var resp DetectResponse
	if err := d.rpc.Call(ctx, MethodDetect, DetectRequest{Frame: frame}, &resp); err != nil {
		return nil, classify(err)
	}
	return resp.Gestures, nil
}

// ReaderFactory returns an ocr.ReaderFactory that asks the OCR sidecar to
// load a reader for each language set.
func ReaderFactory(c Caller) ocr.ReaderFactory {
	return func(ctx context.Context, languages []string) (ocr.LineReader, error) {
		var resp LoadReaderResponse
		if err := c.Call(ctx, MethodLoadReader, LoadReaderRequest{Languages: languages}, &resp); err != nil {
			return nil, classify(err)
		}
		if resp.ReaderID == "" {
			return nil, fmt.Errorf("%w: sidecar returned no reader id for %v", apperrors.ErrProviderFailed, languages)
		}
		return &lineReader{rpc: c, id: resp.ReaderID}, nil
	}
}

type lineReader struct {
	rpc Caller
	id  string
}

func (r *lineReader) ReadText(ctx context.Context, image []byte) ([]ocr.Detection, error) {
	var resp ReadTextResponse
	if err := r.rpc.Call(ctx, MethodReadText, ReadTextRequest{ReaderID: r.id, Image: image}, &resp); err != nil {
		return nil, classify(err)
	}
	return resp.Detections, nil
}
