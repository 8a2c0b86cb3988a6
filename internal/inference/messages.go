// Package inference talks to the model-serving sidecars over pkg/rpc and
// adapts them to the capability ports of the evaluators and the OCR
// provider.
package inference

import "github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc/ocr"

// RPC method names served by the sidecars.
const (
	MethodEmbed      = "Inference.Embed"
	MethodDetect     = "Inference.Detect"
	MethodLoadReader = "Inference.LoadReader"
	MethodReadText   = "Inference.ReadText"
)

type EmbedRequest struct {
	Image []byte `json:"image"`
}

type EmbedResponse struct {
	Vector []float32 `json:"vector"`
}

type DetectRequest struct {
	Frame []byte `json:"frame"`
}

type DetectResponse struct {
	Gestures []string `json:"gestures"`
}

type LoadReaderRequest struct {
	Languages []string `json:"languages"`
}

type LoadReaderResponse struct {
	ReaderID string `json:"reader_id"`
}

type ReadTextRequest struct {
	ReaderID string `json:"reader_id"`
	Image    []byte `json:"image"`
}

type ReadTextResponse struct {
	Detections []ocr.Detection `json:"detections"`
}
