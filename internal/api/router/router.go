// Package router wires the dispatch API routes and applies the middleware
// chain (RequestID → Metrics → Timeout → MaxBody).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/middleware"
)

type Options struct {
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// New builds the dispatch API handler.
//
// Route table:
//
//	POST /api/v1/ekyc/face-match  → queue face-match job (202)
//	POST /api/v1/ekyc/liveness    → queue liveness job   (202)
//	POST /api/v1/ekyc/ktp-ocr     → synchronous KTP OCR
//	GET  /health                  → dispatcher health
func New(h *handler.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/v1/ekyc/face-match", h.StartFaceMatch)
	mux.HandleFunc("POST /api/v1/ekyc/liveness", h.StartLiveness)
	mux.HandleFunc("POST /api/v1/ekyc/ktp-ocr", h.KtpOcr)

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(opts.Metrics),
		middleware.Timeout(opts.RequestTimeout),
		middleware.MaxBody(opts.MaxBodyBytes),
	)
}
