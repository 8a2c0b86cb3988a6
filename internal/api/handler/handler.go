// Package handler serves the dispatch HTTP API: face-match and liveness
// requests are queued and acknowledged with 202, KTP OCR runs inline.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/api"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/api/validator"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/dispatch"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	apperrors "github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/resilience"
)

type Dispatcher interface {
	StartFaceMatch(ctx context.Context, req dispatch.FaceMatchRequest) (ekyc.AsyncJobHandle, error)
	StartLiveness(ctx context.Context, req dispatch.LivenessRequest) (ekyc.AsyncJobHandle, error)
}

type OCR interface {
	Extract(ctx context.Context, image []byte, locale string) (ekyc.KtpOcrResult, error)
}

type Handler struct {
	dispatcher Dispatcher
	ocr        OCR
	ocrTimeout time.Duration
	logger     *slog.Logger
}

// New creates a Handler. OCR calls are abandoned after ocrTimeout; zero
// means no limit.
func New(d Dispatcher, ocr OCR, ocrTimeout time.Duration) *Handler {
	return &Handler{
		dispatcher: d,
		ocr:        ocr,
		ocrTimeout: ocrTimeout,
		logger:     slog.Default().With("component", "dispatch-handler"),
	}
}

func (h *Handler) StartFaceMatch(w http.ResponseWriter, r *http.Request) {
	var req api.FaceMatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.validate(w, validator.ValidateFaceMatch(&req)) {
		return
	}

	threshold := req.FaceMatchThreshold
	if threshold != nil && *threshold == 0 {
		threshold = nil
	}
	sessionID := sessionOrNew(req.SessionID)
	handle, err := h.dispatcher.StartFaceMatch(r.Context(), dispatch.FaceMatchRequest{
		SessionID:   sessionID,
		Threshold:   threshold,
		KtpImage:    req.KtpImage.Binary(),
		SelfieImage: req.SelfieImage.Binary(),
	})
	h.respondJob(w, r, sessionID, handle, err)
}

func (h *Handler) StartLiveness(w http.ResponseWriter, r *http.Request) {
	var req api.LivenessRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.validate(w, validator.ValidateLiveness(&req)) {
		return
	}

	frames := make([]ekyc.BinaryImage, len(req.LivenessFrames))
	for i, f := range req.LivenessFrames {
		frames[i] = f.Binary()
	}
	sessionID := sessionOrNew(req.SessionID)
	handle, err := h.dispatcher.StartLiveness(r.Context(), dispatch.LivenessRequest{
		SessionID: sessionID,
		Gestures:  req.Gestures,
		Frames:    frames,
	})
	h.respondJob(w, r, sessionID, handle, err)
}

func (h *Handler) KtpOcr(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.KtpOcrRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.validate(w, validator.ValidateKtpOcr(&req)) {
		return
	}

	result, err := resilience.CallWithTimeout(ctx, h.ocrTimeout, "ktp ocr", func(ctx context.Context) (ekyc.KtpOcrResult, error) {
		return h.ocr.Extract(ctx, req.Image.Content, req.Locale)
	})
	if err != nil {
		logger.FromContext(ctx).Error("ktp ocr failed", "error", err)
		h.fail(w, r, ocrError(err, h.ocrTimeout), "ktp ocr failed")
		return
	}
	logger.FromContext(ctx).Info("ktp ocr completed",
		"nik_found", result.NIK != nil,
		"extra_lines", len(result.ExtraFields),
	)
	h.writeJSON(w, http.StatusOK, api.KtpOcrResponse{Result: result})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ekyc-dispatcher"})
}

func (h *Handler) respondJob(w http.ResponseWriter, r *http.Request, sessionID string, handle ekyc.AsyncJobHandle, err error) {
	log := logger.FromContext(r.Context())
	if err != nil {
		log.Error("job dispatch failed", "session_id", sessionID, "error", err)
		h.fail(w, r, err, "job dispatch failed")
		return
	}
	log.Info("job accepted", "session_id", sessionID, "job_id", handle.JobID, "queue", handle.Queue)
	h.writeJSON(w, http.StatusAccepted, api.JobResponse{SessionID: sessionID, Job: handle})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "request body too large"), "")
			return false
		}
		h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body"), "")
		return false
	}
	return true
}

// ocrError maps an OCR failure onto the API error it is reported as.
// Failures without a known cause become internal errors.
func ocrError(err error, timeout time.Duration) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout, "ktp ocr timed out after %s", timeout)
	case apperrors.HTTPStatusCode(err) == http.StatusInternalServerError:
		return apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "ktp ocr failed")
	default:
		return err
	}
}

// fail writes err's status. An AppError's message is shown to the caller;
// any other error is answered with message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := apperrors.HTTPStatusCode(err)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	logger.FromContext(r.Context()).Debug("request failed", "status_code", status, "error", err)
	h.writeError(w, status, message)
}

func (h *Handler) validate(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return false
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
	return false
}

func sessionOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
