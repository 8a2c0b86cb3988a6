// Package api defines the JSON request and response bodies of the dispatch
// HTTP API.
package api

import "github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"

// Image is a base64 encoded image with an optional MIME type.
type Image struct {
	Content  []byte `json:"content"`
	MimeType string `json:"mime_type,omitempty"`
}

func (i Image) Binary() ekyc.BinaryImage {
	return ekyc.BinaryImage{Content: i.Content, MimeType: i.MimeType}
}

// FaceMatchRequest starts a face-match job. An absent or zero threshold
// selects the service default.
type FaceMatchRequest struct {
	SessionID          string   `json:"session_id"`
	KtpImage           Image    `json:"ktp_image"`
	SelfieImage        Image    `json:"selfie_image"`
	FaceMatchThreshold *float64 `json:"face_match_threshold,omitempty"`
}

// LivenessRequest starts a liveness job.
type LivenessRequest struct {
	SessionID      string   `json:"session_id"`
	LivenessFrames []Image  `json:"liveness_frames"`
	Gestures       []string `json:"gestures"`
}

// KtpOcrRequest reads a KTP synchronously.
type KtpOcrRequest struct {
	Image  Image  `json:"image"`
	Locale string `json:"locale,omitempty"`
}

// JobResponse acknowledges a queued job.
type JobResponse struct {
	SessionID string              `json:"session_id"`
	Job       ekyc.AsyncJobHandle `json:"job"`
}

type KtpOcrResponse struct {
	Result ekyc.KtpOcrResult `json:"result"`
}
