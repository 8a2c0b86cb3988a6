package ekyc

import (
	"fmt"
	"time"
)

// Message bodies as they travel through the broker. []byte fields are
// base64 encoded by encoding/json, which keeps binary payloads exact.

type FaceMatchMessage struct {
	JobID       string    `json:"job_id"`
	SessionID   string    `json:"session_id"`
	Threshold   *float64  `json:"threshold"`
	KtpImage    []byte    `json:"ktp_image"`
	SelfieImage []byte    `json:"selfie_image"`
	MimeType    *string   `json:"mime_type"`
	RequestedAt time.Time `json:"requested_at"`
}

type FaceMatchResultMessage struct {
	JobID       string    `json:"job_id"`
	SessionID   string    `json:"session_id"`
	Matched     bool      `json:"matched"`
	Similarity  float64   `json:"similarity"`
	Threshold   float64   `json:"threshold"`
	Error       *string   `json:"error"`
	CompletedAt time.Time `json:"completed_at"`
}

type LivenessMessage struct {
	JobID       string    `json:"job_id"`
	SessionID   string    `json:"session_id"`
	Gestures    []string  `json:"gestures"`
	Frames      [][]byte  `json:"frames"`
	MimeType    *string   `json:"mime_type"`
	RequestedAt time.Time `json:"requested_at"`
}

type LivenessResultMessage struct {
	JobID       string    `json:"job_id"`
	SessionID   string    `json:"session_id"`
	Passed      bool      `json:"passed"`
	Matched     []string  `json:"matched"`
	Missing     []string  `json:"missing"`
	Error       *string   `json:"error"`
	CompletedAt time.Time `json:"completed_at"`
}

func NewFaceMatchMessage(job FaceMatchJob, now time.Time) FaceMatchMessage {
	threshold := job.Threshold
	return FaceMatchMessage{
		JobID:       job.JobID,
		SessionID:   job.SessionID,
		Threshold:   &threshold,
		KtpImage:    job.KtpImage,
		SelfieImage: job.SelfieImage,
		MimeType:    optional(job.MimeType),
		RequestedAt: now.UTC(),
	}
}

// Job validates the message and converts it back into a FaceMatchJob. A
// missing threshold falls back to DefaultFaceThreshold.
func (m FaceMatchMessage) Job() (FaceMatchJob, error) {
	if m.JobID == "" {
		return FaceMatchJob{}, fmt.Errorf("face match message: missing job_id")
	}
	if m.SessionID == "" {
		return FaceMatchJob{}, fmt.Errorf("face match message %s: missing session_id", m.JobID)
	}
	threshold := DefaultFaceThreshold
	if m.Threshold != nil {
		threshold = *m.Threshold
	}
	return FaceMatchJob{
		JobID:       m.JobID,
		SessionID:   m.SessionID,
		Threshold:   threshold,
		KtpImage:    m.KtpImage,
		SelfieImage: m.SelfieImage,
		MimeType:    deref(m.MimeType),
	}, nil
}

func NewFaceMatchResultMessage(r FaceMatchResult, now time.Time) FaceMatchResultMessage {
	return FaceMatchResultMessage{
		JobID:       r.JobID,
		SessionID:   r.SessionID,
		Matched:     r.Matched,
		Similarity:  r.Similarity,
		Threshold:   r.Threshold,
		Error:       optional(r.Error),
		CompletedAt: now.UTC(),
	}
}

func NewLivenessMessage(job LivenessJob, now time.Time) LivenessMessage {
	return LivenessMessage{
		JobID:       job.JobID,
		SessionID:   job.SessionID,
		Gestures:    nonNil(job.Gestures),
		Frames:      job.Frames,
		MimeType:    optional(job.MimeType),
		RequestedAt: now.UTC(),
	}
}

// Job validates the message and converts it back into a LivenessJob.
func (m LivenessMessage) Job() (LivenessJob, error) {
	if m.JobID == "" {
		return LivenessJob{}, fmt.Errorf("liveness message: missing job_id")
	}
	if m.SessionID == "" {
		return LivenessJob{}, fmt.Errorf("liveness message %s: missing session_id", m.JobID)
	}
	return LivenessJob{
		JobID:     m.JobID,
		SessionID: m.SessionID,
		Gestures:  nonNil(m.Gestures),
		Frames:    m.Frames,
		MimeType:  deref(m.MimeType),
	}, nil
}

func NewLivenessResultMessage(r LivenessResult, now time.Time) LivenessResultMessage {
	return LivenessResultMessage{
		JobID:       r.JobID,
		SessionID:   r.SessionID,
		Passed:      r.Passed,
		Matched:     nonNil(r.MatchedGestures),
		Missing:     nonNil(r.MissingGestures),
		Error:       optional(r.Error),
		CompletedAt: now.UTC(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
