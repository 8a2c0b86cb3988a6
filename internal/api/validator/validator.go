// Package validator checks dispatch API requests and reports every invalid
// field at once.
package validator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/api"
)

const (
	maxSessionIDLength = 128
	maxLocaleLength    = 16
	maxFrames          = 300
	maxGestures        = 32
	maxGestureLength   = 64
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func ValidateFaceMatch(req *api.FaceMatchRequest) error {
	errs := make(map[string]string)
	checkSessionID(errs, req.SessionID)
	if len(req.KtpImage.Content) == 0 {
		errs["ktp_image"] = "ktp_image is required"
	}
	if len(req.SelfieImage.Content) == 0 {
		errs["selfie_image"] = "selfie_image is required"
	}
	if t := req.FaceMatchThreshold; t != nil && (math.IsNaN(*t) || *t > 1) {
		errs["face_match_threshold"] = "face_match_threshold must be at most 1"
	}
	return result(errs)
}

func ValidateLiveness(req *api.LivenessRequest) error {
	errs := make(map[string]string)
	checkSessionID(errs, req.SessionID)
	if len(req.LivenessFrames) > maxFrames {
		errs["liveness_frames"] = fmt.Sprintf("at most %d frames are accepted", maxFrames)
	}
	if len(req.Gestures) > maxGestures {
		errs["gestures"] = fmt.Sprintf("at most %d gestures are accepted", maxGestures)
	}
	for i, g := range req.Gestures {
		if strings.TrimSpace(g) == "" || len(g) > maxGestureLength {
			errs["gestures"] = fmt.Sprintf("gesture %d must be 1 to %d characters", i, maxGestureLength)
			break
		}
	}
	return result(errs)
}

func ValidateKtpOcr(req *api.KtpOcrRequest) error {
	errs := make(map[string]string)
	if len(req.Image.Content) == 0 {
		errs["image"] = "ktp image content is required"
	}
	if len(req.Locale) > maxLocaleLength {
		errs["locale"] = fmt.Sprintf("locale must be at most %d characters", maxLocaleLength)
	}
	return result(errs)
}

func checkSessionID(errs map[string]string, id string) {
	if len(id) > maxSessionIDLength {
		errs["session_id"] = fmt.Sprintf("session_id must be at most %d characters", maxSessionIDLength)
	}
}

func result(errs map[string]string) error {
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
