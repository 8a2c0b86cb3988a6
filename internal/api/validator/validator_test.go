package validator

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/api"
)

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	return ve.Fields
}

func ptr(f float64) *float64 { return &f }

func TestValidateFaceMatch(t *testing.T) {
	ok := api.FaceMatchRequest{
		KtpImage:    api.Image{Content: []byte{1}},
		SelfieImage: api.Image{Content: []byte{2}},
	}
	assert.NoError(t, ValidateFaceMatch(&ok))

	negative := ok
	negative.FaceMatchThreshold = ptr(-1)
	assert.NoError(t, ValidateFaceMatch(&negative))

	f := fields(t, ValidateFaceMatch(&api.FaceMatchRequest{
		SessionID:          strings.Repeat("x", 200),
		FaceMatchThreshold: ptr(1.5),
	}))
	assert.Len(t, f, 4)
	assert.Contains(t, f, "ktp_image")
	assert.Contains(t, f, "selfie_image")
	assert.Contains(t, f, "session_id")
	assert.Contains(t, f, "face_match_threshold")

	nan := ok
	nan.FaceMatchThreshold = ptr(math.NaN())
	assert.Contains(t, fields(t, ValidateFaceMatch(&nan)), "face_match_threshold")
}

func TestValidateLiveness(t *testing.T) {
	assert.NoError(t, ValidateLiveness(&api.LivenessRequest{}))
	assert.NoError(t, ValidateLiveness(&api.LivenessRequest{
		Gestures:       []string{"blink"},
		LivenessFrames: []api.Image{{Content: []byte{1}}},
	}))

	f := fields(t, ValidateLiveness(&api.LivenessRequest{
		Gestures:       []string{"blink", " "},
		LivenessFrames: make([]api.Image, 301),
	}))
	assert.Contains(t, f, "gestures")
	assert.Contains(t, f, "liveness_frames")
}

func TestValidateKtpOcr(t *testing.T) {
	assert.NoError(t, ValidateKtpOcr(&api.KtpOcrRequest{Image: api.Image{Content: []byte{1}}, Locale: "id"}))

	err := ValidateKtpOcr(&api.KtpOcrRequest{Locale: strings.Repeat("e", 20)})
	f := fields(t, err)
	assert.Contains(t, f, "image")
	assert.Contains(t, f, "locale")
	assert.Equal(t, "image:ktp image content is required; locale:locale must be at most 16 characters", err.Error())
}
