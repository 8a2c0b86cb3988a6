package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/api"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/dispatch"
	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
	apperrors "github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/errors"
)

type fakeDispatcher struct {
	err       error
	faceMatch []dispatch.FaceMatchRequest
	liveness  []dispatch.LivenessRequest
}

func (d *fakeDispatcher) StartFaceMatch(_ context.Context, req dispatch.FaceMatchRequest) (ekyc.AsyncJobHandle, error) {
	if d.err != nil {
		return ekyc.AsyncJobHandle{}, d.err
	}
	d.faceMatch = append(d.faceMatch, req)
	return ekyc.AsyncJobHandle{JobID: "job-fm", Queue: "ekyc.face_match"}, nil
}

func (d *fakeDispatcher) StartLiveness(_ context.Context, req dispatch.LivenessRequest) (ekyc.AsyncJobHandle, error) {
	if d.err != nil {
		return ekyc.AsyncJobHandle{}, d.err
	}
	d.liveness = append(d.liveness, req)
	return ekyc.AsyncJobHandle{JobID: "job-lv", Queue: "ekyc.liveness"}, nil
}

type fakeOCR struct {
	delay  time.Duration
	err    error
	locale string
}

func (o *fakeOCR) Extract(ctx context.Context, image []byte, locale string) (ekyc.KtpOcrResult, error) {
	o.locale = locale
	if o.err != nil {
		return ekyc.KtpOcrResult{}, o.err
	}
	select {
	case <-time.After(o.delay):
	case <-ctx.Done():
		return ekyc.KtpOcrResult{}, ctx.Err()
	}
	nik := "3201234567890123"
	return ekyc.KtpOcrResult{NIK: &nik, RawText: string(image), ExtraFields: map[string]string{}}, nil
}

func post(h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", &buf))
	return rec
}

func TestStartFaceMatchAccepted(t *testing.T) {
	d := &fakeDispatcher{}
	h := New(d, &fakeOCR{}, time.Second)

	rec := post(h.StartFaceMatch, api.FaceMatchRequest{
		SessionID:   "sess-1",
		KtpImage:    api.Image{Content: []byte{1}, MimeType: "image/jpeg"},
		SelfieImage: api.Image{Content: []byte{2}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp api.JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "job-fm", resp.Job.JobID)
	assert.Equal(t, "ekyc.face_match", resp.Job.Queue)

	require.Len(t, d.faceMatch, 1)
	assert.Nil(t, d.faceMatch[0].Threshold)
	assert.Equal(t, "image/jpeg", d.faceMatch[0].KtpImage.MimeType)
}

func TestStartFaceMatchThreshold(t *testing.T) {
	tests := []struct {
		body string
		want *float64
	}{
		{`{"ktp_image":{"content":"AQ=="},"selfie_image":{"content":"Ag=="},"face_match_threshold":0}`, nil},
		{`{"ktp_image":{"content":"AQ=="},"selfie_image":{"content":"Ag=="},"face_match_threshold":0.65}`, ptr(0.65)},
	}
	for _, tt := range tests {
		d := &fakeDispatcher{}
		rec := post(New(d, nil, 0).StartFaceMatch, tt.body)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, tt.want, d.faceMatch[0].Threshold)
	}
}

func ptr(f float64) *float64 { return &f }

func TestStartFaceMatchGeneratesSessionID(t *testing.T) {
	d := &fakeDispatcher{}
	rec := post(New(d, nil, 0).StartFaceMatch, api.FaceMatchRequest{
		KtpImage:    api.Image{Content: []byte{1}},
		SelfieImage: api.Image{Content: []byte{2}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	_, err := uuid.Parse(d.faceMatch[0].SessionID)
	assert.NoError(t, err)
}

func TestStartFaceMatchValidation(t *testing.T) {
	d := &fakeDispatcher{}
	rec := post(New(d, nil, 0).StartFaceMatch, api.FaceMatchRequest{SessionID: "s"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "validation failed", resp.Error)
	assert.Contains(t, resp.Fields, "ktp_image")
	assert.Contains(t, resp.Fields, "selfie_image")
	assert.Empty(t, d.faceMatch)
}

func TestInvalidJSON(t *testing.T) {
	rec := post(New(&fakeDispatcher{}, nil, 0).StartLiveness, `{"gestures":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid JSON body"}`, rec.Body.String())
}

func TestStartLiveness(t *testing.T) {
	d := &fakeDispatcher{}
	rec := post(New(d, nil, 0).StartLiveness, api.LivenessRequest{
		SessionID:      "sess-2",
		Gestures:       []string{"blink", "smile"},
		LivenessFrames: []api.Image{{Content: []byte{1}, MimeType: "image/png"}, {Content: []byte{2}}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, d.liveness, 1)
	assert.Equal(t, []string{"blink", "smile"}, d.liveness[0].Gestures)
	assert.Len(t, d.liveness[0].Frames, 2)
	assert.Equal(t, "image/png", d.liveness[0].Frames[0].MimeType)
}

func TestDispatchFailureStatus(t *testing.T) {
	d := &fakeDispatcher{err: fmt.Errorf("%w: broker down", apperrors.ErrDispatchFailed)}
	rec := post(New(d, nil, 0).StartLiveness, api.LivenessRequest{})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"job dispatch failed"}`, rec.Body.String())
}

func TestKtpOcr(t *testing.T) {
	ocr := &fakeOCR{}
	rec := post(New(nil, ocr, time.Second).KtpOcr, api.KtpOcrRequest{
		Image:  api.Image{Content: []byte("NIK 3201234567890123")},
		Locale: "id",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id", ocr.locale)

	body := rec.Body.String()
	var resp api.KtpOcrResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.NotNil(t, resp.Result.NIK)
	assert.Equal(t, "3201234567890123", *resp.Result.NIK)
	assert.Nil(t, resp.Result.Name)
	assert.Contains(t, body, `"name":null`)
}

func TestKtpOcrTimeout(t *testing.T) {
	rec := post(New(nil, &fakeOCR{delay: time.Second}, 20*time.Millisecond).KtpOcr, api.KtpOcrRequest{
		Image: api.Image{Content: []byte{1}},
	})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.JSONEq(t, `{"error":"ktp ocr timed out after 20ms"}`, rec.Body.String())
}

func TestKtpOcrFailureStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unclassified", errors.New("reader returned garbage"), http.StatusInternalServerError},
		{"sidecar unreachable", fmt.Errorf("%w: dial tcp: refused", apperrors.ErrUpstream), http.StatusBadGateway},
		{"provider error", fmt.Errorf("%w: model not loaded", apperrors.ErrProviderFailed), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(New(nil, &fakeOCR{err: tt.err}, time.Second).KtpOcr, api.KtpOcrRequest{
				Image: api.Image{Content: []byte{1}},
			})
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, `{"error":"ktp ocr failed"}`, rec.Body.String())
		})
	}
}

func TestKtpOcrRequiresImage(t *testing.T) {
	rec := post(New(nil, &fakeOCR{}, 0).KtpOcr, api.KtpOcrRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
