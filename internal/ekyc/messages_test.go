package ekyc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaceMatchMessagePreservesBinaryPayloads(t *testing.T) {
	ktp := make([]byte, 256)
	for i := range ktp {
		ktp[i] = byte(i)
	}
	job := FaceMatchJob{
		JobID:       "job-1",
		SessionID:   "sess-1",
		Threshold:   0.72,
		KtpImage:    ktp,
		SelfieImage: []byte{0xff, 0xd8, 0x00, 0x0a, 0x0d},
		MimeType:    "image/jpeg",
	}

	body, err := json.Marshal(NewFaceMatchMessage(job, time.Now()))
	require.NoError(t, err)

	var msg FaceMatchMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	got, err := msg.Job()
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestLivenessMessagePreservesFrames(t *testing.T) {
	job := LivenessJob{
		JobID:     "job-2",
		SessionID: "sess-2",
		Gestures:  []string{"BLINK", "TURN_LEFT"},
		Frames:    [][]byte{{0x00}, {}, {0x89, 'P', 'N', 'G'}},
	}

	body, err := json.Marshal(NewLivenessMessage(job, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"mime_type":null`)

	var msg LivenessMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	got, err := msg.Job()
	require.NoError(t, err)
	assert.Equal(t, job.Gestures, got.Gestures)
	require.Len(t, got.Frames, 3)
	assert.Equal(t, []byte{0x00}, got.Frames[0])
	assert.Empty(t, got.Frames[1])
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got.Frames[2])
}

func TestFaceMatchMessageDefaults(t *testing.T) {
	var msg FaceMatchMessage
	require.NoError(t, json.Unmarshal([]byte(`{"job_id":"j","session_id":"s","ktp_image":"AQI=","selfie_image":"AwQ="}`), &msg))
	job, err := msg.Job()
	require.NoError(t, err)
	assert.Equal(t, DefaultFaceThreshold, job.Threshold)
	assert.Equal(t, []byte{1, 2}, job.KtpImage)

	_, err = FaceMatchMessage{SessionID: "s"}.Job()
	assert.Error(t, err)
	_, err = LivenessMessage{JobID: "j"}.Job()
	assert.Error(t, err)
}

func TestResultMessagesWireShape(t *testing.T) {
	completed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	body, err := json.Marshal(NewFaceMatchResultMessage(FaceMatchResult{
		JobID: "j", SessionID: "s", Similarity: 0.9, Threshold: 0.8, Matched: true,
	}, completed))
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_id":"j","session_id":"s","matched":true,"similarity":0.9,"threshold":0.8,"error":null,"completed_at":"2026-03-01T03:00:00Z"}`, string(body))

	body, err = json.Marshal(NewLivenessResultMessage(FailedLiveness(LivenessJob{
		JobID: "j", SessionID: "s", Gestures: []string{"blink"},
	}, "detector offline"), completed))
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_id":"j","session_id":"s","passed":false,"matched":[],"missing":["BLINK"],"error":"detector offline","completed_at":"2026-03-01T03:00:00Z"}`, string(body))
}

func TestFailedFaceMatchInvariant(t *testing.T) {
	r := FailedFaceMatch(FaceMatchJob{JobID: "j", SessionID: "s", Threshold: 0.5}, "no face detected")
	assert.True(t, r.Failed())
	assert.False(t, r.Matched)
	assert.Zero(t, r.Similarity)
	assert.Equal(t, 0.5, r.Threshold)
}
