// Package ekyc holds the job and result model of the verification pipeline
// and its wire encoding on the broker.
package ekyc

import "strings"

// Job types double as the x-job-type header values.
const (
	JobTypeFaceMatch       = "face_match"
	JobTypeFaceMatchResult = "face_match.result"
	JobTypeLiveness        = "liveness"
	JobTypeLivenessResult  = "liveness.result"
)

// HeaderJobType is the message header carrying the job type.
const HeaderJobType = "x-job-type"

// DefaultFaceThreshold applies when a request or a message carries no
// threshold.
const DefaultFaceThreshold = 0.8

// BinaryImage is a raw image payload. The pipeline never decodes it except
// to rebuild liveness videos.
type BinaryImage struct {
	Content  []byte
	MimeType string
}

// FaceMatchJob asks whether the selfie shows the person on the KTP.
type FaceMatchJob struct {
	JobID       string
	SessionID   string
	Threshold   float64
	KtpImage    []byte
	SelfieImage []byte
	MimeType    string
}

// FaceMatchResult is the outcome of a FaceMatchJob. A non-empty Error means
// the evaluation failed: Similarity is 0 and Matched is false.
type FaceMatchResult struct {
	JobID      string
	SessionID  string
	Similarity float64
	Threshold  float64
	Matched    bool
	Error      string
}

// Failed reports whether the evaluation itself failed.
func (r FaceMatchResult) Failed() bool { return r.Error != "" }

// FailedFaceMatch builds the terminal result of a failed evaluation.
func FailedFaceMatch(job FaceMatchJob, msg string) FaceMatchResult {
	return FaceMatchResult{
		JobID:     job.JobID,
		SessionID: job.SessionID,
		Threshold: job.Threshold,
		Error:     msg,
	}
}

// LivenessJob asks whether Frames show Gestures performed in order.
type LivenessJob struct {
	JobID     string
	SessionID string
	Gestures  []string
	Frames    [][]byte
	MimeType  string
}

// LivenessResult is the outcome of a LivenessJob. Passed holds exactly when
// no gesture is missing and Error is empty.
type LivenessResult struct {
	JobID           string
	SessionID       string
	Passed          bool
	MatchedGestures []string
	MissingGestures []string
	Error           string
}

// Failed reports whether the evaluation itself failed.
func (r LivenessResult) Failed() bool { return r.Error != "" }

// FailedLiveness builds the terminal result of a failed evaluation: every
// expected gesture is reported missing.
func FailedLiveness(job LivenessJob, msg string) LivenessResult {
	return LivenessResult{
		JobID:           job.JobID,
		SessionID:       job.SessionID,
		MatchedGestures: []string{},
		MissingGestures: NormalizeGestures(job.Gestures),
		Error:           msg,
	}
}

// NormalizeGestures upper-cases every label, keeping order.
func NormalizeGestures(gestures []string) []string {
	out := make([]string, len(gestures))
	for i, g := range gestures {
		out[i] = strings.ToUpper(g)
	}
	return out
}

// AsyncJobHandle is the dispatch receipt returned to the caller. It says the
// job was queued, not that it completed.
type AsyncJobHandle struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

// KtpOcrResult holds the identity fields read off a KTP. Every field is
// optional; nil means the field was not found.
type KtpOcrResult struct {
	NIK           *string           `json:"nik"`
	Name          *string           `json:"name"`
	BirthPlace    *string           `json:"birth_place"`
	BirthDate     *string           `json:"birth_date"`
	Gender        *string           `json:"gender"`
	BloodType     *string           `json:"blood_type"`
	Address       *string           `json:"address"`
	RtRw          *string           `json:"rt_rw"`
	Village       *string           `json:"village"`
	SubDistrict   *string           `json:"sub_district"`
	Religion      *string           `json:"religion"`
	MaritalStatus *string           `json:"marital_status"`
	Occupation    *string           `json:"occupation"`
	Citizenship   *string           `json:"citizenship"`
	IssueDate     *string           `json:"issue_date"`
	RawText       string            `json:"raw_text"`
	ExtraFields   map[string]string `json:"extra_fields"`
}
