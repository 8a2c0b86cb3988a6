// Package report delivers evaluation outcomes: the result message on the
// broker first, then a best-effort summary to case management and, for
// liveness, the rebuilt session video to the media store.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/resilience"
)

// Case-management vocabulary.
const (
	StepIDVsSelfie = "ID_VS_SELFIE"

	ResultPass    = "PASS"
	ResultFail    = "FAIL"
	ResultMissing = "MISSING"

	StatusDone   = "DONE"
	StatusFailed = "FAILED"
)

type Metadata struct {
	JobID string  `json:"jobId"`
	Error *string `json:"error"`
}

type FaceCheck struct {
	Step            string   `json:"step"`
	SimilarityScore float64  `json:"similarityScore"`
	Threshold       float64  `json:"threshold"`
	Result          string   `json:"result"`
	RawMetadata     Metadata `json:"rawMetadata"`
}

type FaceChecksPayload struct {
	Checks        []FaceCheck `json:"checks"`
	OverallResult string      `json:"overallResult"`
	Status        string      `json:"status"`
}

type LivenessPayload struct {
	OverallResult    string            `json:"overallResult"`
	PerGestureResult map[string]string `json:"perGestureResult"`
	RecordedVideoURL *string           `json:"recordedVideoUrl"`
	Status           string            `json:"status"`
	RawMetadata      Metadata          `json:"rawMetadata"`
}

// BackofficeClient posts verification summaries to case management.
type BackofficeClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewBackofficeClient creates a client for the case-management API at
// baseURL. A nil breaker disables circuit breaking.
func NewBackofficeClient(baseURL string, timeout time.Duration, breaker *resilience.CircuitBreaker) *BackofficeClient {
	return &BackofficeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

func (c *BackofficeClient) RecordFaceChecks(ctx context.Context, sessionID string, p FaceChecksPayload) error {
	return c.post(ctx, "/api/ekyc/sessions/"+url.PathEscape(sessionID)+"/face-checks", p)
}

func (c *BackofficeClient) RecordLiveness(ctx context.Context, sessionID string, p LivenessPayload) error {
	return c.post(ctx, "/api/ekyc/sessions/"+url.PathEscape(sessionID)+"/liveness", p)
}

func (c *BackofficeClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", path, err)
	}
	return guard(ctx, c.breaker, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request %s: %w", path, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("calling backoffice %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("backoffice %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

func guard(ctx context.Context, breaker *resilience.CircuitBreaker, fn func(context.Context) error) error {
	if breaker == nil {
		return fn(ctx)
	}
	return breaker.Execute(ctx, fn)
}
