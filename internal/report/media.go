package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/resilience"
)

// MediaClient uploads files to the media store.
type MediaClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

func NewMediaClient(baseURL string, timeout time.Duration, breaker *resilience.CircuitBreaker) *MediaClient {
	return &MediaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// Upload posts data as the multipart field "file" and returns the URL the
// store assigned to it.
func (c *MediaClient) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mpw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("creating multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing multipart part: %w", err)
	}
	if err := mpw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	var location string
	err = guard(ctx, c.breaker, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/media", bytes.NewReader(body.Bytes()))
		if err != nil {
			return fmt.Errorf("creating upload request: %w", err)
		}
		req.Header.Set("Content-Type", mpw.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("uploading %s: %w", filename, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("media upload returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		var out struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decoding upload response: %w", err)
		}
		if out.URL == "" {
			return fmt.Errorf("media upload response has no url")
		}
		location = out.URL
		return nil
	})
	if err != nil {
		return "", err
	}
	return location, nil
}
