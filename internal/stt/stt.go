// Package stt is the client for the external speech-to-text service.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Unavailable is the sentinel transcript returned to API callers when
// transcription cannot be performed.
const Unavailable = "transcription not available"

const httpTimeout = 30 * time.Second

// Client posts raw audio to a transcription HTTP service.
type Client struct {
	endpoint string
	client   *http.Client
}

// New creates a transcription client for the given endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

// Transcribe sends the audio payload and returns the transcript. The pipeline
// treats any error as a degraded stage, never a pipeline failure.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/transcribe", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("stt: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: post audio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("stt: service returned %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("stt: decode response: %w", err)
	}
	return out.Transcript, nil
}
