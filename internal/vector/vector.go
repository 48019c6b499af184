// Package vector pushes incident transcripts to the vector-index service for
// similarity search. Upserts are purely advisory; failures never affect
// pipeline outcomes.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const httpTimeout = 15 * time.Second

// Client posts embedding upserts to the vector-index HTTP service.
type Client struct {
	endpoint string
	client   *http.Client
}

// New creates a vector-index client for the given endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

// Upsert submits the incident's transcript for embedding and indexing.
func (c *Client) Upsert(ctx context.Context, incidentID, text string) error {
	body, err := json.Marshal(map[string]string{
		"incident_id": incidentID,
		"text":        text,
	})
	if err != nil {
		return fmt.Errorf("vector: marshal upsert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/embeddings/upsert", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("vector: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vector: post upsert: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vector: service returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
