// Package geo reverse-geocodes coordinates via the Google Geocoding API.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"
	httpTimeout    = 10 * time.Second
)

// Client resolves coordinates to human-readable addresses. Enrichment is
// best-effort; callers fall back to a raw coordinate link on any error.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a geocoding client with the given API key.
func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// ReverseGeocode returns the formatted address for the coordinates.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("latlng", fmt.Sprintf("%f,%f", lat, lon))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("geo: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo: get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geo: service returned %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
		} `json:"results"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("geo: decode response: %w", err)
	}

	if out.Status != "OK" || len(out.Results) == 0 {
		if out.ErrorMessage != "" {
			return "", fmt.Errorf("geo: %s: %s", out.Status, out.ErrorMessage)
		}
		return "", fmt.Errorf("geo: %s", out.Status)
	}
	return out.Results[0].FormattedAddress, nil
}
