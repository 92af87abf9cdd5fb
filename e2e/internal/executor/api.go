package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIClient reads from the twins HTTP API
type APIClient struct {
	base string
	http *http.Client
}

// NewAPIClient returns a client rooted at baseURL
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Get fetches path and returns {"status": code, "body": decoded JSON}.
// Non-2xx responses are not errors; scenarios assert on the status.
func (c *APIClient) Get(ctx context.Context, path string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var body interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}

	return map[string]interface{}{
		"status": resp.StatusCode,
		"body":   body,
	}, nil
}
