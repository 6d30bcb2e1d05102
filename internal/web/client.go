package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultClientTimeout = 10 * time.Second

// Client publishes points to a map server.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a client for the map server at baseURL. A nil
// httpClient selects a client with a default timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	endpoint, err := url.JoinPath(baseURL, setPointRoute)
	if err != nil {
		return nil, fmt.Errorf("invalid map server url '%s': %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{endpoint: endpoint, client: httpClient}, nil
}

// Publish sends p to the map server.
func (c *Client) Publish(ctx context.Context, p Point) (err error) {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding point: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting point: %w", err)
	}
	defer func() {
		if cErr := resp.Body.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("map server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
