package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to a control server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. An empty baseURL
// targets the default port on localhost.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", DefaultPort)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// SetTestName switches the server's ambient test name. An empty name clears
// it.
func (c *Client) SetTestName(ctx context.Context, name string) error {
	payload, err := json.Marshal(map[string]string{"testName": name})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+TestOptionsPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to set test name: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to set test name: unexpected status %d", res.StatusCode)
	}
	return nil
}
