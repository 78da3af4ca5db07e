package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiClient wraps the request plumbing shared by the deposition-style
// adapters: base-URL joining, auth headers, JSON round-trips, and mapping
// non-success responses to APIError.
type apiClient struct {
	base       string
	authScheme string // "token" (figshare) or "Bearer" (zenodo)
	token      string
	http       *http.Client
}

func newAPIClient(base, authScheme string) *apiClient {
	return &apiClient{
		base:       strings.TrimSuffix(base, "/"),
		authScheme: authScheme,
		http:       newHTTPClient(),
	}
}

// url joins an endpoint with the base URL. Absolute URLs (upload
// locations, bucket links) pass through untouched.
func (c *apiClient) url(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return c.base + "/" + strings.TrimPrefix(endpoint, "/")
}

// do issues a request with the auth header set and returns the response
// if it has a success status. Other statuses are drained into APIError,
// with 401/403 additionally marked ErrAuth.
func (c *apiClient) do(ctx context.Context, method, endpoint string, contentType string, body io.Reader, contentLength int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentLength > 0 {
		req.ContentLength = contentLength
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.authScheme+" "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, endpoint, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrAuth, apiErr)
	}
	return nil, apiErr
}

// doJSON issues a request with an optional JSON body, decoding the JSON
// response into out when out is non-nil.
func (c *apiClient) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, endpoint, contentType, body, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}
