package connection

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

	"github.com/yndnr/sandstore-go/internal/infra/buildinfo"
)

// TokenHeader carries the session token on every tenant request.
const TokenHeader = "X-Sandstore-Token"

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	token   string
}

// NewHTTPClient creates a new HTTP client.
func NewHTTPClient(server, token string) *HTTPClient {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Get performs a GET request. Arguments travel in the query string as one
// JSON value.
func (c *HTTPClient) Get(ctx context.Context, path string, args json.RawMessage) (*http.Response, error) {
	target := c.baseURL + path
	if len(args) > 0 {
		target += "?" + url.PathEscape(string(args))
	}
	return c.do(ctx, http.MethodGet, target, nil)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.withBody(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *HTTPClient) Put(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.withBody(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE request with a JSON body.
func (c *HTTPClient) Delete(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.withBody(ctx, http.MethodDelete, path, body)
}

func (c *HTTPClient) withBody(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		if len(b) > 0 {
			reader = bytes.NewReader(b)
		}
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, method, c.baseURL+path, reader)
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.addHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// addHeaders adds the session token and common headers.
func (c *HTTPClient) addHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Token returns the session token sent with each request.
func (c *HTTPClient) Token() string {
	return c.token
}

// SetToken replaces the session token.
func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

// APIError is an error reported by the server.
type APIError struct {
	Status int
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Status, e.Reason)
}

// ParseResponse parses a JSON response body into target. A nil target, or a
// response without content, only checks the status.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  int    `json:"error"`
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Reason != "" {
			return &APIError{Status: resp.StatusCode, Reason: errResp.Reason}
		}
		return &APIError{Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
