// Package client talks JSON to the rq REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joescharf/rq/internal/models"
)

// APIError is a non-2xx response. Info holds the server's messages, or a single
// synthesized item when the body carried none.
type APIError struct {
	StatusCode int
	Info       []models.ErrorInfo
}

func (e *APIError) Error() string {
	msgs := make([]string, 0, len(e.Info))
	for _, i := range e.Info {
		msgs = append(msgs, i.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, strings.Join(msgs, "; "))
}

// InfoOf extracts the info items carried by err. Errors that are not an
// *APIError become one error item with the error text.
func InfoOf(err error) []models.ErrorInfo {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && len(apiErr.Info) > 0 {
		return apiErr.Info
	}
	return []models.ErrorInfo{{Message: err.Error(), Type: "error"}}
}

// Client issues requests against a base URL such as "http://localhost:8420".
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured server root.
func (c *Client) BaseURL() string { return c.baseURL }

// Get fetches path and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Put sends body as JSON to path and returns the raw JSON response.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Do performs one request. A nil body sends no payload.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return json.RawMessage(data), nil
}

func newAPIError(code int, body []byte) *APIError {
	var er models.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && len(er.Info) > 0 {
		return &APIError{StatusCode: code, Info: er.Info}
	}
	return &APIError{
		StatusCode: code,
		Info:       []models.ErrorInfo{{Message: http.StatusText(code), Type: "error"}},
	}
}

// Decode unmarshals raw into a fresh T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}
