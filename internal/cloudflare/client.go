// Package cloudflare provides a small client for the Cloudflare v4 REST API,
// covering the R2 bucket and token endpoints the CLI needs.
package cloudflare

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

// DefaultBaseURL is the public Cloudflare API root
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// Client talks to the Cloudflare API on behalf of one account.
type Client struct {
	baseURL    string
	accountID  string
	token      string
	httpClient *http.Client
}

// Option customizes a Client
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the given account and API token.
func New(accountID, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		accountID: accountID,
		token:     token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccountID returns the account the client was created for
func (c *Client) AccountID() string {
	return c.accountID
}

// response is the envelope every v4 endpoint returns.
type response struct {
	Success  bool              `json:"success"`
	Errors   []APIError        `json:"errors"`
	Messages []json.RawMessage `json:"messages"`
	Result   json.RawMessage   `json:"result"`
}

// do performs an HTTP request and decodes the envelope's result into result.
// hint names the operation in error messages.
func (c *Client) do(ctx context.Context, method, path, hint string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("request for '%s' could not be set up: %w", hint, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response text: %w", err)
	}

	var env response
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &ResponseError{Hint: hint, StatusCode: resp.StatusCode, Errors: []APIError{{Message: string(respBody)}}}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !env.Success || resp.StatusCode >= 400 {
		return &ResponseError{Hint: hint, StatusCode: resp.StatusCode, Errors: env.Errors}
	}

	if result == nil {
		return nil
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return fmt.Errorf("expected result data for '%s' but got none", hint)
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, hint string, result any) error {
	return c.do(ctx, http.MethodGet, path, hint, nil, result)
}

func (c *Client) delete(ctx context.Context, path, hint string, result any) error {
	return c.do(ctx, http.MethodDelete, path, hint, nil, result)
}

func (c *Client) r2Path(rest string) string {
	return "/accounts/" + url.PathEscape(c.accountID) + "/r2/" + rest
}
