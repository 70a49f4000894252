// Package client is a Go client for the gmshgen API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8000"
	apiPrefix      = "api/v1"
	// Pipeline calls wait for the engine, so the default is generous.
	defaultTimeout = 10 * time.Minute
	userAgent      = "gmshgen-go-client/1.0.0"
)

// Client talks to a gmshgen server. baseURL is the server root, without the
// /api/v1 prefix.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	authToken  string
	userAgent  string
}

func NewClient(baseURL string, opts ...Option) *Client {
	parsedURL, err := url.Parse(baseURL)
	if err != nil || parsedURL.Host == "" {
		parsedURL, _ = url.Parse(defaultBaseURL)
	}
	parsedURL.Path = strings.TrimSuffix(parsedURL.Path, "/")

	c := &Client{
		baseURL:    parsedURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  userAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) url(requestPath string, query url.Values) *url.URL {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimPrefix(requestPath, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return &u
}

func (c *Client) doRequest(ctx context.Context, method, requestPath string, body any, query url.Values) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(requestPath, query).String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

// doJSON performs a request and decodes the JSON response into result.
func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, result any, query url.Values) error {
	resp, err := c.doRequest(ctx, method, requestPath, body, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return handleErrorResponse(resp)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// doCopy streams a successful response body into w.
func (c *Client) doCopy(ctx context.Context, requestPath string, w io.Writer) (int64, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, requestPath, nil, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, handleErrorResponse(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read response body: %w", err)
	}
	return n, nil
}

// apiPath joins unescaped segments under the API prefix. url.URL escapes the
// result when the request is built.
func apiPath(segments ...string) string {
	return path.Join(append([]string{apiPrefix}, segments...)...)
}
