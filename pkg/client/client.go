/*
Copyright 2024-2025 the Unikorn Authors.
Copyright 2026 Nscale.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/unikorn-cloud/dcos-harness/pkg/constants"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Options configure a client.
type Options struct {
	// Timeout bounds a single request, zero means no timeout.
	Timeout time.Duration
	// LogRequests logs every request and its resulting status.
	LogRequests bool
	// LogResponses logs response bodies.
	LogResponses bool
	// Transport overrides the default round tripper.
	Transport http.RoundTripper
}

// Client is a thin JSON over HTTP client rooted at a base URL.
type Client struct {
	baseURL string
	query   url.Values
	client  *http.Client
	auth    Authorizer
	options Options
}

// New returns a new client for the given base URL.
func New(baseURL string, options *Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}

	if options == nil {
		options = &Options{}
	}

	c := &Client{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		options: *options,
	}

	c.client = c.newHTTPClient()

	return c, nil
}

func (c *Client) newHTTPClient() *http.Client {
	// cookiejar.New never returns an error with nil options.
	jar, _ := cookiejar.New(nil)

	return &http.Client{
		Timeout:   c.options.Timeout,
		Transport: c.options.Transport,
		Jar:       jar,
	}
}

// BaseURL returns the URL all request paths are appended to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthorizer installs the authorizer applied to every request, nil
// removes authorization.
func (c *Client) SetAuthorizer(auth Authorizer) {
	c.auth = auth
}

// Authorizer returns the current authorizer.
func (c *Client) Authorizer() Authorizer {
	return c.auth
}

// Copy returns a new client with the same base URL and authorization but
// without any cookies.
func (c *Client) Copy() *Client {
	out := c.clone()
	out.client = out.newHTTPClient()

	return out
}

// WithPath returns a client sharing this one's connection state, but rooted at
// the given path beneath the current base URL.
func (c *Client) WithPath(path string) *Client {
	out := c.clone()
	out.baseURL = c.baseURL + "/" + strings.Trim(path, "/")

	return out
}

// WithBaseURL returns a client sharing this one's connection state, but
// rooted at a different base URL.
func (c *Client) WithBaseURL(baseURL string) *Client {
	out := c.clone()
	out.baseURL = strings.TrimSuffix(baseURL, "/")

	return out
}

// WithQuery returns a client that adds the given query parameters to every
// request.
func (c *Client) WithQuery(query url.Values) *Client {
	out := c.clone()
	out.query = url.Values{}

	for k, v := range c.query {
		out.query[k] = append([]string(nil), v...)
	}

	for k, v := range query {
		out.query[k] = append(out.query[k], v...)
	}

	return out
}

func (c *Client) clone() *Client {
	out := *c

	return &out
}

func (c *Client) requestURL(path string, query url.Values) (string, error) {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parsing request URL: %w", err)
	}

	if len(c.query) == 0 && len(query) == 0 {
		return u.String(), nil
	}

	values := u.Query()

	for k, v := range c.query {
		for _, s := range v {
			values.Add(k, s)
		}
	}

	for k, v := range query {
		for _, s := range v {
			values.Add(k, s)
		}
	}

	u.RawQuery = values.Encode()

	return u.String(), nil
}

// Do performs a request and buffers the response.  The body, if not nil, is
// encoded as JSON.  A non-nil error is only returned when no response was
// received, status codes are left for the caller to interpret.
//
//nolint:cyclop
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	log := log.FromContext(ctx)

	fullURL, err := c.requestURL(path, query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	trace := newTraceContext()
	trace.inject(req.Header)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", constants.VersionString())

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.auth != nil {
		c.auth.Authorize(req)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		log.V(1).Info("http request failed", "method", method, "url", fullURL, "duration", duration, "traceID", trace.traceID, "error", err.Error())

		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequest, method, path, err)
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if c.options.LogRequests {
		log.Info("http request", "method", method, "url", fullURL, "status", resp.StatusCode, "duration", duration, "traceID", trace.traceID)
	}

	if c.options.LogResponses && len(respBody) > 0 {
		log.Info("http response", "method", method, "url", fullURL, "body", string(respBody))
	}

	response := &Response{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		TraceID:    trace.traceID,
	}

	return response, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, query, nil)
}

// GetJSON performs a GET request, asserts a successful status and decodes
// the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}

	if err := resp.Err(); err != nil {
		return err
	}

	return resp.JSON(out)
}
