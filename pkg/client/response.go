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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidURL is raised when a base URL lacks a scheme or host.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrRequest is raised when no response could be read from the server.
	ErrRequest = errors.New("http request failed")
)

// Response is a fully buffered HTTP response.
type Response struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
	TraceID    string
}

// OK returns true for any 2XX status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the body into out.
func (r *Response) JSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("unmarshaling %s %s response: %w", r.Method, r.Path, err)
	}

	return nil
}

// Err returns a *StatusError if the status is not 2XX.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}

	return &StatusError{
		Method:     r.Method,
		Path:       r.Path,
		StatusCode: r.StatusCode,
		Body:       string(r.Body),
		TraceID:    r.TraceID,
	}
}

// StatusError is returned when the server responds with an unexpected status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	TraceID    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code %d, body: %s (trace ID: %s)", e.Method, e.Path, e.StatusCode, e.Body, e.TraceID)
}

// StatusCode extracts the HTTP status from an error chain, if present.
func StatusCode(err error) (int, bool) {
	var statusError *StatusError

	if !errors.As(err, &statusError) {
		return 0, false
	}

	return statusError.StatusCode, true
}

// IsStatus returns true if the error chain contains a *StatusError with
// the given code.
func IsStatus(err error, code int) bool {
	actual, ok := StatusCode(err)

	return ok && actual == code
}

// IsRequestError returns true when the error was caused by a failure to
// reach the server at all.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrRequest)
}
