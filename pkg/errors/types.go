// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
)

// ConfigError represents configuration problems.
// Use this for missing required source settings, unknown auth types, or
// invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "base_url", "auth.type")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// CredentialError represents failures resolving credential material:
// unreadable or malformed credential files, incomplete service-account
// descriptors. Credential problems are deterministic, so they are never
// retried; resolution fails closed rather than falling back to another
// credential source.
type CredentialError struct {
	// Source identifies where the credential came from (a file path or "static")
	Source string

	// Reason explains what's wrong with the credential material
	Reason string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("credential error (%s): %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("credential error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CredentialError) Unwrap() error {
	return e.Cause
}

// TokenExchangeError represents a failed JWT-bearer token exchange.
// The token endpoint either returned an error payload or a response
// without an access token.
type TokenExchangeError struct {
	// Endpoint is the token endpoint URL
	Endpoint string

	// StatusCode is the HTTP status returned by the endpoint (if any)
	StatusCode int

	// Message is the error description from the endpoint, or a summary
	Message string
}

// Error implements the error interface.
func (e *TokenExchangeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("token exchange with %s failed [HTTP %d]: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("token exchange with %s failed: %s", e.Endpoint, e.Message)
}

// RequestError represents request construction failures: invalid filter
// syntax, unknown operators, or an invalid date format or range. These are
// caught before any network activity and are never retried.
type RequestError struct {
	// Field identifies which part of the request failed validation
	Field string

	// Reason is the human-readable error description
	Reason string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// TransportError represents network-level failures that survived the retry
// budget: connection refused, timeouts, DNS failures.
type TransportError struct {
	// URL is the sanitized request URL
	URL string

	// Attempts is how many attempts were made before giving up
	Attempts int

	// Cause is the final underlying error
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// APIError represents an error surfaced by the remote API: a non-2xx status
// after retries were exhausted, or a 2xx body carrying an application-level
// error field. The response body is kept for diagnostics.
type APIError struct {
	// Kind is the enumerated status classification
	Kind StatusKind

	// StatusCode is the HTTP status code
	StatusCode int

	// Body is the raw response body (may be empty)
	Body string

	// Message is an optional application-level error description
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("api error: %s [HTTP %d]", e.Kind, e.StatusCode)
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: %s", msg, truncateBody(e.Body))
	}
	return msg
}

// FormatError represents an unparseable or structurally invalid response,
// or a response that cannot be converted to tabular form.
type FormatError struct {
	// Reason explains what was wrong with the payload shape
	Reason string

	// Cause is the underlying error (e.g., a JSON decode error)
	Cause error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("format error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *FormatError) Unwrap() error {
	return e.Cause
}

// maxBodyInError bounds how much response body is embedded in error text.
const maxBodyInError = 512

func truncateBody(body string) string {
	if len(body) <= maxBodyInError {
		return body
	}
	return body[:maxBodyInError] + "...(truncated)"
}
