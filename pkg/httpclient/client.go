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

package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// Outcome is the result of executing one logical request, including the
// retries spent on it. The status code and body are exposed as distinct
// typed fields; whether a given status counts as success is the caller's
// decision, not the transport's.
type Outcome struct {
	// StatusCode is the HTTP status of the final attempt.
	StatusCode int

	// Body is the fully read response body of the final attempt.
	Body []byte

	// Attempts is how many attempts were made (1 = no retries needed).
	Attempts int
}

// Client executes HTTP calls with bounded fixed-delay retry.
//
// Transient outcomes (429, 500, 502, 503, 504, and network-level failures)
// are retried up to MaxRetries times with RetryDelay between attempts.
// Every other status returns immediately. Exhausting the budget on a
// transient status returns the last outcome rather than an error, keeping
// retry policy orthogonal to error semantics.
type Client struct {
	cfg    Config
	hc     *http.Client
	logger *slog.Logger
}

// New creates a Client from the given configuration.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		},

		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.Proxy != nil {
		transport.Proxy = http.ProxyURL(cfg.Proxy)
	}

	return &Client{
		cfg: cfg,
		hc: &http.Client{
			Transport: transport,
			Timeout:   cfg.TotalTimeout,
		},
		logger: logger,
	}, nil
}

// Do executes one logical request and returns the outcome of the final
// attempt. It returns an error only for non-transport problems (an invalid
// request) or when every attempt failed at the network level, in which case
// the error is a *errors.TransportError.
func (c *Client) Do(ctx context.Context, method, rawURL string, headers http.Header, body []byte) (*Outcome, error) {
	maxAttempts := c.cfg.MaxRetries + 1

	var lastOutcome *Outcome
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		outcome, err := c.attempt(ctx, method, rawURL, headers, body)
		if err != nil {
			// The caller's context being done (signal, deadline) is a hard
			// stop, not a transient failure.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !c.isRetryableError(err) {
				return nil, err
			}

			c.logger.Warn("transient network failure",
				"url", SanitizeURL(rawURL),
				"attempt", attempt,
				"error", err)
			lastErr = err
			lastOutcome = nil
			continue
		}

		outcome.Attempts = attempt
		if !reperrors.TransientStatus(outcome.StatusCode) {
			return outcome, nil
		}

		c.logger.Warn("transient status, will retry if attempts remain",
			"url", SanitizeURL(rawURL),
			"status", outcome.StatusCode,
			"attempt", attempt)
		lastOutcome = outcome
		lastErr = nil
	}

	if lastOutcome != nil {
		// Budget exhausted on a transient status: hand the final outcome to
		// the classifier instead of raising here.
		lastOutcome.Attempts = maxAttempts
		return lastOutcome, nil
	}

	return nil, &reperrors.TransportError{
		URL:      SanitizeURL(rawURL),
		Attempts: maxAttempts,
		Cause:    lastErr,
	}
}

// attempt performs a single HTTP attempt and reads the full body.
func (c *Client) attempt(ctx context.Context, method, rawURL string, headers http.Header, body []byte) (*Outcome, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Proxy != nil {
		req.Header.Set("Proxy-Connection", "keep-alive")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Outcome{StatusCode: resp.StatusCode, Body: data}, nil
}

// isRetryableError determines if a network-level error should consume a
// retry. Context cancellation never does.
func (c *Client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// A single-attempt timeout (Client.Timeout or dial timeout) is transient;
	// the caller's own deadline is handled before this is consulted.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.isRetryableError(urlErr.Err)
	}

	// Fall back to message matching for errors the net package does not type.
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"temporary failure in name resolution",
		"eof",
	} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}

	return false
}
