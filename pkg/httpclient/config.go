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
	"fmt"
	"net/url"
	"time"
)

// Config configures the HTTP execution layer with timeout, retry, and proxy
// settings.
type Config struct {
	// MaxRetries is the maximum number of retries after the initial attempt
	// (0 = single attempt, no retries).
	// Default: 3. Must be >= 0.
	MaxRetries int

	// RetryDelay is the fixed delay between attempts. The delay is constant,
	// not exponential: report APIs rate-limit on fixed windows and a report
	// extraction has no tail-latency budget to amortize.
	// Default: 5s. Must be > 0 if MaxRetries > 0.
	RetryDelay time.Duration

	// ConnectTimeout bounds dialing a single connection.
	// Default: 30s. Must be > 0.
	ConnectTimeout time.Duration

	// TotalTimeout bounds a single attempt end to end (dial, send, read).
	// Default: 60s. Must be > 0.
	TotalTimeout time.Duration

	// UserAgent is the User-Agent header value.
	// Required. Must be non-empty.
	UserAgent string

	// Proxy is an optional forward proxy for all requests.
	// When set, requests carry a Proxy-Connection: keep-alive header.
	Proxy *url.URL
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		ConnectTimeout: 30 * time.Second,
		TotalTimeout:   60 * time.Second,
		UserAgent:      "reportpull/1.0",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}

	if c.MaxRetries > 0 && c.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be > 0 when max_retries > 0, got %v", c.RetryDelay)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be > 0, got %v", c.ConnectTimeout)
	}

	if c.TotalTimeout <= 0 {
		return fmt.Errorf("total_timeout must be > 0, got %v", c.TotalTimeout)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}

	return nil
}
