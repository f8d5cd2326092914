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

// Package httpclient provides the resilient HTTP execution layer for
// reportpull: one logical request executed with bounded, fixed-delay retry
// and explicit outcome reporting.
//
// The layer deliberately does not decide success or failure. A request that
// exhausts its retry budget on 503s still yields an Outcome carrying the
// final 503; classifying that outcome is the response classifier's job.
// Only fully network-level failures (no HTTP response on any attempt)
// surface as errors, typed as *errors.TransportError.
//
// # Retry behavior
//
// Transient statuses are 429, 500, 502, 503 and 504. Network-level failures
// (connection refused, reset, timeout, DNS) count against the same budget.
// The delay between attempts is fixed, not exponential; worst-case retry
// wall clock is bounded by RetryDelay * MaxRetries plus the per-attempt
// timeouts.
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "reportpull/1.0"
//	client, err := httpclient.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	outcome, err := client.Do(ctx, http.MethodPost, url, headers, body)
package httpclient
