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

import "net/http"

// StatusKind is the enumerated classification of a non-2xx HTTP status.
type StatusKind string

const (
	// KindBadRequest covers 400 responses.
	KindBadRequest StatusKind = "bad_request"
	// KindUnauthorized covers 401 responses.
	KindUnauthorized StatusKind = "unauthorized"
	// KindForbidden covers 403 responses.
	KindForbidden StatusKind = "forbidden"
	// KindNotFound covers 404 responses.
	KindNotFound StatusKind = "not_found"
	// KindRateLimited covers 429 responses.
	KindRateLimited StatusKind = "rate_limited"
	// KindServerError covers 500 responses.
	KindServerError StatusKind = "server_error"
	// KindGatewayError covers 502, 503 and 504 responses.
	KindGatewayError StatusKind = "gateway_error"
	// KindUnknown covers every other non-2xx status.
	KindUnknown StatusKind = "unknown"
)

// KindForStatus maps an HTTP status code to its StatusKind.
func KindForStatus(status int) StatusKind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusInternalServerError:
		return KindServerError
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindGatewayError
	default:
		return KindUnknown
	}
}

// TransientStatus reports whether a status code is expected to resolve
// itself on retry (429 and the retryable 5xx family).
func TransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
