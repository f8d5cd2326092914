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

// UserVisibleError defines errors that should be displayed to end users
// with user-friendly messages and actionable suggestions.
//
// Domain-specific errors (like the filter and classifier errors) can
// implement this interface to integrate with CLI error formatting.
type UserVisibleError interface {
	error

	// IsUserVisible returns true if this error should be shown to users.
	// Internal errors or debugging details should return false.
	IsUserVisible() bool

	// UserMessage returns a user-friendly error message.
	// This should avoid technical jargon and implementation details.
	UserMessage() string

	// Suggestion returns actionable guidance for resolving the error.
	// Returns empty string if no suggestion is available.
	Suggestion() string
}

// ErrorClassifier defines methods for programmatic error handling.
// Errors that implement this interface can be classified by type
// for retry decisions, error reporting, or specific handling paths.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category.
	// Examples: "config", "credential", "transport", "api", "format"
	ErrorType() string

	// IsRetryable returns true if the operation should be retried.
	IsRetryable() bool
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier. Config problems are deterministic.
func (e *ConfigError) IsRetryable() bool { return false }

// ErrorType implements ErrorClassifier.
func (e *CredentialError) ErrorType() string { return "credential" }

// IsRetryable implements ErrorClassifier. Credential problems are not transient.
func (e *CredentialError) IsRetryable() bool { return false }

// ErrorType implements ErrorClassifier.
func (e *TokenExchangeError) ErrorType() string { return "credential" }

// IsRetryable implements ErrorClassifier.
func (e *TokenExchangeError) IsRetryable() bool { return false }

// ErrorType implements ErrorClassifier.
func (e *RequestError) ErrorType() string { return "request" }

// IsRetryable implements ErrorClassifier.
func (e *RequestError) IsRetryable() bool { return false }

// ErrorType implements ErrorClassifier.
func (e *TransportError) ErrorType() string { return "transport" }

// IsRetryable implements ErrorClassifier. Transport errors are transient but
// the retry budget has already been spent by the time one surfaces.
func (e *TransportError) IsRetryable() bool { return false }

// ErrorType implements ErrorClassifier.
func (e *APIError) ErrorType() string { return "api" }

// IsRetryable implements ErrorClassifier.
func (e *APIError) IsRetryable() bool { return false }

// ErrorType implements ErrorClassifier.
func (e *FormatError) ErrorType() string { return "format" }

// IsRetryable implements ErrorClassifier.
func (e *FormatError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *APIError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindUnauthorized:
		return "the API rejected the provided credentials"
	case KindForbidden:
		return "the credentials are valid but not permitted for this resource"
	case KindNotFound:
		return "the requested API resource does not exist"
	case KindRateLimited:
		return "the API rate limit is still exceeded after retrying"
	case KindServerError, KindGatewayError:
		return "the API is currently failing; the request was retried without success"
	default:
		return e.Error()
	}
}

// Suggestion implements UserVisibleError.
func (e *APIError) Suggestion() string {
	switch e.Kind {
	case KindUnauthorized, KindForbidden:
		return "Check the auth settings for this source and the referenced credential file."
	case KindBadRequest:
		return "Check the configured dimensions, metrics and filters against the API documentation."
	case KindRateLimited:
		return "Wait before re-running, or raise the retry delay for this source."
	default:
		return ""
	}
}

// IsUserVisible implements UserVisibleError.
func (e *CredentialError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *CredentialError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *CredentialError) Suggestion() string {
	return "Verify the credential file exists, is readable, and contains the expected fields."
}
