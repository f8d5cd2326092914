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

// Package classify validates the shape of an HTTP outcome and produces a
// typed payload.
//
// Retries are already exhausted by the time an outcome reaches this layer:
// a non-2xx status here is final and maps to the fixed error taxonomy. For
// 2xx outcomes the body must be a JSON object, a JSON array, or CSV text;
// a 2xx body carrying an error field is an application-level failure
// distinct from HTTP-level failure.
package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	reperrors "github.com/tombee/reportpull/pkg/errors"
	"github.com/tombee/reportpull/pkg/httpclient"
)

// PayloadKind discriminates the accepted response shapes.
type PayloadKind string

const (
	// KindJSONObject is a single top-level JSON object.
	KindJSONObject PayloadKind = "json_object"
	// KindJSONArray is a top-level JSON array.
	KindJSONArray PayloadKind = "json_array"
	// KindCSV is comma-separated text with at least two lines.
	KindCSV PayloadKind = "csv"
)

// Payload is a validated 2xx response body.
type Payload struct {
	// Kind is the detected shape.
	Kind PayloadKind

	// JSON holds the decoded value for the JSON kinds
	// (map[string]interface{} or []interface{}).
	JSON interface{}

	// Raw is the unmodified body bytes.
	Raw []byte
}

// EmptyResponseError reports a 2xx outcome with a zero-length body.
type EmptyResponseError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("empty response body (HTTP %d)", e.StatusCode)
}

// InvalidStructureError reports a 2xx JSON body that is neither an object
// nor an array.
type InvalidStructureError struct {
	Detail string
}

// Error implements the error interface.
func (e *InvalidStructureError) Error() string {
	return fmt.Sprintf("response JSON must be an object or array: %s", e.Detail)
}

// UnsupportedFormatError reports a 2xx body that is neither JSON nor CSV.
type UnsupportedFormatError struct{}

// Error implements the error interface.
func (e *UnsupportedFormatError) Error() string {
	return "response body is neither JSON nor CSV"
}

// Classify inspects an outcome and returns its payload, or the typed error
// describing why it is unusable. The outcome is consumed exactly once.
func Classify(o *httpclient.Outcome) (*Payload, error) {
	if o.StatusCode < 200 || o.StatusCode > 299 {
		return nil, &reperrors.APIError{
			Kind:       reperrors.KindForStatus(o.StatusCode),
			StatusCode: o.StatusCode,
			Body:       string(o.Body),
		}
	}

	if len(o.Body) == 0 {
		return nil, &EmptyResponseError{StatusCode: o.StatusCode}
	}

	if json.Valid(o.Body) {
		return classifyJSON(o)
	}

	if looksLikeCSV(string(o.Body)) {
		return &Payload{Kind: KindCSV, Raw: o.Body}, nil
	}

	return nil, &UnsupportedFormatError{}
}

// classifyJSON decodes a valid JSON body and enforces the structural rules.
func classifyJSON(o *httpclient.Outcome) (*Payload, error) {
	var value interface{}
	if err := json.Unmarshal(o.Body, &value); err != nil {
		return nil, &reperrors.FormatError{Reason: "undecodable JSON body", Cause: err}
	}

	switch v := value.(type) {
	case map[string]interface{}:
		if msg, found := applicationError(v); found {
			return nil, &reperrors.APIError{
				Kind:       reperrors.KindForStatus(o.StatusCode),
				StatusCode: o.StatusCode,
				Body:       string(o.Body),
				Message:    msg,
			}
		}
		return &Payload{Kind: KindJSONObject, JSON: v, Raw: o.Body}, nil

	case []interface{}:
		return &Payload{Kind: KindJSONArray, JSON: v, Raw: o.Body}, nil

	default:
		return nil, &InvalidStructureError{Detail: fmt.Sprintf("got %T", value)}
	}
}

// applicationError detects an error or error_code field in a 2xx object
// body and extracts a printable description.
func applicationError(body map[string]interface{}) (string, bool) {
	for _, key := range []string{"error", "error_code"} {
		value, ok := body[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			return v, true
		case map[string]interface{}:
			if msg, ok := v["message"].(string); ok {
				return msg, true
			}
			return fmt.Sprintf("%v", v), true
		default:
			return fmt.Sprintf("%v", v), true
		}
	}
	return "", false
}

// looksLikeCSV accepts a body with more than one line and at least one
// comma-separated line.
func looksLikeCSV(body string) bool {
	lines := strings.Split(strings.TrimRight(body, "\r\n"), "\n")
	if len(lines) <= 1 {
		return false
	}
	for _, line := range lines {
		if strings.Contains(line, ",") {
			return true
		}
	}
	return false
}
