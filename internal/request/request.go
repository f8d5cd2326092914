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

// Package request assembles the outbound report-request payload from
// dimensions, metrics, filters and a date range.
//
// Bodies are built as structured values and serialized with encoding/json,
// so escaping and well-formedness hold by construction. Two wire styles are
// supported: the generic data API body and the analytics runReport body.
package request

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/reportpull/internal/filter"
	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// DateLayout is the ISO-8601 calendar date form used throughout.
const DateLayout = "2006-01-02"

// Default date-range parameter names for the generic body style.
const (
	DefaultStartParam = "start_date"
	DefaultEndParam   = "end_date"
)

// Envelope is the validated description of one report request.
// Dimension and metric order is preserved as given: some report backends
// treat the first metric as the primary sort key.
type Envelope struct {
	// Start and End are inclusive ISO-8601 calendar dates.
	Start string
	End   string

	// Dimensions and Metrics are ordered field-name sequences.
	Dimensions []string
	Metrics    []string

	// DimensionFilters and MetricFilters are combined under AND semantics.
	DimensionFilters []filter.Expression
	MetricFilters    []filter.Expression
}

// Options tunes the generic body style.
type Options struct {
	// StartParam and EndParam name the date-range parameters.
	// Empty values fall back to start_date / end_date.
	StartParam string
	EndParam   string
}

// MalformedRequestError reports an assembled body that failed its round-trip
// re-parse. This should not happen for structured construction; treating it
// as fatal surfaces serializer regressions instead of sending garbage.
type MalformedRequestError struct {
	Cause error
}

// Error implements the error interface.
func (e *MalformedRequestError) Error() string {
	return fmt.Sprintf("assembled request body is not valid JSON: %v", e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *MalformedRequestError) Unwrap() error { return e.Cause }

// Validate checks the envelope's date range. It runs before any credential
// resolution or network activity.
func (e *Envelope) Validate() error {
	start, err := time.Parse(DateLayout, e.Start)
	if err != nil {
		return &reperrors.RequestError{Field: "start date", Reason: fmt.Sprintf("%q is not a valid YYYY-MM-DD date", e.Start)}
	}

	end, err := time.Parse(DateLayout, e.End)
	if err != nil {
		return &reperrors.RequestError{Field: "end date", Reason: fmt.Sprintf("%q is not a valid YYYY-MM-DD date", e.End)}
	}

	if start.After(end) {
		return &reperrors.RequestError{
			Field:  "date range",
			Reason: fmt.Sprintf("start %s is after end %s", e.Start, e.End),
		}
	}

	return nil
}

// BuildGeneric assembles the generic data-API body. Optional keys are
// omitted entirely when their source value is absent; no empty or null
// placeholders are emitted.
func BuildGeneric(e *Envelope, opts Options) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	startParam := opts.StartParam
	if startParam == "" {
		startParam = DefaultStartParam
	}
	endParam := opts.EndParam
	if endParam == "" {
		endParam = DefaultEndParam
	}

	body := map[string]interface{}{
		startParam: e.Start,
		endParam:   e.End,
	}
	if len(e.Dimensions) > 0 {
		body["dimensions"] = e.Dimensions
	}
	if len(e.Metrics) > 0 {
		body["metrics"] = e.Metrics
	}

	filters := make([]interface{}, 0, len(e.DimensionFilters)+len(e.MetricFilters))
	for _, expr := range append(append([]filter.Expression{}, e.DimensionFilters...), e.MetricFilters...) {
		filters = append(filters, genericFilter(expr))
	}
	if len(filters) > 0 {
		body["filters"] = map[string]interface{}{"andGroup": filters}
	}

	return marshalAndVerify(body)
}

// genericFilter renders one predicate for the generic body style.
func genericFilter(expr filter.Expression) map[string]interface{} {
	f := map[string]interface{}{
		"operator": string(expr.Operator),
		"value":    expr.Value,
	}
	if expr.CustomParam {
		f["parameterName"] = expr.Field
	} else {
		f["field"] = expr.Field
	}
	return f
}

// BuildAnalytics assembles the analytics runReport body.
func BuildAnalytics(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"dateRanges": []interface{}{
			map[string]interface{}{"startDate": e.Start, "endDate": e.End},
		},
	}

	if len(e.Dimensions) > 0 {
		dims := make([]interface{}, 0, len(e.Dimensions))
		for _, name := range e.Dimensions {
			dims = append(dims, map[string]interface{}{"name": name})
		}
		body["dimensions"] = dims
	}

	if len(e.Metrics) > 0 {
		mets := make([]interface{}, 0, len(e.Metrics))
		for _, name := range e.Metrics {
			mets = append(mets, map[string]interface{}{"name": name})
		}
		body["metrics"] = mets
	}

	if clause := analyticsFilterClause(e.DimensionFilters); clause != nil {
		body["dimensionFilter"] = clause
	}
	if clause := analyticsFilterClause(e.MetricFilters); clause != nil {
		body["metricFilter"] = clause
	}

	return marshalAndVerify(body)
}

// analyticsFilterClause renders an AND group of string filters in the
// runReport shape, or nil when there is nothing to filter on.
func analyticsFilterClause(exprs []filter.Expression) map[string]interface{} {
	if len(exprs) == 0 {
		return nil
	}

	members := make([]interface{}, 0, len(exprs))
	for _, expr := range exprs {
		fieldName := expr.Field
		if expr.CustomParam {
			fieldName = "customEvent:" + expr.Field
		}
		members = append(members, map[string]interface{}{
			"filter": map[string]interface{}{
				"fieldName": fieldName,
				"stringFilter": map[string]interface{}{
					"matchType": string(expr.Operator),
					"value":     expr.Value,
				},
			},
		})
	}

	if len(members) == 1 {
		return members[0].(map[string]interface{})
	}
	return map[string]interface{}{
		"andGroup": map[string]interface{}{"expressions": members},
	}
}

// marshalAndVerify serializes the body and re-parses it. A round-trip
// failure is a MalformedRequestError and fatal.
func marshalAndVerify(body map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &MalformedRequestError{Cause: err}
	}

	var check map[string]interface{}
	if err := json.Unmarshal(data, &check); err != nil {
		return nil, &MalformedRequestError{Cause: err}
	}

	return data, nil
}
