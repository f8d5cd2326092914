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

// Package filter parses the compact textual filter grammar used in source
// configuration into typed predicates.
//
// The grammar uses ';' to separate expressions and ':' to separate fields
// within an expression. Two shapes are accepted:
//
//	dimension:OPERATOR:value
//	customEvent:paramName:OPERATOR:value
//
// The four-field shape is selected by the literal first token "customEvent"
// and matches on a custom event parameter instead of a named dimension.
// Parsing is pure: no partial results are produced on error.
package filter

import (
	"fmt"
	"strings"
)

// Operator is a string-match operator applied to a field value.
type Operator string

// The enumerated operator set. Anything else is a hard parse error, never a
// silent pass-through.
const (
	OpExact         Operator = "EXACT"
	OpBeginsWith    Operator = "BEGINS_WITH"
	OpEndsWith      Operator = "ENDS_WITH"
	OpContains      Operator = "CONTAINS"
	OpFullRegexp    Operator = "FULL_REGEXP"
	OpPartialRegexp Operator = "PARTIAL_REGEXP"
)

// customEventToken selects the four-field expression shape.
const customEventToken = "customEvent"

// Expression is one parsed filter predicate. A request carries zero or more
// expressions combined with AND semantics.
type Expression struct {
	// Field is the dimension or metric name being matched, or the custom
	// event parameter name when CustomParam is true.
	Field string

	// Operator is one of the enumerated match operators.
	Operator Operator

	// Value is the raw match value. Escaping for embedding in JSON is the
	// request builder's concern, not the parser's.
	Value string

	// CustomParam marks predicates parsed from the customEvent shape.
	CustomParam bool
}

// FormatError reports a segment that does not split into the expected
// field count.
type FormatError struct {
	// Segment is the offending expression text.
	Segment string

	// Fields is the number of fields the segment actually split into.
	Fields int
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid filter expression %q: expected 3 fields (or 4 for customEvent), got %d", e.Segment, e.Fields)
}

// UnknownOperatorError reports an operator outside the enumerated set.
type UnknownOperatorError struct {
	// Operator is the unrecognized operator token.
	Operator string

	// Segment is the expression the operator appeared in.
	Segment string
}

// Error implements the error interface.
func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown filter operator %q in %q", e.Operator, e.Segment)
}

// Parse parses a filter specification string into its ordered expression
// list. An empty (or all-whitespace) input is a no-op and yields an empty
// list with no error.
func Parse(spec string) ([]Expression, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	segments := strings.Split(spec, ";")
	expressions := make([]Expression, 0, len(segments))

	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			// Tolerate trailing or doubled separators.
			continue
		}

		expr, err := parseSegment(segment)
		if err != nil {
			return nil, err
		}
		expressions = append(expressions, expr)
	}

	return expressions, nil
}

// parseSegment parses one ';'-delimited expression.
func parseSegment(segment string) (Expression, error) {
	fields := strings.Split(segment, ":")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	switch {
	case len(fields) == 4 && fields[0] == customEventToken:
		op, err := parseOperator(fields[2], segment)
		if err != nil {
			return Expression{}, err
		}
		return Expression{
			Field:       fields[1],
			Operator:    op,
			Value:       fields[3],
			CustomParam: true,
		}, nil

	case len(fields) == 3:
		op, err := parseOperator(fields[1], segment)
		if err != nil {
			return Expression{}, err
		}
		return Expression{
			Field:    fields[0],
			Operator: op,
			Value:    fields[2],
		}, nil

	default:
		return Expression{}, &FormatError{Segment: strings.TrimSpace(segment), Fields: len(fields)}
	}
}

// parseOperator validates an operator token against the enumerated set.
func parseOperator(token, segment string) (Operator, error) {
	switch Operator(token) {
	case OpExact, OpBeginsWith, OpEndsWith, OpContains, OpFullRegexp, OpPartialRegexp:
		return Operator(token), nil
	default:
		return "", &UnknownOperatorError{Operator: token, Segment: strings.TrimSpace(segment)}
	}
}
