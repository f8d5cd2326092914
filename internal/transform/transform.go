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

// Package transform applies an optional per-source jq projection to the
// decoded response JSON before flattening. An empty expression is the
// identity.
package transform

import (
	"context"
	"time"

	"github.com/itchyny/gojq"

	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// DefaultTimeout bounds a single expression run.
const DefaultTimeout = 1 * time.Second

// Executor evaluates jq expressions with timeout protection.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an executor. A zero timeout uses DefaultTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Validate compiles an expression without running it. Used at
// config-validation time to catch syntax errors before any network call.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return &reperrors.ConfigError{Key: "transform", Reason: "invalid jq expression", Cause: err}
	}
	if _, err := gojq.Compile(query); err != nil {
		return &reperrors.ConfigError{Key: "transform", Reason: "jq expression does not compile", Cause: err}
	}
	return nil
}

// Apply runs the expression against data. A single result is returned
// directly; multiple results are collected into an array. Runtime errors
// are FormatErrors: the artifact would not reflect the requested
// projection, so the run fails rather than degrading.
func (e *Executor) Apply(ctx context.Context, expression string, data interface{}) (interface{}, error) {
	if expression == "" {
		return data, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, &reperrors.FormatError{Reason: "invalid transform expression", Cause: err}
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, &reperrors.FormatError{Reason: "transform expression does not compile", Cause: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	iter := code.RunWithContext(runCtx, data)

	var results []interface{}
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, &reperrors.FormatError{Reason: "transform failed", Cause: err}
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
