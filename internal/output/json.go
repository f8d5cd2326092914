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

package output

import (
	"encoding/json"
	"fmt"
	"io"

	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// MaxJSONDepth caps nesting in the pretty-printed artifact, bounding
// recursion cost on malformed or adversarial input.
const MaxJSONDepth = 100

// WriteJSON writes the value as a pretty-printed JSON artifact.
func (w *Writer) WriteJSON(name string, value interface{}) (*Artifact, error) {
	if err := checkDepth(value, 0); err != nil {
		return nil, err
	}

	return w.Write(name, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	})
}

// checkDepth rejects values nested deeper than MaxJSONDepth levels.
func checkDepth(value interface{}, depth int) error {
	if depth > MaxJSONDepth {
		return &reperrors.FormatError{
			Reason: fmt.Sprintf("JSON nesting exceeds %d levels", MaxJSONDepth),
		}
	}

	switch v := value.(type) {
	case map[string]interface{}:
		for _, child := range v {
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, child := range v {
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
