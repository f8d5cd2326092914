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

// Package flatten converts nested JSON into a flat, schema-unified table.
//
// Flattening expands exactly one level of object nesting: a record's direct
// child objects become parentKey.childKey entries; scalars and arrays pass
// through unchanged. Records in an array need not share a schema: the
// table header is the sorted, deduplicated union of keys across all
// records, and every row is projected against the full header so column
// counts never vary between rows.
package flatten

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// FlatRecord is one tabular row: dot-joined key path to scalar value.
type FlatRecord map[string]interface{}

// Table is an ordered sequence of flat records plus the unified header.
type Table struct {
	// Header is the sorted union of keys across all records.
	Header []string

	// Records preserves source order.
	Records []FlatRecord
}

// NotTabularError reports a top-level JSON value that cannot be projected
// to rows: a scalar, or an array containing non-object elements.
type NotTabularError struct {
	Detail string
}

// Error implements the error interface.
func (e *NotTabularError) Error() string {
	return fmt.Sprintf("response is not tabular: %s", e.Detail)
}

// Flatten projects a decoded JSON value into a Table. A top-level array of
// objects yields one row per element; a single top-level object yields a
// one-row table.
func Flatten(value interface{}) (*Table, error) {
	switch v := value.(type) {
	case []interface{}:
		records := make([]FlatRecord, 0, len(v))
		for i, element := range v {
			obj, ok := element.(map[string]interface{})
			if !ok {
				return nil, &NotTabularError{Detail: fmt.Sprintf("array element %d is %T, not an object", i, element)}
			}
			records = append(records, flattenRecord(obj))
		}
		return newTable(records), nil

	case map[string]interface{}:
		return newTable([]FlatRecord{flattenRecord(v)}), nil

	default:
		return nil, &NotTabularError{Detail: fmt.Sprintf("top-level value is %T, not an object or array", value)}
	}
}

// flattenRecord expands one level of object nesting.
func flattenRecord(obj map[string]interface{}) FlatRecord {
	flat := make(FlatRecord, len(obj))
	for key, value := range obj {
		child, ok := value.(map[string]interface{})
		if !ok {
			// Scalars and arrays pass through; arrays are not recursed into.
			flat[key] = value
			continue
		}
		for childKey, childValue := range child {
			flat[key+"."+childKey] = childValue
		}
	}
	return flat
}

// newTable computes the unified header over the given records.
func newTable(records []FlatRecord) *Table {
	seen := make(map[string]struct{})
	var header []string
	for _, record := range records {
		for key := range record {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				header = append(header, key)
			}
		}
	}
	sort.Strings(header)

	return &Table{Header: header, Records: records}
}

// Rows projects every record against the full header. Missing cells are
// empty strings, never shifted columns.
func (t *Table) Rows() [][]string {
	rows := make([][]string, 0, len(t.Records))
	for _, record := range t.Records {
		row := make([]string, len(t.Header))
		for i, column := range t.Header {
			value, ok := record[column]
			if !ok {
				continue
			}
			row[i] = cellString(value)
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV serializes the table with standard CSV quoting.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows() {
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// cellString converts a scalar (or passed-through array) to its textual
// cell form. JSON numbers arrive as float64; integral values are printed
// without a fractional part.
func cellString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		// Pass-through arrays (and any other composite) keep their JSON text.
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
