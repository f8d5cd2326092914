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
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reperrors "github.com/tombee/reportpull/pkg/errors"
)

func TestExpandTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"all placeholders", "{API_ID}_{START_DATE}_{END_DATE}", "ga4_2026-01-01_2026-01-31"},
		{"empty uses default", "", "ga4_2026-01-01_2026-01-31"},
		{"literal text kept", "report-{API_ID}", "report-ga4"},
		{"repeated placeholder", "{API_ID}/{API_ID}", "ga4/ga4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandTemplate(tt.template, "ga4", "2026-01-01", "2026-01-31")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWritePromotesAtomically(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "run-1")
	require.NoError(t, err)

	artifact, err := w.Write("report.json", func(out io.Writer) error {
		_, err := out.Write([]byte(`{"ok": true}`))
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "report.json"), artifact.Path)
	assert.Equal(t, int64(12), artifact.Size)

	sum := md5.Sum([]byte(`{"ok": true}`))
	assert.Equal(t, hex.EncodeToString(sum[:]), artifact.MD5)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, "report.json", entries[0].Name())
}

func TestWriteFailureLeavesNoFinalFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "run-1")
	require.NoError(t, err)

	_, err = w.Write("report.json", func(out io.Writer) error {
		out.Write([]byte("partial"))
		return errors.New("body write failed")
	})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "report.json"))
	assert.True(t, os.IsNotExist(statErr), "failed write must not produce the final file")

	w.Cleanup()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "cleanup removes the temporary")
}

func TestWriteJSONPrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "run-1")
	require.NoError(t, err)

	value := map[string]interface{}{"rows": []interface{}{map[string]interface{}{"a": 1.0}}}
	artifact, err := w.WriteJSON("data.json", value)
	require.NoError(t, err)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)

	assert.Contains(t, string(data), "\n  \"rows\"", "output is indented")

	var back map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, value, back)
}

func TestWriteJSONDepthCap(t *testing.T) {
	// Build a value nested beyond the cap.
	value := interface{}("leaf")
	for i := 0; i < MaxJSONDepth+2; i++ {
		value = map[string]interface{}{"next": value}
	}

	dir := t.TempDir()
	w, err := NewWriter(dir, "run-1")
	require.NoError(t, err)

	_, err = w.WriteJSON("deep.json", value)

	var formatErr *reperrors.FormatError
	require.ErrorAs(t, err, &formatErr)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "rejected value produces no files")
}

func TestNewWriterCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	_, err := NewWriter(dir, "run-1")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewWriterErrorKeepsCause(t *testing.T) {
	// A regular file where the directory should go makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewWriter(filepath.Join(blocker, "out"), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating output directory")

	var pathErr *os.PathError
	assert.True(t, errors.As(err, &pathErr), "wrapped error must keep the os cause in its chain")
}
