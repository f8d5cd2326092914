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

// Package output writes run artifacts with atomic promotion.
//
// Every write goes to a run-scoped temporary file in the destination
// directory and is renamed into place only after a fully successful write.
// An interrupted or failed run therefore never leaves a partially written
// artifact under its final name; Cleanup removes whatever temporaries
// remain.
package output

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// Artifact describes one promoted output file.
type Artifact struct {
	// Path is the final artifact location.
	Path string

	// MD5 is the hex content checksum, reported for downstream integrity
	// verification.
	MD5 string

	// Size is the artifact size in bytes.
	Size int64
}

// Writer writes artifacts for one extraction run.
type Writer struct {
	// Dir is the destination directory.
	Dir string

	// RunID scopes temporary file names so concurrent runs against the
	// same directory cannot collide.
	RunID string

	pending []string
}

// NewWriter creates a Writer, ensuring the destination directory exists.
func NewWriter(dir, runID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, reperrors.Wrapf(err, "creating output directory %s", dir)
	}
	return &Writer{Dir: dir, RunID: runID}, nil
}

// ExpandTemplate resolves the output-filename template. Supported
// placeholders: {API_ID}, {START_DATE}, {END_DATE}. An empty template
// defaults to "{API_ID}_{START_DATE}_{END_DATE}".
func ExpandTemplate(template, apiID, start, end string) string {
	if template == "" {
		template = "{API_ID}_{START_DATE}_{END_DATE}"
	}
	r := strings.NewReplacer(
		"{API_ID}", apiID,
		"{START_DATE}", start,
		"{END_DATE}", end,
	)
	return r.Replace(template)
}

// Write writes one artifact atomically using the given body writer. The
// name is the final file name (with extension) inside Dir.
func (w *Writer) Write(name string, body func(io.Writer) error) (*Artifact, error) {
	final := filepath.Join(w.Dir, name)
	tmp := final + "." + w.RunID + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, reperrors.Wrapf(err, "creating %s", tmp)
	}
	w.pending = append(w.pending, tmp)

	hasher := md5.New()
	counter := &countingWriter{}
	if err := body(io.MultiWriter(f, hasher, counter)); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, reperrors.Wrapf(err, "closing %s", tmp)
	}

	if err := os.Rename(tmp, final); err != nil {
		return nil, reperrors.Wrapf(err, "promoting %s", tmp)
	}
	w.unpend(tmp)

	return &Artifact{
		Path: final,
		MD5:  hex.EncodeToString(hasher.Sum(nil)),
		Size: counter.n,
	}, nil
}

// Cleanup removes any temporary files that were never promoted. It is safe
// to call unconditionally on every exit path.
func (w *Writer) Cleanup() {
	for _, tmp := range w.pending {
		os.Remove(tmp)
	}
	w.pending = nil
}

// unpend drops a promoted temp path from the cleanup list.
func (w *Writer) unpend(tmp string) {
	for i, p := range w.pending {
		if p == tmp {
			w.pending = append(w.pending[:i], w.pending[i+1:]...)
			return
		}
	}
}

// countingWriter tracks how many bytes passed through.
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
