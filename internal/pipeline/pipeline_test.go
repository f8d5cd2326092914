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

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/reportpull/internal/config"
	"github.com/tombee/reportpull/pkg/errors"
)

func testConfig(t *testing.T, baseURL string, mutate func(*config.Source)) *config.Config {
	t.Helper()
	src := &config.Source{
		BaseURL:    baseURL,
		Auth:       config.Auth{Type: "BASIC", User: "alice", Password: "s3cret"},
		Dimensions: []string{"region"},
		Metrics:    []string{"units"},
	}
	if mutate != nil {
		mutate(src)
	}
	if src.Style == "" {
		src.Style = config.StyleGeneric
	}
	if src.Method == "" {
		src.Method = "POST"
	}
	if src.OutputFileName == "" {
		src.OutputFileName = config.DefaultOutputTemplate
	}
	return &config.Config{Sources: map[string]*config.Source{"orders": src}}
}

func newRunner(cfg *config.Config) *Runner {
	r := NewRunner(cfg, nil)
	r.HTTPConfig.MaxRetries = 1
	r.HTTPConfig.RetryDelay = 10 * time.Millisecond
	return r
}

func TestRunGenericHappyPath(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/orders", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "s3cret", pass)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"region":"EMEA","units":5},{"region":"APAC","units":7}]`)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL, func(s *config.Source) {
		s.JSONToCSV = "Y"
	})
	outDir := t.TempDir()

	summary, err := newRunner(cfg).Run(context.Background(), Params{
		APIID:     "orders",
		Start:     "2026-01-01",
		End:       "2026-01-31",
		OutputDir: outDir,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, summary.StatusCode)
	assert.Equal(t, 1, summary.Attempts)
	assert.Empty(t, summary.CSVSkipped)
	assert.Equal(t, "2026-01-01", gotBody["start_date"])
	assert.Equal(t, "2026-01-31", gotBody["end_date"])

	require.Len(t, summary.Artifacts, 2)
	assert.Equal(t, filepath.Join(outDir, "orders_2026-01-01_2026-01-31.json"), summary.Artifacts[0].Path)
	assert.Equal(t, filepath.Join(outDir, "orders_2026-01-01_2026-01-31.csv"), summary.Artifacts[1].Path)
	for _, artifact := range summary.Artifacts {
		assert.Len(t, artifact.MD5, 32)
		assert.Greater(t, artifact.Size, int64(0))
	}

	csvText, err := os.ReadFile(summary.Artifacts[1].Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvText)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "region,units", lines[0])

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestRunRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"region":"EMEA","units":5}]`)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL, nil)
	summary, err := newRunner(cfg).Run(context.Background(), Params{
		APIID: "orders", Start: "2026-01-01", End: "2026-01-31", OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunExhaustedRetriesSurfaceAPIError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL, nil)
	_, err := newRunner(cfg).Run(context.Background(), Params{
		APIID: "orders", Start: "2026-01-01", End: "2026-01-31", OutputDir: t.TempDir(),
	})
	var apiErr *errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, errors.KindGatewayError, apiErr.Kind)
	assert.Equal(t, int32(2), calls.Load(), "one retry after the initial attempt")
}

func TestRunCSVDegradesToWarning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[1,2,3]`)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL, func(s *config.Source) {
		s.JSONToCSV = true
	})
	outDir := t.TempDir()
	summary, err := newRunner(cfg).Run(context.Background(), Params{
		APIID: "orders", Start: "2026-01-01", End: "2026-01-31", OutputDir: outDir,
	})
	require.NoError(t, err, "CSV conversion failure must not fail the run")
	assert.NotEmpty(t, summary.CSVSkipped)
	require.Len(t, summary.Artifacts, 1)
	assert.True(t, strings.HasSuffix(summary.Artifacts[0].Path, ".json"))
}

func TestRunAnalyticsStyle(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/properties/987654:runReport", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		fmt.Fprint(w, `{"rows":[{"dimensionValues":[{"value":"EMEA"}]}]}`)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL, func(s *config.Source) {
		s.Style = config.StyleAnalytics
		s.PropertyID = "987654"
		s.Method = "GET" // ignored for analytics
	})
	summary, err := newRunner(cfg).Run(context.Background(), Params{
		APIID: "orders", Start: "2026-01-01", End: "2026-01-31", OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, summary.Artifacts, 1)

	ranges, ok := gotBody["dateRanges"].([]interface{})
	require.True(t, ok)
	require.Len(t, ranges, 1)
	first := ranges[0].(map[string]interface{})
	assert.Equal(t, "2026-01-01", first["startDate"])
}

func TestRunTransformApplied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"meta":{"page":1},"rows":[{"region":"EMEA","units":5}]}`)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL, func(s *config.Source) {
		s.Transform = ".rows"
		s.JSONToCSV = "Y"
	})
	outDir := t.TempDir()
	summary, err := newRunner(cfg).Run(context.Background(), Params{
		APIID: "orders", Start: "2026-01-01", End: "2026-01-31", OutputDir: outDir,
	})
	require.NoError(t, err)
	require.Len(t, summary.Artifacts, 2)

	data, err := os.ReadFile(summary.Artifacts[0].Path)
	require.NoError(t, err)
	var written []interface{}
	require.NoError(t, json.Unmarshal(data, &written), "transform should reduce the body to the rows array")
	require.Len(t, written, 1)
}

func TestRunCSVModeOverrides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"region":"EMEA","units":5}]`)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL, func(s *config.Source) {
		s.JSONToCSV = "N"
	})
	summary, err := newRunner(cfg).Run(context.Background(), Params{
		APIID: "orders", Start: "2026-01-01", End: "2026-01-31",
		OutputDir: t.TempDir(), CSV: CSVForceOn,
	})
	require.NoError(t, err)
	assert.Len(t, summary.Artifacts, 2, "--csv forces the CSV artifact on")

	summary, err = newRunner(cfg).Run(context.Background(), Params{
		APIID: "orders", Start: "2026-01-01", End: "2026-01-31",
		OutputDir: t.TempDir(), CSV: CSVForceOff,
	})
	require.NoError(t, err)
	assert.Len(t, summary.Artifacts, 1)
}

func TestCredentialClientUsesProxy(t *testing.T) {
	src := &config.Source{ProxyHost: "proxy.internal", ProxyPort: 8080}
	client, err := credentialClient(src)
	require.NoError(t, err)
	require.NotNil(t, client)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	req, err := http.NewRequest(http.MethodPost, "https://oauth2.googleapis.com/token", nil)
	require.NoError(t, err)
	proxyURL, err := transport.Proxy(req)
	require.NoError(t, err)
	require.NotNil(t, proxyURL)
	assert.Equal(t, "http://proxy.internal:8080", proxyURL.String())

	// Without a proxy the resolver keeps its default client.
	client, err = credentialClient(&config.Source{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestRunUnknownSource(t *testing.T) {
	cfg := testConfig(t, "https://api.example.com", nil)
	_, err := newRunner(cfg).Run(context.Background(), Params{
		APIID: "nope", Start: "2026-01-01", End: "2026-01-31",
	})
	var cerr *errors.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestRunRejectsBadDates(t *testing.T) {
	cfg := testConfig(t, "https://api.example.com", nil)
	tests := []struct {
		name       string
		start, end string
	}{
		{"malformed start", "01/01/2026", "2026-01-31"},
		{"reversed range", "2026-02-01", "2026-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRunner(cfg).Run(context.Background(), Params{
				APIID: "orders", Start: tt.start, End: tt.end,
			})
			var rerr *errors.RequestError
			assert.ErrorAs(t, err, &rerr)
		})
	}
}
