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

// Package pipeline orchestrates one extraction run: resolve the source
// entry, authenticate, build and send the report request, classify the
// response, and write the artifacts.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/reportpull/internal/auth"
	"github.com/tombee/reportpull/internal/classify"
	"github.com/tombee/reportpull/internal/config"
	"github.com/tombee/reportpull/internal/filter"
	"github.com/tombee/reportpull/internal/flatten"
	"github.com/tombee/reportpull/internal/log"
	"github.com/tombee/reportpull/internal/output"
	"github.com/tombee/reportpull/internal/request"
	"github.com/tombee/reportpull/internal/transform"
	"github.com/tombee/reportpull/pkg/httpclient"
)

// CSVMode overrides the per-source json_to_csv flag from the command
// line.
type CSVMode int

const (
	// CSVFromConfig follows the source's json_to_csv setting.
	CSVFromConfig CSVMode = iota
	// CSVForceOn always writes the CSV artifact.
	CSVForceOn
	// CSVForceOff never writes the CSV artifact.
	CSVForceOff
)

// Params identifies what to extract in one run.
type Params struct {
	// APIID selects the source entry.
	APIID string
	// Start and End are inclusive ISO-8601 dates.
	Start string
	End   string
	// OutputDir overrides the source's output directory when non-empty.
	OutputDir string
	// CSV selects CSV artifact behavior.
	CSV CSVMode
}

// Summary reports what one successful run produced.
type Summary struct {
	RunID      string
	APIID      string
	StatusCode int
	Attempts   int
	Artifacts  []output.Artifact
	// CSVSkipped carries the reason when the CSV artifact was requested
	// but could not be produced. The run still succeeds; the JSON
	// artifact is authoritative.
	CSVSkipped string
	Duration   time.Duration
}

// Runner executes extraction runs against a loaded configuration.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger

	// HTTPConfig seeds the per-run HTTP client. The per-source proxy is
	// applied on top.
	HTTPConfig httpclient.Config

	// transformer is shared across runs; jq programs are compiled per
	// expression.
	transformer *transform.Executor
}

// NewRunner creates a Runner. A nil logger falls back to slog.Default.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:         cfg,
		logger:      logger,
		HTTPConfig:  httpclient.DefaultConfig(),
		transformer: transform.NewExecutor(transform.DefaultTimeout),
	}
}

// Run performs one extraction. All returned errors are from the typed
// taxonomy; transient upstream statuses surface as APIError values after
// retries are exhausted, never as panics.
func (r *Runner) Run(ctx context.Context, p Params) (*Summary, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger := log.WithRun(r.logger, p.APIID, runID)

	src, err := r.cfg.Source(p.APIID)
	if err != nil {
		return nil, err
	}

	envelope, err := buildEnvelope(src, p)
	if err != nil {
		return nil, err
	}

	cred, err := r.resolveCredential(ctx, src)
	if err != nil {
		return nil, err
	}

	body, err := buildBody(src, envelope)
	if err != nil {
		return nil, err
	}

	endpoint, err := src.Endpoint(p.APIID)
	if err != nil {
		return nil, err
	}

	outcome, err := r.send(ctx, logger, src, endpoint, cred, body)
	if err != nil {
		return nil, err
	}
	logger.Debug("response received",
		log.StatusKey, outcome.StatusCode,
		log.AttemptKey, outcome.Attempts)

	payload, err := classify.Classify(outcome)
	if err != nil {
		return nil, err
	}

	outDir := src.OutputDir
	if p.OutputDir != "" {
		outDir = p.OutputDir
	}
	writer, err := output.NewWriter(outDir, runID)
	if err != nil {
		return nil, err
	}
	defer writer.Cleanup()

	stem := output.ExpandTemplate(src.OutputFileName, p.APIID, p.Start, p.End)

	summary := &Summary{RunID: runID, APIID: p.APIID, StatusCode: outcome.StatusCode, Attempts: outcome.Attempts}
	if err := r.writeArtifacts(ctx, logger, writer, stem, src, p, payload, summary); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(started)
	logger.Info("extraction complete",
		log.StatusKey, summary.StatusCode,
		log.DurationKey, summary.Duration.Milliseconds())
	return summary, nil
}

func buildEnvelope(src *config.Source, p Params) (*request.Envelope, error) {
	dimFilters, err := filter.Parse(src.DimensionFilters)
	if err != nil {
		return nil, err
	}
	metFilters, err := filter.Parse(src.MetricFilters)
	if err != nil {
		return nil, err
	}
	envelope := &request.Envelope{
		Start:            p.Start,
		End:              p.End,
		Dimensions:       src.Dimensions,
		Metrics:          src.Metrics,
		DimensionFilters: dimFilters,
		MetricFilters:    metFilters,
	}
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	return envelope, nil
}

func (r *Runner) resolveCredential(ctx context.Context, src *config.Source) (*auth.Credential, error) {
	desc, err := src.AuthDescriptor()
	if err != nil {
		return nil, err
	}
	client, err := credentialClient(src)
	if err != nil {
		return nil, err
	}
	resolver := &auth.Resolver{
		DefaultUser:   r.cfg.Defaults.AuthUser,
		DefaultSecret: r.cfg.Defaults.AuthPassword,
		HTTPClient:    client,
	}
	return resolver.Resolve(ctx, desc)
}

// credentialClient builds the client used for token exchanges. A source
// behind a proxy must exchange tokens through that same proxy; a nil
// return leaves the resolver on its default client.
func credentialClient(src *config.Source) (*http.Client, error) {
	proxy, err := src.ProxyURL()
	if err != nil || proxy == nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxy)},
	}, nil
}

func buildBody(src *config.Source, envelope *request.Envelope) ([]byte, error) {
	if src.Style == config.StyleAnalytics {
		return request.BuildAnalytics(envelope)
	}
	return request.BuildGeneric(envelope, request.Options{
		StartParam: src.StartDateParam,
		EndParam:   src.EndDateParam,
	})
}

func (r *Runner) send(ctx context.Context, logger *slog.Logger, src *config.Source, endpoint string, cred *auth.Credential, body []byte) (*httpclient.Outcome, error) {
	httpCfg := r.HTTPConfig
	proxy, err := src.ProxyURL()
	if err != nil {
		return nil, err
	}
	httpCfg.Proxy = proxy

	client, err := httpclient.New(httpCfg, logger)
	if err != nil {
		return nil, err
	}
	return client.Do(ctx, src.RequestMethod(), endpoint, cred.Headers, body)
}

// writeArtifacts writes the JSON artifact and, when enabled, the CSV
// sibling. CSV failures downgrade to a warning because the JSON artifact
// already holds the complete payload.
func (r *Runner) writeArtifacts(ctx context.Context, logger *slog.Logger, writer *output.Writer, stem string, src *config.Source, p Params, payload *classify.Payload, summary *Summary) error {
	if payload.Kind == classify.KindCSV {
		artifact, err := writer.Write(stem+".csv", func(w io.Writer) error {
			_, werr := w.Write(payload.Raw)
			return werr
		})
		if err != nil {
			return err
		}
		summary.Artifacts = append(summary.Artifacts, *artifact)
		logger.Info("artifact written", log.ArtifactKey, artifact.Path, "md5", artifact.MD5)
		return nil
	}

	value := payload.JSON
	if src.Transform != "" {
		transformed, err := r.transformer.Apply(ctx, src.Transform, value)
		if err != nil {
			return err
		}
		value = transformed
	}

	artifact, err := writer.WriteJSON(stem+".json", value)
	if err != nil {
		return err
	}
	summary.Artifacts = append(summary.Artifacts, *artifact)
	logger.Info("artifact written", log.ArtifactKey, artifact.Path, "md5", artifact.MD5)

	if !csvEnabled(src, p.CSV) {
		return nil
	}
	table, err := flatten.Flatten(value)
	if err != nil {
		summary.CSVSkipped = err.Error()
		logger.Warn("csv conversion skipped", log.Error(err))
		return nil
	}
	csvArtifact, err := writer.Write(stem+".csv", func(w io.Writer) error {
		return table.WriteCSV(w)
	})
	if err != nil {
		summary.CSVSkipped = err.Error()
		logger.Warn("csv conversion skipped", log.Error(err))
		return nil
	}
	summary.Artifacts = append(summary.Artifacts, *csvArtifact)
	logger.Info("artifact written", log.ArtifactKey, csvArtifact.Path, "md5", csvArtifact.MD5)
	return nil
}

func csvEnabled(src *config.Source, mode CSVMode) bool {
	switch mode {
	case CSVForceOn:
		return true
	case CSVForceOff:
		return false
	}
	return src.CSVEnabled()
}
