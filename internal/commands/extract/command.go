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

package extract

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/reportpull/internal/commands/shared"
	"github.com/tombee/reportpull/internal/config"
	"github.com/tombee/reportpull/internal/log"
	"github.com/tombee/reportpull/internal/pipeline"
	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// NewExtractCommand creates the extract command
func NewExtractCommand() *cobra.Command {
	var (
		outputDir string
		csvOn     bool
		csvOff    bool
	)

	cmd := &cobra.Command{
		Use:   "extract <api_id> <start> <end>",
		Short: "Pull one report for a date range",
		Long: `Extract pulls the configured report for api_id over the inclusive
date range [start, end] (ISO dates, YYYY-MM-DD) and writes the JSON
artifact, plus a CSV sibling when enabled.

The CSV artifact follows the source's json_to_csv setting unless
overridden with --csv or --no-csv. A CSV conversion failure is reported
as a warning; the run still succeeds on the strength of the JSON
artifact.`,
		Example: `  # Pull January orders
  reportpull extract orders 2026-01-01 2026-01-31

  # Force the CSV sibling regardless of config
  reportpull extract orders 2026-01-01 2026-01-31 --csv

  # Write artifacts somewhere else
  reportpull extract orders 2026-01-01 2026-01-31 --output-dir /tmp/out`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, outputDir, csvOn, csvOff)
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Override the source's output directory")
	cmd.Flags().BoolVar(&csvOn, "csv", false, "Write the CSV artifact regardless of config")
	cmd.Flags().BoolVar(&csvOff, "no-csv", false, "Skip the CSV artifact regardless of config")
	cmd.MarkFlagsMutuallyExclusive("csv", "no-csv")

	return cmd
}

func runExtract(cmd *cobra.Command, args []string, outputDir string, csvOn, csvOff bool) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return shared.NewInvalidConfigError("cannot load config", err)
	}

	logCfg := log.FromEnv()
	if shared.GetVerbose() {
		logCfg.Level = "debug"
	}
	if shared.GetQuiet() {
		logCfg.Level = "error"
	}
	logger := log.New(logCfg)

	mode := pipeline.CSVFromConfig
	switch {
	case csvOn:
		mode = pipeline.CSVForceOn
	case csvOff:
		mode = pipeline.CSVForceOff
	}

	runner := pipeline.NewRunner(cfg, logger)
	summary, err := runner.Run(cmd.Context(), pipeline.Params{
		APIID:     args[0],
		Start:     args[1],
		End:       args[2],
		OutputDir: outputDir,
		CSV:       mode,
	})
	if err != nil {
		return shared.NewRunError(fmt.Sprintf("extraction failed for %s", args[0]), err)
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(summaryOutput(summary), "", "  ")
		if err != nil {
			return reperrors.Wrap(err, "failed to marshal summary")
		}
		cmd.Println(string(data))
		return nil
	}

	if !shared.GetQuiet() {
		for _, artifact := range summary.Artifacts {
			cmd.Printf("wrote %s (md5 %s, %d bytes)\n", artifact.Path, artifact.MD5, artifact.Size)
		}
		if summary.CSVSkipped != "" {
			cmd.Printf("warning: csv skipped: %s\n", summary.CSVSkipped)
		}
	}
	return nil
}

// Output is the JSON shape of a completed run.
type Output struct {
	RunID      string     `json:"run_id"`
	APIID      string     `json:"api_id"`
	Status     int        `json:"status"`
	Attempts   int        `json:"attempts"`
	DurationMS int64      `json:"duration_ms"`
	Artifacts  []Artifact `json:"artifacts"`
	CSVSkipped string     `json:"csv_skipped,omitempty"`
}

// Artifact is one written file in the JSON output.
type Artifact struct {
	Path string `json:"path"`
	MD5  string `json:"md5"`
	Size int64  `json:"size"`
}

func summaryOutput(s *pipeline.Summary) Output {
	out := Output{
		RunID:      s.RunID,
		APIID:      s.APIID,
		Status:     s.StatusCode,
		Attempts:   s.Attempts,
		DurationMS: s.Duration.Milliseconds(),
		CSVSkipped: s.CSVSkipped,
	}
	for _, a := range s.Artifacts {
		out.Artifacts = append(out.Artifacts, Artifact{Path: a.Path, MD5: a.MD5, Size: a.Size})
	}
	return out
}
