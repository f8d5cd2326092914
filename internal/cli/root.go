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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/reportpull/internal/commands/extract"
	"github.com/tombee/reportpull/internal/commands/shared"
	"github.com/tombee/reportpull/internal/commands/validate"
	"github.com/tombee/reportpull/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for reportpull
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportpull",
		Short: "reportpull - pull reports from HTTP APIs into JSON/CSV artifacts",
		Long: `reportpull extracts report data from configured HTTP APIs for a date
range and writes the result as a pretty-printed JSON artifact, with an
optional flattened CSV sibling.

Sources are described in a YAML config file keyed by API identifier.
Run 'reportpull validate' to check a config file without touching the
network.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to source config file (default: sources.yaml)")

	cmd.AddCommand(extract.NewExtractCommand())
	cmd.AddCommand(validate.NewValidateCommand())
	cmd.AddCommand(version.NewVersionCommand())

	return cmd
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
