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

package validate

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/reportpull/internal/commands/shared"
	"github.com/tombee/reportpull/internal/config"
	"github.com/tombee/reportpull/internal/filter"
	"github.com/tombee/reportpull/internal/transform"
)

// Result is the JSON shape of one validated source.
type Result struct {
	APIID  string `json:"api_id"`
	Style  string `json:"style"`
	Auth   string `json:"auth"`
	Valid  bool   `json:"valid"`
	Detail string `json:"detail,omitempty"`
}

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [api_id]",
		Short: "Validate the source config file",
		Long: `Validate checks that the source config file parses, that every source
entry is complete, that filter expressions use the known grammar, and
that any transform expression compiles. No network requests are made.

With an api_id argument only that source is checked.`,
		Example: `  # Validate every configured source
  reportpull validate --config sources.yaml

  # Validate one source with JSON output
  reportpull validate orders --json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runValidate,
	}

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return shared.NewInvalidConfigError("config validation failed", err)
	}

	ids := make([]string, 0, len(cfg.Sources))
	if len(args) == 1 {
		if _, err := cfg.Source(args[0]); err != nil {
			return shared.NewInvalidConfigError("config validation failed", err)
		}
		ids = append(ids, args[0])
	} else {
		for id := range cfg.Sources {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		result, err := checkSource(cfg, id)
		if err != nil {
			return shared.NewInvalidConfigError(fmt.Sprintf("source %s invalid", id), err)
		}
		results = append(results, result)
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	for _, result := range results {
		cmd.Printf("%s: OK (style=%s, auth=%s)\n", result.APIID, result.Style, result.Auth)
	}
	cmd.Printf("%d source(s) valid\n", len(results))
	return nil
}

// checkSource goes beyond the structural checks done at load time: the
// filter grammar and the transform expression are compiled.
func checkSource(cfg *config.Config, id string) (Result, error) {
	src, err := cfg.Source(id)
	if err != nil {
		return Result{}, err
	}
	if _, err := filter.Parse(src.DimensionFilters); err != nil {
		return Result{}, err
	}
	if _, err := filter.Parse(src.MetricFilters); err != nil {
		return Result{}, err
	}
	if src.Transform != "" {
		if err := transform.NewExecutor(transform.DefaultTimeout).Validate(src.Transform); err != nil {
			return Result{}, err
		}
	}
	return Result{
		APIID: id,
		Style: src.Style,
		Auth:  src.Auth.Type,
		Valid: true,
	}, nil
}
