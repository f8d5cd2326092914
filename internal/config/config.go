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

// Package config loads and validates the source configuration file. A
// config file maps API identifiers to source entries describing where to
// pull data from, how to authenticate, and how to write artifacts. The
// loaded configuration is immutable for the duration of a run.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/tombee/reportpull/internal/auth"
	"github.com/tombee/reportpull/pkg/errors"
)

// Request style identifiers for a source entry.
const (
	// StyleGeneric posts a flat query body to <base>[:port]/data/<api_id>.
	StyleGeneric = "generic"
	// StyleAnalytics posts a runReport body to the analytics property
	// endpoint derived from property_id.
	StyleAnalytics = "analytics"
)

// Auth type strings accepted in the `auth.type` field. Matching is
// case-insensitive.
const (
	AuthTypeBasic          = "BASIC"
	AuthTypeOAuth          = "OAUTH"
	AuthTypeJSON           = "JSON"
	AuthTypeServiceAccount = "SERVICE_ACCOUNT"
)

// DefaultOutputTemplate names artifacts when output_file_name is absent.
const DefaultOutputTemplate = "{API_ID}_{START_DATE}_{END_DATE}"

// Config is the root of a source configuration file.
type Config struct {
	// Sources maps API identifiers to their source entries.
	Sources map[string]*Source `yaml:"sources"`

	// Defaults supplies fallback values shared by all sources.
	Defaults Defaults `yaml:"defaults"`
}

// Defaults holds file-wide fallbacks applied to every source.
type Defaults struct {
	// AuthUser is the fallback username for basic auth entries that do
	// not carry their own user.
	AuthUser string `yaml:"auth_user"`
	// AuthPassword is the fallback password paired with AuthUser.
	AuthPassword string `yaml:"auth_password"`
	// OutputDir is used when a source omits output_dir.
	OutputDir string `yaml:"output_dir"`
}

// Auth describes how to authenticate requests for one source.
type Auth struct {
	// Type selects the auth scheme: BASIC, OAUTH, JSON, or
	// SERVICE_ACCOUNT. Required.
	Type string `yaml:"type"`
	// File points at the credential file for OAUTH, JSON, and
	// SERVICE_ACCOUNT types.
	File string `yaml:"file"`
	// User and Password supply BASIC credentials inline. When absent the
	// file-wide defaults apply.
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// KeyField and SecretField name the JSON credential-file fields whose
	// values become request headers for the JSON type. Default
	// "key" and "secret".
	KeyField    string `yaml:"key_field"`
	SecretField string `yaml:"secret_field"`
	// Scope and Audience parameterize the SERVICE_ACCOUNT assertion.
	// Audience defaults to the token endpoint named in the credential
	// file.
	Scope    string `yaml:"scope"`
	Audience string `yaml:"audience"`
}

// Source is one configured extraction target.
type Source struct {
	// BaseURL is the scheme and host of the upstream API. Required.
	BaseURL string `yaml:"base_url"`
	// Port is an optional explicit port appended to BaseURL. Accepts a
	// number or a numeric string.
	Port interface{} `yaml:"port"`
	// Method is the HTTP method for generic-style requests. GET or POST,
	// default POST. Analytics-style requests are always POST.
	Method string `yaml:"method"`
	// Style selects the request body shape: generic (default) or
	// analytics.
	Style string `yaml:"style"`
	// PropertyID is the analytics property number. Required when Style is
	// analytics.
	PropertyID string `yaml:"property_id"`
	// OutputDir is the artifact directory for this source.
	OutputDir string `yaml:"output_dir"`
	// ProxyHost and ProxyPort configure an optional forward proxy. Both
	// must be set together.
	ProxyHost string      `yaml:"proxy_host"`
	ProxyPort interface{} `yaml:"proxy_port"`
	// Auth describes the credential scheme. Required.
	Auth Auth `yaml:"auth"`
	// JSONToCSV enables the sibling CSV artifact. Accepts Y/N, yes/no, or
	// a bool. Default off.
	JSONToCSV interface{} `yaml:"json_to_csv"`
	// OutputFileName is the artifact name template. Supports {API_ID},
	// {START_DATE}, and {END_DATE} placeholders.
	OutputFileName string `yaml:"output_file_name"`
	// Dimensions and Metrics are the requested report columns.
	Dimensions []string `yaml:"dimensions"`
	Metrics    []string `yaml:"metrics"`
	// DimensionFilters and MetricFilters hold filter expressions in the
	// field:OPERATOR:value[;...] grammar.
	DimensionFilters string `yaml:"dimension_filters"`
	MetricFilters    string `yaml:"metric_filters"`
	// StartDateParam and EndDateParam rename the date-range keys in
	// generic request bodies. Defaults "start_date" and "end_date".
	StartDateParam string `yaml:"start_date_param"`
	EndDateParam   string `yaml:"end_date_param"`
	// Transform is an optional jq expression applied to the response body
	// before flattening. Empty means identity.
	Transform string `yaml:"transform"`
}

// Load reads and validates a source configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{Key: "file", Reason: "cannot read config file", Cause: err}
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &errors.ConfigError{Key: "file", Reason: "invalid YAML", Cause: err}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Source returns the entry for apiID or a ConfigError when it is not
// configured.
func (c *Config) Source(apiID string) (*Source, error) {
	src, ok := c.Sources[apiID]
	if !ok {
		return nil, &errors.ConfigError{Key: apiID, Reason: "no such source in config"}
	}
	return src, nil
}

func (c *Config) applyDefaults() {
	for _, src := range c.Sources {
		if src == nil {
			continue
		}
		if src.Style == "" {
			src.Style = StyleGeneric
		}
		if src.Method == "" {
			src.Method = "POST"
		}
		if src.OutputFileName == "" {
			src.OutputFileName = DefaultOutputTemplate
		}
		if src.OutputDir == "" {
			src.OutputDir = c.Defaults.OutputDir
		}
		if src.Auth.KeyField == "" {
			src.Auth.KeyField = "key"
		}
		if src.Auth.SecretField == "" {
			src.Auth.SecretField = "secret"
		}
	}
}

// Validate checks every source entry. The first problem found is
// returned as a ConfigError keyed by the offending source and field.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return &errors.ConfigError{Key: "sources", Reason: "no sources configured"}
	}
	for id, src := range c.Sources {
		if src == nil {
			return &errors.ConfigError{Key: id, Reason: "empty source entry"}
		}
		if err := src.validate(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) validate(id string) error {
	fieldErr := func(field, reason string) error {
		return &errors.ConfigError{Key: id + "." + field, Reason: reason}
	}
	if s.BaseURL == "" {
		return fieldErr("base_url", "required")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fieldErr("base_url", "must be an absolute URL")
	}
	if s.Port != nil {
		if _, err := cast.ToIntE(s.Port); err != nil {
			return fieldErr("port", "must be numeric")
		}
	}
	switch strings.ToUpper(s.Method) {
	case "GET", "POST":
	default:
		return fieldErr("method", "must be GET or POST")
	}
	switch s.Style {
	case StyleGeneric:
	case StyleAnalytics:
		if s.PropertyID == "" {
			return fieldErr("property_id", "required for analytics style")
		}
	default:
		return fieldErr("style", "must be generic or analytics")
	}
	if (s.ProxyHost == "") != (s.ProxyPort == nil) {
		return fieldErr("proxy_host", "proxy_host and proxy_port must be set together")
	}
	if s.ProxyPort != nil {
		if _, err := cast.ToIntE(s.ProxyPort); err != nil {
			return fieldErr("proxy_port", "must be numeric")
		}
	}
	if s.JSONToCSV != nil {
		if _, err := csvFlag(s.JSONToCSV); err != nil {
			return fieldErr("json_to_csv", "must be Y, N, or a bool")
		}
	}
	if _, err := s.AuthDescriptor(); err != nil {
		return err
	}
	return nil
}

// AuthDescriptor maps the entry's auth block onto a credential
// descriptor. Unknown auth types yield a ConfigError.
func (s *Source) AuthDescriptor() (auth.Descriptor, error) {
	a := s.Auth
	switch strings.ToUpper(strings.TrimSpace(a.Type)) {
	case AuthTypeBasic:
		return auth.Descriptor{Kind: auth.KindBasic, User: a.User, Secret: a.Password}, nil
	case AuthTypeOAuth:
		if a.File == "" {
			return auth.Descriptor{}, &errors.ConfigError{Key: "auth.file", Reason: "required for OAUTH auth"}
		}
		return auth.Descriptor{Kind: auth.KindBearerFile, Path: a.File}, nil
	case AuthTypeJSON:
		if a.File == "" {
			return auth.Descriptor{}, &errors.ConfigError{Key: "auth.file", Reason: "required for JSON auth"}
		}
		return auth.Descriptor{
			Kind:        auth.KindHeaderPair,
			Path:        a.File,
			KeyField:    a.KeyField,
			SecretField: a.SecretField,
		}, nil
	case AuthTypeServiceAccount:
		if a.File == "" {
			return auth.Descriptor{}, &errors.ConfigError{Key: "auth.file", Reason: "required for SERVICE_ACCOUNT auth"}
		}
		return auth.Descriptor{
			Kind:     auth.KindServiceAccount,
			Path:     a.File,
			Scope:    a.Scope,
			Audience: a.Audience,
		}, nil
	case "":
		return auth.Descriptor{}, &errors.ConfigError{Key: "auth.type", Reason: "required"}
	default:
		return auth.Descriptor{}, &errors.ConfigError{Key: "auth.type", Reason: fmt.Sprintf("unknown auth type %q", a.Type)}
	}
}

// Endpoint builds the request URL for apiID. Generic sources address
// <base>[:port]/data/<api_id>; analytics sources address the property's
// runReport endpoint.
func (s *Source) Endpoint(apiID string) (string, error) {
	base := strings.TrimRight(s.BaseURL, "/")
	if s.Port != nil {
		u, err := url.Parse(base)
		if err != nil {
			return "", &errors.ConfigError{Key: "base_url", Reason: "must be an absolute URL", Cause: err}
		}
		if u.Port() == "" {
			u.Host = u.Host + ":" + cast.ToString(s.Port)
		}
		base = strings.TrimRight(u.String(), "/")
	}
	if s.Style == StyleAnalytics {
		return fmt.Sprintf("%s/v1beta/properties/%s:runReport", base, s.PropertyID), nil
	}
	return fmt.Sprintf("%s/data/%s", base, url.PathEscape(apiID)), nil
}

// RequestMethod returns the HTTP method to use. Analytics requests are
// always POST regardless of the configured method.
func (s *Source) RequestMethod() string {
	if s.Style == StyleAnalytics {
		return "POST"
	}
	return strings.ToUpper(s.Method)
}

// ProxyURL returns the configured forward proxy, or nil when none is
// set.
func (s *Source) ProxyURL() (*url.URL, error) {
	if s.ProxyHost == "" {
		return nil, nil
	}
	raw := fmt.Sprintf("http://%s:%s", s.ProxyHost, cast.ToString(s.ProxyPort))
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &errors.ConfigError{Key: "proxy_host", Reason: "invalid proxy endpoint", Cause: err}
	}
	return u, nil
}

// CSVEnabled reports whether a CSV artifact should be produced.
func (s *Source) CSVEnabled() bool {
	if s.JSONToCSV == nil {
		return false
	}
	enabled, err := csvFlag(s.JSONToCSV)
	if err != nil {
		return false
	}
	return enabled
}

// csvFlag coerces the json_to_csv value. Y/N shorthand predates bool
// support and remains accepted.
func csvFlag(v interface{}) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(cast.ToString(v))) {
	case "Y", "YES":
		return true, nil
	case "N", "NO", "":
		return false, nil
	}
	return cast.ToBoolE(v)
}
