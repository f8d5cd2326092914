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

// Package auth resolves credential descriptors into ready-to-use request
// material.
//
// Resolution fails closed: an unreadable or malformed credential source
// aborts the run with a *errors.CredentialError. There is no fallback from
// one descriptor kind to another, and credential failures are never retried.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// Kind discriminates the credential descriptor variants.
type Kind string

const (
	// KindBasic is HTTP basic auth from a static user/secret pair.
	KindBasic Kind = "basic"
	// KindBearerFile reads a bearer token from a JSON file's access_token field.
	KindBearerFile Kind = "bearer_file"
	// KindHeaderPair reads two named fields from a JSON file and emits them
	// as two custom header name/value pairs.
	KindHeaderPair Kind = "header_pair"
	// KindServiceAccount mints an RS256 JWT from a service-account file and
	// exchanges it for an access token (JWT bearer grant).
	KindServiceAccount Kind = "service_account"
)

// Descriptor is the tagged variant describing where credentials come from.
// Exactly the fields relevant to Kind are consulted.
type Descriptor struct {
	Kind Kind

	// User and Secret configure KindBasic. When both are empty the
	// resolver's statically configured default pair is used.
	User   string
	Secret string

	// Path is the credential file for the file-backed kinds.
	Path string

	// KeyField and SecretField name the two JSON fields extracted for
	// KindHeaderPair; the field names double as the header names.
	KeyField    string
	SecretField string

	// Scope and Audience configure the KindServiceAccount JWT claims.
	// Audience defaults to the service account's token endpoint.
	Scope    string
	Audience string
}

// Credential is resolved, ready-to-use auth material. Headers are attached
// verbatim to outbound requests. TokenSource is set for the token-backed
// kinds so callers needing standard oauth2 semantics get them.
type Credential struct {
	Headers     http.Header
	TokenSource oauth2.TokenSource
}

// Resolver resolves descriptors into credentials.
type Resolver struct {
	// DefaultUser and DefaultSecret back KindBasic descriptors that carry
	// no explicit pair.
	DefaultUser   string
	DefaultSecret string

	// HTTPClient performs the token exchange for KindServiceAccount.
	// Defaults to a plain client with a 30s timeout; the exchange is not
	// retried because credential problems are not transient.
	HTTPClient *http.Client

	// now is overridable for tests.
	now func() time.Time
}

// Resolve resolves a descriptor into a credential. All failures are
// *errors.CredentialError or *errors.TokenExchangeError and are fatal to
// the run.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) (*Credential, error) {
	switch d.Kind {
	case KindBasic:
		return r.resolveBasic(d)
	case KindBearerFile:
		return r.resolveBearerFile(d)
	case KindHeaderPair:
		return r.resolveHeaderPair(d)
	case KindServiceAccount:
		return r.resolveServiceAccount(ctx, d)
	default:
		return nil, &reperrors.CredentialError{
			Reason: fmt.Sprintf("unknown credential kind %q", d.Kind),
		}
	}
}

// resolveBasic builds an Authorization: Basic header value.
func (r *Resolver) resolveBasic(d Descriptor) (*Credential, error) {
	user, secret := d.User, d.Secret
	if user == "" && secret == "" {
		user, secret = r.DefaultUser, r.DefaultSecret
	}
	if user == "" {
		return nil, &reperrors.CredentialError{
			Source: "static",
			Reason: "basic auth requires a user and no default pair is configured",
		}
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + secret))
	headers := http.Header{}
	headers.Set("Authorization", "Basic "+encoded)
	return &Credential{Headers: headers}, nil
}

// resolveBearerFile extracts access_token from a JSON credential file.
func (r *Resolver) resolveBearerFile(d Descriptor) (*Credential, error) {
	fields, err := readJSONFile(d.Path)
	if err != nil {
		return nil, err
	}

	token, ok := fields["access_token"].(string)
	if !ok || token == "" {
		return nil, &reperrors.CredentialError{
			Source: d.Path,
			Reason: "missing or empty access_token field",
		}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	return &Credential{
		Headers:     headers,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
	}, nil
}

// resolveHeaderPair extracts two named fields from a JSON credential file
// and emits them as custom headers named after the fields.
func (r *Resolver) resolveHeaderPair(d Descriptor) (*Credential, error) {
	if d.KeyField == "" || d.SecretField == "" {
		return nil, &reperrors.CredentialError{
			Source: d.Path,
			Reason: "header pair auth requires both field names",
		}
	}

	fields, err := readJSONFile(d.Path)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for _, name := range []string{d.KeyField, d.SecretField} {
		value, ok := fields[name].(string)
		if !ok || value == "" {
			return nil, &reperrors.CredentialError{
				Source: d.Path,
				Reason: fmt.Sprintf("missing or empty %s field", name),
			}
		}
		headers.Set(name, value)
	}

	return &Credential{Headers: headers}, nil
}

// readJSONFile reads and decodes a JSON object file, failing closed on any
// problem.
func readJSONFile(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, &reperrors.CredentialError{Reason: "no credential file configured"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &reperrors.CredentialError{
			Source: path,
			Reason: "cannot read credential file",
			Cause:  err,
		}
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &reperrors.CredentialError{
			Source: path,
			Reason: "credential file is not valid JSON",
			Cause:  err,
		}
	}

	return fields, nil
}
